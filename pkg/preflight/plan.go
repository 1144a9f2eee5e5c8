package preflight

// Plan selects the checks performed by Run.
type Plan struct {
	SourceAccessible    bool
	TargetAccessible    bool
	ReferenceAccessible bool
	PathNesting         bool
	// SameDevice requires reference and target to share a filesystem.
	SameDevice bool
}

// DefaultPlan enables every check.
func DefaultPlan() *Plan {
	return &Plan{
		SourceAccessible:    true,
		TargetAccessible:    true,
		ReferenceAccessible: true,
		PathNesting:         true,
		SameDevice:          true,
	}
}
