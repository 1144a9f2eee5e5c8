package main

import (
	"context"
	"testing"
)

// runTestWithArgs executes the root command with args and returns the flag map
// handed to the run function.
func runTestWithArgs(t *testing.T, args []string) (map[string]any, error) {
	t.Helper()
	var got map[string]any
	rootCmd := newRootCmd(func(_ context.Context, flagMap map[string]any) error {
		got = flagMap
		return nil
	})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return got, err
}

func TestRootCmd(t *testing.T) {
	t.Run("Positional Paths Only", func(t *testing.T) {
		setFlags, err := runTestWithArgs(t, []string{"/src", "/dst"})
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if setFlags["source"] != "/src" || setFlags["target"] != "/dst" {
			t.Errorf("unexpected paths: %v", setFlags)
		}
		if len(setFlags) != 2 {
			t.Errorf("expected only source and target to be set, but got %v", setFlags)
		}
	})

	t.Run("Explicit Flags Are Passed", func(t *testing.T) {
		setFlags, err := runTestWithArgs(t, []string{
			"--ref=/prev", "--workers=4", "--dry-run", "--log-level=debug", "/src", "/dst",
		})
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if setFlags["ref"] != "/prev" {
			t.Errorf("expected ref to be '/prev', but got %v", setFlags["ref"])
		}
		if setFlags["workers"] != 4 {
			t.Errorf("expected workers to be 4, but got %v", setFlags["workers"])
		}
		if setFlags["dry-run"] != true {
			t.Errorf("expected dry-run to be true, but got %v", setFlags["dry-run"])
		}
		if setFlags["log-level"] != "debug" {
			t.Errorf("expected log-level to be 'debug', but got %v", setFlags["log-level"])
		}
		if _, ok := setFlags["verify-content"]; ok {
			t.Error("expected unset verify-content to be absent")
		}
	})

	t.Run("Wrong Argument Count", func(t *testing.T) {
		for _, args := range [][]string{{}, {"/src"}, {"/a", "/b", "/c"}} {
			if _, err := runTestWithArgs(t, args); err == nil {
				t.Errorf("expected an error for args %v, but got nil", args)
			}
		}
	})

	t.Run("Invalid Flag Value", func(t *testing.T) {
		if _, err := runTestWithArgs(t, []string{"--workers=many", "/src", "/dst"}); err == nil {
			t.Error("expected an error for a non-numeric worker count, but got nil")
		}
	})
}
