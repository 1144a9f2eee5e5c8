package backup

import (
	"sync/atomic"
	"time"

	"pixelgardenlabs.io/wbck/pkg/plog"
	"pixelgardenlabs.io/wbck/pkg/util"
)

// Metrics collects counters for a backup run.
type Metrics interface {
	AddFilesCopied(n int64)
	AddFilesLinked(n int64)
	AddLinksRejected(n int64)
	AddSymlinksWritten(n int64)
	AddDirsCreated(n int64)
	AddEntriesProcessed(n int64)
	AddEntriesIgnored(n int64)
	AddEntriesSkipped(n int64)
	AddBytesWritten(n int64)
	LogSummary(msg string)

	StartProgress(msg string, interval time.Duration)
	StopProgress()
}

// RunMetrics holds the atomic counters for tracking a run's progress.
// It is the concrete implementation of the Metrics interface.
type RunMetrics struct {
	FilesCopied      atomic.Int64
	FilesLinked      atomic.Int64
	LinksRejected    atomic.Int64
	SymlinksWritten  atomic.Int64
	DirsCreated      atomic.Int64
	EntriesProcessed atomic.Int64
	EntriesIgnored   atomic.Int64
	EntriesSkipped   atomic.Int64
	BytesWritten     atomic.Int64

	stopChan  chan struct{}
	startTime time.Time
}

func (m *RunMetrics) AddFilesCopied(n int64)      { m.FilesCopied.Add(n) }
func (m *RunMetrics) AddFilesLinked(n int64)      { m.FilesLinked.Add(n) }
func (m *RunMetrics) AddLinksRejected(n int64)    { m.LinksRejected.Add(n) }
func (m *RunMetrics) AddSymlinksWritten(n int64)  { m.SymlinksWritten.Add(n) }
func (m *RunMetrics) AddDirsCreated(n int64)      { m.DirsCreated.Add(n) }
func (m *RunMetrics) AddEntriesProcessed(n int64) { m.EntriesProcessed.Add(n) }
func (m *RunMetrics) AddEntriesIgnored(n int64)   { m.EntriesIgnored.Add(n) }
func (m *RunMetrics) AddEntriesSkipped(n int64)   { m.EntriesSkipped.Add(n) }
func (m *RunMetrics) AddBytesWritten(n int64)     { m.BytesWritten.Add(n) }

func (m *RunMetrics) StartProgress(msg string, interval time.Duration) {
	m.startTime = time.Now()
	stop := make(chan struct{})
	m.stopChan = stop
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.LogSummary(msg)
			case <-stop:
				return
			}
		}
	}()
}

func (m *RunMetrics) StopProgress() {
	if m.stopChan != nil {
		close(m.stopChan)
		m.stopChan = nil
	}
}

// LogSummary logs all counters with a custom message.
// This can be called by a background ticker or at the end of the run.
func (m *RunMetrics) LogSummary(msg string) {
	duration := time.Duration(0)
	if !m.startTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	plog.Info(msg,
		"entries_processed", m.EntriesProcessed.Load(),
		"bytes_written", util.ByteCountIEC(m.BytesWritten.Load()),
		"files_copied", m.FilesCopied.Load(),
		"files_linked", m.FilesLinked.Load(),
		"links_rejected", m.LinksRejected.Load(),
		"symlinks_written", m.SymlinksWritten.Load(),
		"dirs_created", m.DirsCreated.Load(),
		"entries_ignored", m.EntriesIgnored.Load(),
		"entries_skipped", m.EntriesSkipped.Load(),
		"duration", duration.Round(time.Millisecond),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
type NoopMetrics struct{}

func (m *NoopMetrics) AddFilesCopied(n int64)                           {}
func (m *NoopMetrics) AddFilesLinked(n int64)                           {}
func (m *NoopMetrics) AddLinksRejected(n int64)                         {}
func (m *NoopMetrics) AddSymlinksWritten(n int64)                       {}
func (m *NoopMetrics) AddDirsCreated(n int64)                           {}
func (m *NoopMetrics) AddEntriesProcessed(n int64)                      {}
func (m *NoopMetrics) AddEntriesIgnored(n int64)                        {}
func (m *NoopMetrics) AddEntriesSkipped(n int64)                        {}
func (m *NoopMetrics) AddBytesWritten(n int64)                          {}
func (m *NoopMetrics) LogSummary(msg string)                            {}
func (m *NoopMetrics) StartProgress(msg string, interval time.Duration) {}
func (m *NoopMetrics) StopProgress()                                    {}

// Statically assert that our types implement the interface.
var _ Metrics = (*RunMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
