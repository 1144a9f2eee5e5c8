//go:build unix

package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestBackupItem_SkipsNamedPipe(t *testing.T) {
	d := newBackupDirs(t)
	fifo := filepath.Join(d.src, "pipe")
	require.NoError(t, unix.Mkfifo(fifo, 0644))

	item, err := Classify(fifo)
	require.NoError(t, err)
	assert.Equal(t, KindOther, item.Kind)

	metrics := &RunMetrics{}
	b := New(Options{}, metrics)
	require.NoError(t, b.BackupItem(fifo, filepath.Join(d.trg, "pipe"), ""))

	_, err = os.Lstat(filepath.Join(d.trg, "pipe"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, int64(1), metrics.EntriesSkipped.Load())
	assert.Equal(t, int64(1), metrics.EntriesProcessed.Load())
}
