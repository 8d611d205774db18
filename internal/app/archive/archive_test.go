package archive_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"

	"github.com/witwicki/streaming-xtts/internal/app/archive"
)

func TestArchiveWritesLocalWav(t *testing.T) {
	t.Parallel()

	assert := require.New(t)

	dir := t.TempDir()

	a, err := archive.New(&archive.Config{
		Enabled: true,
		Dir:     dir,
		Gap:     10 * time.Millisecond,
	})
	assert.NoError(err)

	// Two 2-sample payloads at 100 Hz with a 10ms (1 sample) gap between.
	payloads := [][]byte{
		{1, 0, 2, 0},
		{3, 0, 4, 0},
	}
	assert.NoError(a.Archive(context.Background(), payloads, 100, 1.0))

	entries, err := os.ReadDir(dir)
	assert.NoError(err)
	assert.Len(entries, 1)

	name := entries[0].Name()
	assert.True(strings.HasPrefix(name, "speech_"), "unexpected name: %s", name)
	assert.True(strings.HasSuffix(name, ".wav"), "unexpected name: %s", name)

	f, err := os.Open(filepath.Join(dir, name))
	assert.NoError(err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	assert.NoError(err)

	assert.Equal(100, buf.Format.SampleRate)
	assert.Equal([]int{1, 2, 0, 3, 4}, buf.Data)
}

func TestArchiveSkipsEmptyUtterance(t *testing.T) {
	t.Parallel()

	assert := require.New(t)

	dir := t.TempDir()

	a, err := archive.New(&archive.Config{Enabled: true, Dir: dir})
	assert.NoError(err)

	assert.NoError(a.Archive(context.Background(), nil, 100, 1.0))

	entries, err := os.ReadDir(dir)
	assert.NoError(err)
	assert.Empty(entries)
}
