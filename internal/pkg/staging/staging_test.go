package staging

import (
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArea(t *testing.T) (*Area, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	a, err := New(fs, "/staging")
	require.NoError(t, err)
	return a, fs
}

func TestStageOpenRemove(t *testing.T) {
	a, fs := newArea(t)

	path, n, err := a.Stage("photo.jpg", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "/staging", filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "-photo.jpg"))

	rc, err := a.Open(path)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "payload", string(data))

	require.NoError(t, a.Remove(path))
	exists, _ := afero.Exists(fs, path)
	assert.False(t, exists)

	// second remove is a no-op
	assert.NoError(t, a.Remove(path))
}

func TestStageSanitisesName(t *testing.T) {
	a, _ := newArea(t)

	path, _, err := a.Stage("../../etc/pass wd", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "/staging", filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "-pass_wd"))
}

func TestOpenRejectsForeignPaths(t *testing.T) {
	a, fs := newArea(t)
	require.NoError(t, afero.WriteFile(fs, "/etc/secret", []byte("s"), 0o600))

	_, err := a.Open("/etc/secret")
	assert.Error(t, err)
	assert.Error(t, a.Remove("/staging/../etc/secret"))
}

func TestSweep(t *testing.T) {
	a, fs := newArea(t)
	old, _, err := a.Stage("old.png", strings.NewReader("o"))
	require.NoError(t, err)
	fresh, _, err := a.Stage("fresh.png", strings.NewReader("f"))
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, fs.Chtimes(old, past, past))

	removed, err := a.Sweep(time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	ok, _ := afero.Exists(fs, old)
	assert.False(t, ok)
	ok, _ = afero.Exists(fs, fresh)
	assert.True(t, ok)
}
