package thumbs

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngPayload = base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\nfake"))

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("d1", "data:image/png;base64,"+pngPayload))
	assert.True(t, s.Exists("d1"))

	got, err := s.Load("d1")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,"+pngPayload, got)
}

func TestLoadMissingReturnsEmpty(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Load("nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSaveRejectsSVG(t *testing.T) {
	s := newTestStore(t)

	svg := base64.StdEncoding.EncodeToString([]byte("<svg onload=alert(1)/>"))
	err := s.Save("d1", "data:image/svg+xml;base64,"+svg)
	require.Error(t, err)
	assert.False(t, s.Exists("d1"))
}

func TestSaveRejectsMalformedDataURL(t *testing.T) {
	s := newTestStore(t)

	for _, bad := range []string{
		"not a url",
		"data:image/png,rawpayload",
		"data:image/png;base64,%%%",
	} {
		assert.Error(t, s.Save("d1", bad), bad)
	}
}

func TestSanitizeIDBlocksTraversal(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("../../etc/passwd", "data:image/png;base64,"+pngPayload))

	// The file lands inside the store dir under a sanitized name.
	ids, err := s.List()
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "______etc_passwd", ids[0])

	_, err = os.Stat(filepath.Join(s.Dir(), "______etc_passwd.png"))
	require.NoError(t, err)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("d1", "data:image/png;base64,"+pngPayload))
	require.NoError(t, s.Delete("d1"))
	assert.False(t, s.Exists("d1"))
	require.NoError(t, s.Delete("d1"))
}

func TestCleanupOrphans(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("live", "data:image/png;base64,"+pngPayload))
	require.NoError(t, s.Save("orphan-old", "data:image/png;base64,"+pngPayload))
	require.NoError(t, s.Save("orphan-new", "data:image/png;base64,"+pngPayload))

	// Age two of the files past the grace window.
	old := time.Now().Add(-10 * time.Minute)
	for _, id := range []string{"live", "orphan-old"} {
		require.NoError(t, os.Chtimes(filepath.Join(s.Dir(), id+".png"), old, old))
	}

	deleted, err := s.CleanupOrphans(map[string]struct{}{"live": {}}, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	// Live file kept, fresh orphan kept (within grace), old orphan gone.
	assert.True(t, s.Exists("live"))
	assert.True(t, s.Exists("orphan-new"))
	assert.False(t, s.Exists("orphan-old"))
}
