package archive

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelusa-v/chatroom/internal/session"
)

func TestAppendLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Append("alice", session.UserKey(2), session.TextEntry("bob", "hi")))
	require.NoError(t, s.Append("alice", session.ChatKey(5), session.FileEntry("alice", "a.bin", []byte{0, 1, 2})))
	require.NoError(t, s.Append("bob", session.UserKey(1), session.TextEntry("bob", "hi")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, []session.Record{
		{Key: session.UserKey(2), Entry: session.TextEntry("bob", "hi")},
		{Key: session.ChatKey(5), Entry: session.FileEntry("alice", "a.bin", []byte{0, 1, 2})},
	}, got)

	none, err := s.Load("carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
