package sqlite3

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxbot/go-wxhttp/db"
)

func TestFileRecords(t *testing.T) {
	s := &database{path: filepath.Join(t.TempDir(), "file.db")}
	require.NoError(t, s.Open())
	t.Cleanup(func() { _ = s.db.Close() })

	require.NoError(t, s.InsertFile(&db.StoredFile{ID: "x", Path: "p", Name: "n", CreatedAt: 10, Temp: true}))
	require.NoError(t, s.InsertFile(&db.StoredFile{ID: "y", Path: "q", Name: "m", CreatedAt: 20}))

	f, err := s.GetFile("x")
	require.NoError(t, err)
	assert.Equal(t, &db.StoredFile{ID: "x", Path: "p", Name: "n", CreatedAt: 10, Temp: true}, f)

	_, err = s.GetFile("z")
	assert.ErrorIs(t, err, db.ErrNotFound)

	old, err := s.FilesBefore(15)
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, "x", old[0].ID)

	require.NoError(t, s.DeleteFile("x"))
	_, err = s.GetFile("x")
	assert.ErrorIs(t, err, db.ErrNotFound)
}
