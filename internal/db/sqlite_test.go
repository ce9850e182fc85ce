package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDefaultDBPath asserts the default path always resolves to the
// reminders database, home directory or not.
func TestDefaultDBPath(t *testing.T) {
	t.Parallel()

	path := DefaultDBPath()
	require.NotEmpty(t, path)
	require.Equal(t, "reminders.db", filepath.Base(path))
	require.Equal(t, ".organizador", filepath.Base(filepath.Dir(path)))
}
