package api

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/jab.report/internal/db"
)

// templatePath is a migrated database that each test copies, so the
// migrations run once per package rather than once per test.
var templatePath string

func TestMain(m *testing.M) {
	os.Exit(runTestMain(m))
}

func runTestMain(m *testing.M) int {
	tmpDir, err := os.MkdirTemp("", "jab-api-template-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create template directory: %v\n", err)
		return 1
	}
	defer os.RemoveAll(tmpDir)

	templatePath = filepath.Join(tmpDir, "template.db")
	template, err := db.NewDB(templatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise template DB: %v\n", err)
		return 1
	}
	if _, err := template.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to checkpoint template DB: %v\n", err)
		template.Close()
		return 1
	}
	if err := template.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close template DB: %v\n", err)
		return 1
	}
	return m.Run()
}

// newTestStore opens a private copy of the template database.
func newTestStore(t *testing.T) *db.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, copyFile(templatePath, path))
	store, err := db.NewDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
