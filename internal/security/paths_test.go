package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "clips"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "clips", "jab.mov"), []byte("x"), 0o644))

	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{"existing file", filepath.Join(root, "clips", "jab.mov"), true},
		{"not yet written", filepath.Join(root, "clips", "next.mov"), true},
		{"root itself", root, true},
		{"dot dot escape", filepath.Join(root, "clips", "..", "..", "etc", "passwd"), false},
		{"sibling prefix", root + "-other/jab.mov", false},
		{"absolute elsewhere", "/etc/passwd", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, root)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrOutsideDirectory)
			}
		})
	}
}

func TestValidatePathWithinDirectory_SymlinkedParent(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	err := ValidatePathWithinDirectory(filepath.Join(link, "new.mov"), root)
	assert.ErrorIs(t, err, ErrOutsideDirectory)
}

func TestValidatePathWithinDirectory_MissingRoot(t *testing.T) {
	err := ValidatePathWithinDirectory("/tmp/x", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"jab_1234.mov":         "jab_1234.mov",
		"my jab (left).mov":    "my_jab_left_.mov",
		"../../etc/passwd":     "etc_passwd",
		"":                     "recording",
		"...":                  "recording",
		"ünïcode-name.pose.log": "n_code-name.pose.log",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), "input %q", in)
	}
}
