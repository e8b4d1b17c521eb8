package medctx

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medications.txt")
	require.NoError(t, os.WriteFile(path, []byte("amoxicillin\nibuprofen\n"), 0o644))

	p := NewFileProvider(path)
	got, err := p.MedicationContext(context.Background())
	require.NoError(t, err)
	assert.Contains(t, got, "amoxicillin")

	// The file is read once; later edits are not observed
	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o644))
	again, err := p.MedicationContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestFileProvider_MissingFile(t *testing.T) {
	p := NewFileProvider(filepath.Join(t.TempDir(), "absent.txt"))
	_, err := p.MedicationContext(context.Background())
	assert.Error(t, err)
}

func TestFileProvider_TruncatesOversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huge.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("a", maxBytes+100)), 0o644))

	p := NewFileProvider(path)
	got, err := p.MedicationContext(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, maxBytes)
}
