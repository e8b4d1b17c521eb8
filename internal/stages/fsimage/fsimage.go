// Package fsimage is a filesystem-backed ImageSource used by the process
// command and tests. Production deployments plug in an object-storage
// source instead.
package fsimage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"rxreader/internal/stages"
)

type Source struct {
	// Root confines lookups to a directory; empty means any path.
	Root string
}

var _ stages.ImageSource = (*Source)(nil)

func New(root string) *Source {
	return &Source{Root: root}
}

func (s *Source) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	path := ref
	if s.Root != "" {
		path = filepath.Join(s.Root, filepath.Clean("/"+ref))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read image %s: %w", ref, err)
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}
