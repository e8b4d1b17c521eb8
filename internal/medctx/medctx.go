// Package medctx loads the optional medication-name context injected
// into model prompts. The fuzzy-matching subsystem producing the list is
// external; here it is just an opaque, size-bounded string.
package medctx

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// maxBytes bounds the context so a runaway file cannot blow up prompts.
const maxBytes = 64 * 1024

// FileProvider reads the medication list from a file once and caches it.
type FileProvider struct {
	Path string

	once   sync.Once
	cached string
	err    error
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path}
}

func (p *FileProvider) MedicationContext(ctx context.Context) (string, error) {
	p.once.Do(func() {
		data, err := os.ReadFile(p.Path)
		if err != nil {
			p.err = fmt.Errorf("read medication context %s: %w", p.Path, err)
			return
		}
		if len(data) > maxBytes {
			data = data[:maxBytes]
		}
		p.cached = string(data)
	})
	return p.cached, p.err
}
