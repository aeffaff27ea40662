//go:build !unix

package mmfile

import (
	"fmt"
	"io"

	"golang.org/x/exp/mmap"
)

// Map reads the file through a temporary read-only mapping into a heap
// buffer. The returned cleanup is a no-op kept for signature parity with the
// unix implementation.
func Map(path string) ([]byte, func() error, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	data := make([]byte, r.Len())
	if _, err := r.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("mmfile: read %s: %w", path, err)
	}
	return data, func() error { return nil }, nil
}
