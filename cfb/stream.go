package cfb

import (
	"fmt"

	"github.com/EldooRado/MsiAnalyzer/internal/format"
	"github.com/EldooRado/MsiAnalyzer/pkg/types"
)

// ReadStream returns the contents of the stream whose decoded name is name.
//
// Streams up to the mini-stream cutoff (4096 bytes) are read from the
// mini-stream through the mini-FAT, larger ones from the file through the
// FAT. A name that resolves to a storage or the root yields (nil, nil) and a
// warning diagnostic. The returned slice is a copy owned by the caller.
func (c *Container) ReadStream(name string) ([]byte, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	i, ok := c.byName[name]
	if !ok {
		return nil, types.Wrap(types.ErrStreamNotFound, name, nil)
	}
	e := c.entries[i]
	if e.Type != EntryStream {
		_ = c.warn(types.Diagnostic{
			Severity:  types.SevWarning,
			Code:      types.DiagNotAStream,
			Structure: "DIRECTORY",
			Issue:     fmt.Sprintf("%q is a %s, not a stream", name, e.Type),
			Context:   &types.DiagContext{Stream: name, Entry: e.Index},
		})
		return nil, nil
	}
	if e.Size > c.opts.Limits.MaxStreamSize {
		return nil, types.Wrap(types.ErrBudgetExceeded,
			fmt.Sprintf("stream %q declares %d bytes, limit %d", name, e.Size, c.opts.Limits.MaxStreamSize), nil)
	}

	req := chainRead{
		start:  e.Start,
		length: e.Size,
		what:   "stream " + name,
	}
	if e.Size <= format.MiniStreamCutoff {
		req.src = c.miniStream
		req.chain = c.miniFAT
		req.sectorSize = c.head.MiniSectorSize()
		req.mini = true
	} else {
		req.src = c.data
		req.chain = c.fat
		req.sectorSize = c.sectorSize
	}
	data, err := c.readChain(req)
	if err != nil {
		return nil, fmt.Errorf("cfb: read %q: %w", name, err)
	}
	c.log.Debug("stream read", "stream", name, "size", len(data), "mini", req.mini)
	return data, nil
}
