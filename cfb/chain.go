package cfb

import (
	"fmt"

	"github.com/EldooRado/MsiAnalyzer/internal/buf"
	"github.com/EldooRado/MsiAnalyzer/internal/format"
	"github.com/EldooRado/MsiAnalyzer/pkg/types"
)

// Chain is a sector allocation table: entry i holds the sector that follows
// sector i, or one of the format sentinels. The FAT and the mini-FAT are both
// Chains.
type Chain []uint32

// Next returns the successor of sector. ok is false when sector is not an
// index into the chain.
func (ch Chain) Next(sector uint32) (uint32, bool) {
	if uint64(sector) >= uint64(len(ch)) {
		return 0, false
	}
	return ch[sector], true
}

// Walk follows the chain from start and returns the visited sectors. A walk
// never takes more than len(ch) steps. A chain that ends on a sentinel other
// than END_OF_CHAIN returns the sectors visited so far together with an error
// matching types.ErrChainNotTerminated.
func (ch Chain) Walk(start uint32) ([]uint32, error) {
	var sectors []uint32
	it := ch.iter(start)
	for it.Next() {
		sectors = append(sectors, it.Sector())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	if !it.Terminated() {
		return sectors, types.Wrap(types.ErrChainNotTerminated,
			fmt.Sprintf("chain from sector %d ends on 0x%08X", start, it.end), nil)
	}
	return sectors, nil
}

// chainIter walks a Chain one sector at a time. The step counter bounds the
// walk at len(chain) sectors, which is the longest acyclic chain possible.
type chainIter struct {
	chain Chain
	cur   uint32
	next  uint32
	steps int
	end   uint32 // sentinel that stopped the walk
	done  bool
	err   error
}

func (ch Chain) iter(start uint32) *chainIter {
	return &chainIter{chain: ch, next: start}
}

// Next advances to the next sector. It returns false at a sentinel or on error.
func (it *chainIter) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	s := it.next
	if s > format.MaxRegSect {
		it.end = s
		it.done = true
		return false
	}
	if uint64(s) >= uint64(len(it.chain)) {
		it.err = types.Wrap(types.ErrOutOfBounds,
			fmt.Sprintf("sector %d beyond chain of %d entries", s, len(it.chain)), nil)
		return false
	}
	if it.steps >= len(it.chain) {
		it.err = types.Wrap(types.ErrChainCycle,
			fmt.Sprintf("more than %d steps", len(it.chain)), nil)
		return false
	}
	it.steps++
	it.cur = s
	it.next = it.chain[s]
	return true
}

func (it *chainIter) Sector() uint32 { return it.cur }

func (it *chainIter) Err() error { return it.err }

// Terminated reports whether the walk stopped on END_OF_CHAIN.
func (it *chainIter) Terminated() bool { return it.done && it.end == format.EndOfChain }

// chainRead describes one sector-chained read.
type chainRead struct {
	src        []byte
	chain      Chain
	start      uint32
	length     uint64
	sectorSize uint32
	mini       bool   // mini-stream reads are not offset by the header sector
	what       string // for diagnostics
}

// readChain reassembles length bytes from the sectors reached from start.
// The returned buffer is a fresh copy owned by the caller.
func (c *Container) readChain(r chainRead) ([]byte, error) {
	if r.length == 0 {
		return []byte{}, nil
	}
	if r.sectorSize == 0 {
		return nil, types.Wrap(types.ErrInvalidHeader, "zero sector size", nil)
	}
	pieces := buf.CeilDiv(r.length, uint64(r.sectorSize))
	if pieces > uint64(len(r.chain)) {
		return nil, types.Wrap(types.ErrChainCycle,
			fmt.Sprintf("%s: %d bytes need %d sectors, chain has %d", r.what, r.length, pieces, len(r.chain)), nil)
	}
	if err := c.charge(r.length); err != nil {
		return nil, err
	}
	n, ok := buf.ToInt(r.length)
	if !ok {
		return nil, types.Wrap(types.ErrBudgetExceeded, r.what, nil)
	}

	out := make([]byte, n)
	it := r.chain.iter(r.start)
	var filled uint64
	for p := uint64(0); p < pieces; p++ {
		if !it.Next() {
			if err := it.Err(); err != nil {
				return nil, fmt.Errorf("%s: %w", r.what, err)
			}
			return nil, types.Wrap(types.ErrOutOfBounds,
				fmt.Sprintf("%s: chain ends after %d of %d sectors", r.what, p, pieces), nil)
		}
		sector := uint64(it.Sector())
		if !r.mini {
			sector++
		}
		off := sector * uint64(r.sectorSize)
		want := uint64(r.sectorSize)
		if rest := r.length - filled; rest < want {
			want = rest
		}
		piece, ok := buf.Slice64(r.src, off, want)
		if !ok {
			return nil, types.Wrap(types.ErrTruncatedRead,
				fmt.Sprintf("%s: sector %d at offset %d", r.what, it.Sector(), off), nil)
		}
		copy(out[filled:], piece)
		filled += want
	}

	if it.next != format.EndOfChain {
		s := it.Sector()
		d := types.Diagnostic{
			Severity:  types.SevWarning,
			Code:      types.DiagChainNotTerminated,
			Structure: chainStructure(r.mini),
			Issue:     fmt.Sprintf("%s: chain continues to 0x%08X after the last needed sector", r.what, it.next),
			Context:   &types.DiagContext{Sector: &s},
		}
		if err := c.warn(d); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func chainStructure(mini bool) string {
	if mini {
		return "MINIFAT"
	}
	return "FAT"
}
