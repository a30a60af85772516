// Package blocklist holds the set of administratively blocked domains and
// answers whether a queried name falls under one of them.
package blocklist

import (
	"sync"
	"sync/atomic"

	"github.com/russdns/russdns/config"
)

// BlockList type
type BlockList struct {
	files  []string
	manual []string

	current atomic.Pointer[Snapshot]

	// serializes reloads; readers never take it
	reloadMu sync.Mutex
}

// New returns a BlockList with an empty snapshot. Call Reload to read the
// configured files.
func New(cfg *config.Config) *BlockList {
	b := &BlockList{
		files:  cfg.BlockListFiles,
		manual: cfg.Blocklist,
	}

	b.current.Store(NewSnapshot())

	return b
}

// NewWithSnapshot returns a BlockList serving s. It has no files to reload.
func NewWithSnapshot(s *Snapshot) *BlockList {
	b := new(BlockList)
	b.Replace(s)
	return b
}

// Snapshot returns the snapshot currently in effect.
func (b *BlockList) Snapshot() *Snapshot {
	return b.current.Load()
}

// Replace atomically swaps in s. Readers holding the previous snapshot keep
// using it until they are done.
func (b *BlockList) Replace(s *Snapshot) {
	if s == nil {
		s = NewSnapshot()
	}
	b.current.Store(s)
}

// Exists reports whether name is blocked by the current snapshot.
func (b *BlockList) Exists(name string) bool {
	return b.current.Load().Blocks(name)
}

// Length returns the number of listed domains.
func (b *BlockList) Length() int {
	return b.current.Load().Len()
}

// Files returns the configured blocklist files.
func (b *BlockList) Files() []string {
	return b.files
}
