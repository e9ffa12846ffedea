// Package fifo provides the transactional word channel between the host
// side, which writes scanline instructions, and the synchronization engine,
// which consumes them. Writes become visible to the consumer only after
// CommitWrite; reads advance a provisional pointer that CommitRead makes
// permanent and DiscardRead rewinds, so a line can be replayed instead of
// consumed.
package fifo

import "errors"

// DefaultDepth is the default buffer capacity in words.
const DefaultDepth = 256

var (
	// ErrFull is returned by Write when no space is left.
	ErrFull = errors.New("fifo full")
	// ErrEmpty is returned by EnableRead when no committed word is available.
	ErrEmpty = errors.New("fifo empty")
	// ErrReadPending is returned by EnableRead when the previous staged word
	// has not been consumed with ReadData yet.
	ErrReadPending = errors.New("fifo read already enabled")
)

// Transactional is a single-producer/single-consumer circular buffer of
// 64-bit words. Words are delivered in write order; a committed word is
// never delivered again; a discarded word is delivered again unchanged.
type Transactional struct {
	buf  []uint64
	size int

	write       int // provisional write position
	writeCommit int // words before this are visible to the consumer

	read       int // provisional read position
	readCommit int // words before this are consumed for good

	staged  uint64 // word made visible by the last EnableRead
	pending bool   // staged word not yet taken with ReadData
}

// New creates a Transactional buffer with the specified capacity in words.
func New(capacity int) *Transactional {
	if capacity <= 0 {
		capacity = DefaultDepth
	}
	return &Transactional{
		buf:  make([]uint64, capacity+1),
		size: capacity + 1,
	}
}

// Write stages one word on the producer side. The word is not visible to
// the consumer until CommitWrite.
func (f *Transactional) Write(w uint64) error {
	next := (f.write + 1) % f.size
	if next == f.readCommit {
		return ErrFull
	}
	f.buf[f.write] = w
	f.write = next
	return nil
}

// CommitWrite publishes all staged words to the consumer side.
func (f *Transactional) CommitWrite() {
	f.writeCommit = f.write
}

// EnableRead stages the oldest unconsumed word; it is available via
// ReadData one tick later. At most one read may be enabled before the
// staged word is taken.
func (f *Transactional) EnableRead() error {
	if f.pending {
		return ErrReadPending
	}
	if f.read == f.writeCommit {
		return ErrEmpty
	}
	f.staged = f.buf[f.read]
	f.read = (f.read + 1) % f.size
	f.pending = true
	return nil
}

// ReadData returns the word staged by the last EnableRead. The value holds
// until the next EnableRead, mirroring a registered data line.
func (f *Transactional) ReadData() uint64 {
	f.pending = false
	return f.staged
}

// CommitRead finalizes every word consumed since the last commit; they will
// not be delivered again.
func (f *Transactional) CommitRead() {
	f.readCommit = f.read
	f.pending = false
}

// DiscardRead rewinds every word consumed since the last commit so they are
// delivered again unchanged. Used by the engine in single-line repeat mode.
func (f *Transactional) DiscardRead() {
	f.read = f.readCommit
	f.pending = false
}

// Empty reports whether no committed word is left to stage.
func (f *Transactional) Empty() bool {
	return f.read == f.writeCommit
}

// Full reports whether the producer side has no space left.
func (f *Transactional) Full() bool {
	return (f.write+1)%f.size == f.readCommit
}

// Available returns the number of committed words not yet staged.
func (f *Transactional) Available() int {
	return (f.writeCommit - f.read + f.size) % f.size
}

// Reset clears the buffer and both transactions.
func (f *Transactional) Reset() {
	f.write = 0
	f.writeCommit = 0
	f.read = 0
	f.readCommit = 0
	f.pending = false
}
