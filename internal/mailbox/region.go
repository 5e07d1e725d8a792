package mailbox

import "fmt"

// mailboxSize is the exact byte size of the shared command struct (see
// package doc comment in mailbox.go for the field layout).
const mailboxSize = 14

// Region is a fixed-size byte-addressable backing store for the
// mailbox struct. The unix-backed implementation (region_unix.go) maps
// a real file shared with the motor firmware; MemRegion is an
// in-process stand-in used by tests and by antctl's fake-laser mode
// (-f).
type Region interface {
	// Bytes returns the backing storage. Its length is always
	// mailboxSize. Callers synchronize access to individual fields
	// themselves (see Mailbox).
	Bytes() []byte
	Close() error
}

// MemRegion is an in-memory Region, useful for tests and for running
// the controller without real firmware attached (fake-laser mode).
type MemRegion struct {
	buf [mailboxSize]byte
}

// NewMemRegion returns a zeroed in-memory mailbox region.
func NewMemRegion() *MemRegion { return &MemRegion{} }

func (m *MemRegion) Bytes() []byte { return m.buf[:] }
func (m *MemRegion) Close() error  { return nil }

var _ Region = (*MemRegion)(nil)

func ensureSize(b []byte) error {
	if len(b) < mailboxSize {
		return fmt.Errorf("mailbox: region too small: got %d bytes, need %d", len(b), mailboxSize)
	}
	return nil
}
