//go:build unix

package mailbox

import (
	"fmt"
	"os"
	"syscall"
)

// FileRegion is a Region backed by a memory-mapped file, shared with
// the motor firmware process exactly as the original controller's
// mmap("/home/rgb/shmem", ...) did.
type FileRegion struct {
	f   *os.File
	buf []byte
}

// OpenFileRegion opens (creating if necessary) the shared-memory file
// at path, ensures it is at least mailboxSize bytes, and maps it
// PROT_READ|PROT_WRITE, MAP_SHARED.
func OpenFileRegion(path string) (*FileRegion, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("mailbox: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mailbox: stat %s: %w", path, err)
	}
	if info.Size() < mailboxSize {
		if err := f.Truncate(mailboxSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("mailbox: truncate %s: %w", path, err)
		}
	}

	buf, err := syscall.Mmap(int(f.Fd()), 0, mailboxSize, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mailbox: mmap %s: %w", path, err)
	}

	return &FileRegion{f: f, buf: buf}, nil
}

func (r *FileRegion) Bytes() []byte { return r.buf }

func (r *FileRegion) Close() error {
	err := syscall.Munmap(r.buf)
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	return err
}

var _ Region = (*FileRegion)(nil)
