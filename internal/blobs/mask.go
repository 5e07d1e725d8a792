package blobs

// Mask is a single-channel 8-bit image, stored with each row padded to
// a multiple of 8 bytes so the raster-scan word-stride test in Extract
// can always read a full uint64 without running past the allocated
// buffer, even when W is not itself a multiple of 8. Padding columns
// are always zero and are never reported as part of a blob.
type Mask struct {
	W, H   int
	stride int // row stride in bytes, W rounded up to a multiple of 8, plus 8
	Data   []byte
}

// NewMask allocates a zeroed W x H mask. The row stride is padded to a
// multiple of 8 plus one extra trailing word, so that a word-aligned
// 8-byte scan starting at any unaligned column within the row never
// reads past the row's own storage (Open Question (b)).
func NewMask(w, h int) *Mask {
	stride := ((w + 7) &^ 7) + 8
	return &Mask{W: w, H: h, stride: stride, Data: make([]byte, stride*h)}
}

// Get returns the mask value at (x,y). x,y must be in [0,W)x[0,H).
func (m *Mask) Get(x, y int) byte { return m.Data[y*m.stride+x] }

// Set writes the mask value at (x,y).
func (m *Mask) Set(x, y int, v byte) { m.Data[y*m.stride+x] = v }

// Stride returns the row stride in bytes (>= W, a multiple of 8).
func (m *Mask) Stride() int { return m.stride }
