// Package blobs implements the 4-connected flood-fill extractor that
// groups foreground-mask pixels into bounded blob records.
package blobs

import (
	"encoding/binary"

	"github.com/rgbond/antctl/internal/monitoring"
)

// Rect is an axis-aligned integer bounding rectangle in full-frame
// coordinates.
type Rect struct {
	X, Y, W, H int
}

// Blob is one connected component found by Extract.
type Blob struct {
	Rect   Rect
	Xc, Yc int // centroid, pixel-weighted mean, rounded down
	Npix   int
}

// ROI bounds the raster-scan seed search; the flood fill itself is not
// clipped to ROI (neighbors anywhere within the mask are followed),
// matching the original extractor.
type ROI struct {
	X, Y, W, H int
}

// Variant selects how visited pixels are marked and which side of
// Thresh counts as "inside": the ant variant reads a `<thresh` mask
// read-only and tracks visited pixels in a separate bitmap; the laser
// variant reads a `>thresh` mask and marks visited pixels by
// overwriting them to Thresh in place (doubling as the "already
// consumed" signal and matching the caller's laser=250 convention).
type Variant int

const (
	AntVariant Variant = iota
	LaserVariant
)

const maxBlobPixels = 2000
const maxSeedsPerFrame = 1000
const minBlobPixels = 3

// Keepout reports whether (x,y), scaled by scale, is out of bounds and
// must not be visited by the flood fill.
type Keepout func(x, y, scale int) bool

// Extract scans roi for seed pixels satisfying Thresh/Variant and not
// yet visited, flood-fills each 4-connected component, and returns the
// resulting blob list. ok is false if any component exceeded 2000
// pixels or the frame produced more than 1000 seed candidates, in
// which case blobs is empty and the caller should treat the frame's
// extraction as failed (Invariants 1-2).
//
// scale multiplies reported coordinates and dimensions, for running
// the extractor against a downsampled mask (e.g. the half-resolution
// foreground mask).
func Extract(mask *Mask, roi ROI, thresh byte, variant Variant, keepout Keepout, scale int) (blobsOut []Blob, ok bool) {
	var visited []bool
	if variant == AntVariant {
		visited = make([]bool, mask.W*mask.H)
	}

	inside := func(v byte) bool {
		if variant == LaserVariant {
			return v > thresh
		}
		return v < thresh
	}

	isVisited := func(x, y int) bool {
		if variant == LaserVariant {
			return mask.Get(x, y) == thresh
		}
		return visited[y*mask.W+x]
	}

	markVisited := func(x, y int) {
		if variant == LaserVariant {
			mask.Set(x, y, thresh)
		} else {
			visited[y*mask.W+x] = true
		}
	}

	seeds := 0
	xs, ys := roi.X, roi.Y
	xe, ye := roi.X+roi.W, roi.Y+roi.H

	for y := ys; y < ye; y++ {
		rowOff := y * mask.Stride()
		for x := xs; x < xe; x += 8 {
			word := binary.LittleEndian.Uint64(mask.Data[rowOff+x : rowOff+x+8])
			if word == 0 {
				continue
			}
			limit := x + 8
			if limit > xe {
				limit = xe
			}
			for x1 := x; x1 < limit && x1 < mask.W; x1++ {
				if keepout(x1, y, scale) {
					continue
				}
				v := mask.Get(x1, y)
				if !inside(v) || isVisited(x1, y) {
					continue
				}
				seeds++
				if seeds > maxSeedsPerFrame {
					monitoring.Logf("blobs: more than %d blob candidates, dropping frame", maxSeedsPerFrame)
					return nil, false
				}
				b, overflowed := floodFill(mask, x1, y, thresh, variant, keepout, scale, isVisited, markVisited)
				if overflowed {
					monitoring.Logf("blobs: blob overflow at (%d,%d), dropping frame", x1, y)
					return nil, false
				}
				if b.Npix >= minBlobPixels {
					blobsOut = append(blobsOut, b)
				}
			}
		}
	}
	return blobsOut, true
}

func floodFill(mask *Mask, x0, y0 int, thresh byte, variant Variant, keepout Keepout, scale int, isVisited func(x, y int) bool, markVisited func(x, y int)) (Blob, bool) {
	type pt struct{ x, y int }
	stack := []pt{{x0, y0}}

	left, top := mask.W, mask.H
	right, bottom := 0, 0
	var xtot, ytot int64
	npix := 0

	inside := func(v byte) bool {
		if variant == LaserVariant {
			return v > thresh
		}
		return v < thresh
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := p.x, p.y

		if !inside(mask.Get(x, y)) || isVisited(x, y) {
			continue
		}
		markVisited(x, y)

		if x < left {
			left = x
		}
		if y < top {
			top = y
		}
		if x > right {
			right = x
		}
		if y > bottom {
			bottom = y
		}
		xtot += int64(x)
		ytot += int64(y)
		npix++

		if npix > maxBlobPixels {
			return Blob{}, true
		}

		if y > 0 && inside(mask.Get(x, y-1)) && !isVisited(x, y-1) && !keepout(x, y-1, scale) {
			stack = append(stack, pt{x, y - 1})
		}
		if x > 0 && inside(mask.Get(x-1, y)) && !isVisited(x-1, y) && !keepout(x-1, y, scale) {
			stack = append(stack, pt{x - 1, y})
		}
		if y < mask.H-1 && inside(mask.Get(x, y+1)) && !isVisited(x, y+1) && !keepout(x, y+1, scale) {
			stack = append(stack, pt{x, y + 1})
		}
		if x < mask.W-1 && inside(mask.Get(x+1, y)) && !isVisited(x+1, y) && !keepout(x+1, y, scale) {
			stack = append(stack, pt{x + 1, y})
		}
	}

	if npix == 0 {
		return Blob{}, false
	}

	return Blob{
		Rect: Rect{
			X: left * scale,
			Y: top * scale,
			W: (right - left + 1) * scale,
			H: (bottom - top + 1) * scale,
		},
		Xc:   int(xtot) * scale / npix,
		Yc:   int(ytot) * scale / npix,
		Npix: npix,
	}, false
}

// NoKeepout is a Keepout that never rejects a pixel, useful for tests
// and for masks already clipped to the legal frame bounds.
func NoKeepout(x, y, scale int) bool { return false }
