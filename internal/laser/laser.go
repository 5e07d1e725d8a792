// Package laser locates the tracking laser's dot in a frame: a small,
// very bright blob near a given search point.
package laser

import (
	"github.com/rgbond/antctl/internal/blobs"
	"github.com/rgbond/antctl/internal/classify"
	"github.com/rgbond/antctl/internal/frame"
)

// LaserThresh is both the foreground threshold used to extract laser
// blobs and the brightness floor a pixel must clear to count as part
// of the laser dot itself — the laser is expected to saturate well
// past the general foreground cutoff.
const LaserThresh = 250

// defaultMinBlobPixels is the minimum blob size, in pixels, to even
// consider a candidate as the laser.
const defaultMinBlobPixels = 80

// defaultMinBrightPixels is the minimum count of saturated foreground
// pixels (heuristic path) required to confirm a candidate blob as the
// laser.
const defaultMinBrightPixels = 60

// defaultNeuralThreshold is the minimum classifier laser-class
// probability (neural path) required to confirm a candidate blob as
// the laser.
const defaultNeuralThreshold = 0.9

// Point is an integer pixel coordinate.
type Point struct{ X, Y int }

// Locator searches a window of the current frame for the laser dot.
// MinBlobPixels, MinBrightPixels, and NeuralThreshold are tunable;
// leaving them at the zero value selects the rig's built-in defaults.
type Locator struct {
	Classifier      classify.Classifier // nil selects the heuristic path
	MinBlobPixels   int
	MinBrightPixels int
	NeuralThreshold float64
}

func (l *Locator) minBlobPixels() int {
	if l.MinBlobPixels > 0 {
		return l.MinBlobPixels
	}
	return defaultMinBlobPixels
}

func (l *Locator) minBrightPixels() int {
	if l.MinBrightPixels > 0 {
		return l.MinBrightPixels
	}
	return defaultMinBrightPixels
}

func (l *Locator) neuralThreshold() float64 {
	if l.NeuralThreshold > 0 {
		return l.NeuralThreshold
	}
	return defaultNeuralThreshold
}

// Find searches a size x size window centered on (xc,yc) for the
// laser. mask is the foreground mask already thresholded at the
// caller's general level; Find re-extracts blobs from it at
// LaserThresh restricted to the window, so mask must still hold the
// frame's raw intensities there (not yet consumed by an earlier
// extraction pass over the same region). On success it returns the
// blob's centroid and bounding box. Every blob extracted from the
// window, qualifying or not, has its mask pixels overwritten to
// LaserThresh, as blobs.Extract's laser variant does.
func (l *Locator) Find(mask *blobs.Mask, img *frame.Image, xc, yc, size int, keepout blobs.Keepout) (center Point, box blobs.Rect, found bool) {
	halfSize := size / 2
	xs := max(xc-halfSize, 0)
	ys := max(yc-halfSize, 0)
	xe := min(xc+halfSize, mask.W)
	ye := min(yc+halfSize, mask.H)

	roi := blobs.ROI{X: xs, Y: ys, W: xe - xs, H: ye - ys}
	candidates, ok := blobs.Extract(mask, roi, LaserThresh, blobs.LaserVariant, keepout, 1)
	if !ok {
		return Point{}, blobs.Rect{}, false
	}

	for _, b := range candidates {
		if b.Npix <= l.minBlobPixels() {
			continue
		}
		if l.isLaser(b, mask, img) {
			return Point{b.Xc, b.Yc}, b.Rect, true
		}
	}
	return Point{}, blobs.Rect{}, false
}

func (l *Locator) isLaser(b blobs.Blob, mask *blobs.Mask, img *frame.Image) bool {
	if l.Classifier != nil {
		p := l.Classifier.Classify(img, b.Xc, b.Yc)
		return p[classify.ClassLaser] > l.neuralThreshold()
	}
	count := 0
	for y := b.Rect.Y; y < b.Rect.Y+b.Rect.H; y++ {
		for x := b.Rect.X; x < b.Rect.X+b.Rect.W; x++ {
			if mask.Get(x, y) == LaserThresh && img.At(x, y) > LaserThresh {
				count++
			}
		}
	}
	return count > l.minBrightPixels()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
