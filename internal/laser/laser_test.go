package laser

import (
	"testing"

	"github.com/rgbond/antctl/internal/blobs"
	"github.com/rgbond/antctl/internal/classify"
	"github.com/rgbond/antctl/internal/frame"
	"github.com/stretchr/testify/require"
)

func fillMaskRect(m *blobs.Mask, x, y, w, h int, v byte) {
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			m.Set(xx, yy, v)
		}
	}
}

func fillImgRect(im *frame.Image, x, y, w, h int, v byte) {
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			im.Set(xx, yy, v)
		}
	}
}

func TestFindLaserLocatesBrightBlob(t *testing.T) {
	mask := blobs.NewMask(200, 200)
	img := frame.NewImage(200, 200)

	fillMaskRect(mask, 95, 95, 10, 10, 255) // >80px, >60 bright px once scored
	fillImgRect(img, 95, 95, 10, 10, 255)

	loc := &Locator{}
	center, _, found := loc.Find(mask, img, 100, 100, 100, blobs.NoKeepout)
	require.True(t, found)
	require.InDelta(t, 99, center.X, 1)
	require.InDelta(t, 99, center.Y, 1)
}

func TestFindLaserRejectsSmallBlob(t *testing.T) {
	mask := blobs.NewMask(200, 200)
	img := frame.NewImage(200, 200)

	fillMaskRect(mask, 99, 99, 3, 3, 255)
	fillImgRect(img, 99, 99, 3, 3, 255)

	loc := &Locator{}
	_, _, found := loc.Find(mask, img, 100, 100, 100, blobs.NoKeepout)
	require.False(t, found)
}

func TestFindLaserRejectsDimBlob(t *testing.T) {
	mask := blobs.NewMask(200, 200)
	img := frame.NewImage(200, 200)

	fillMaskRect(mask, 95, 95, 10, 10, 255)
	fillImgRect(img, 95, 95, 10, 10, 100) // bright fg, but not saturated in frame

	loc := &Locator{}
	_, _, found := loc.Find(mask, img, 100, 100, 100, blobs.NoKeepout)
	require.False(t, found)
}

func TestFindLaserNeuralPath(t *testing.T) {
	mask := blobs.NewMask(200, 200)
	img := frame.NewImage(200, 200)
	fillMaskRect(mask, 95, 95, 10, 10, 255)

	loc := &Locator{Classifier: stubClassifier{laser: 0.95}}
	center, _, found := loc.Find(mask, img, 100, 100, 100, blobs.NoKeepout)
	require.True(t, found)
	require.InDelta(t, 99, center.X, 1)
}

type stubClassifier struct{ laser float64 }

func (s stubClassifier) Classify(img *frame.Image, cx, cy int) classify.Probs {
	return classify.Probs{classify.ClassBackground: 0, classify.ClassAnt: 0, classify.ClassLaser: s.laser}
}
