package blobs

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func fillRect(m *Mask, x, y, w, h int, v byte) {
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			m.Set(xx, yy, v)
		}
	}
}

func TestFloodFillSingleBlob(t *testing.T) {
	m := NewMask(5, 5)
	fillRect(m, 0, 0, 5, 5, 200) // all pixels bright (laser variant: >thresh)

	got, ok := Extract(m, ROI{X: 0, Y: 0, W: 5, H: 5}, 100, LaserVariant, NoKeepout, 1)
	require.True(t, ok)
	require.Len(t, got, 1)

	b := got[0]
	if diff := cmp.Diff(Rect{X: 0, Y: 0, W: 5, H: 5}, b.Rect); diff != "" {
		t.Errorf("rect mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 2, b.Xc)
	require.Equal(t, 2, b.Yc)
	require.Equal(t, 25, b.Npix)
}

func TestSizeFilterDropsTwoPixelComponent(t *testing.T) {
	m := NewMask(10, 10)
	m.Set(5, 5, 200)
	m.Set(6, 5, 200)

	got, ok := Extract(m, ROI{X: 0, Y: 0, W: 10, H: 10}, 100, LaserVariant, NoKeepout, 1)
	require.True(t, ok)
	require.Empty(t, got)
}

func TestOverflowRejectsWholeFrame(t *testing.T) {
	m := NewMask(100, 100)
	fillRect(m, 0, 0, 100, 100, 200)

	got, ok := Extract(m, ROI{X: 0, Y: 0, W: 100, H: 100}, 100, LaserVariant, NoKeepout, 1)
	require.False(t, ok)
	require.Empty(t, got)
}

func TestAntVariantReadOnlyLeavesMaskIntact(t *testing.T) {
	m := NewMask(5, 5)
	fillRect(m, 0, 0, 5, 5, 50) // all dark: < thresh=100 qualifies for ant variant

	got, ok := Extract(m, ROI{X: 0, Y: 0, W: 5, H: 5}, 100, AntVariant, NoKeepout, 1)
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, 25, got[0].Npix)

	// mask values must be unchanged (read-only variant)
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			require.Equal(t, byte(50), m.Get(x, y))
		}
	}
}

func TestKeepoutFencesFloodFill(t *testing.T) {
	m := NewMask(10, 10)
	fillRect(m, 0, 0, 10, 10, 200)

	keepout := func(x, y, scale int) bool { return x >= 5 }
	got, ok := Extract(m, ROI{X: 0, Y: 0, W: 10, H: 10}, 100, LaserVariant, keepout, 1)
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, 5, got[0].Rect.W)
}

func TestTwoSeparateBlobs(t *testing.T) {
	m := NewMask(20, 20)
	fillRect(m, 0, 0, 3, 3, 200)
	fillRect(m, 10, 10, 3, 3, 200)

	got, ok := Extract(m, ROI{X: 0, Y: 0, W: 20, H: 20}, 100, LaserVariant, NoKeepout, 1)
	require.True(t, ok)
	require.Len(t, got, 2)
}

func TestScaleMultipliesCoordinates(t *testing.T) {
	m := NewMask(10, 10)
	fillRect(m, 2, 2, 3, 3, 200)

	got, ok := Extract(m, ROI{X: 0, Y: 0, W: 10, H: 10}, 100, LaserVariant, NoKeepout, 2)
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, 4, got[0].Rect.X)
	require.Equal(t, 6, got[0].Rect.W)
}
