package frame

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/rgbond/antctl/internal/blobs"
)

// Source hands the controller loop one grayscale frame and its paired
// foreground mask at a time. Producing both -- from a live camera plus
// background subtraction, or a recorded movie -- is an external
// collaborator (see spec's scope); this package only describes what a
// source must hand the core pipeline, plus one concrete
// directory-backed implementation for running the loop against a
// pre-recorded capture instead of real hardware.
type Source interface {
	// Next returns the next frame and its foreground mask, or
	// ok=false once the source is exhausted.
	Next() (img *Image, mask *blobs.Mask, ok bool)
	Close() error
}

// DirSource reads a directory of paired PNGs named frame_%05d.png and
// fg_%05d.png -- a plain stand-in for the camera+VIBE_GPU pipeline,
// letting the controller run end to end against a pre-recorded
// capture. Any 8-bit grayscale (or RGBA, converted) PNG works; the
// foreground mask is derived by treating any pixel above zero in the
// fg image as foreground (255).
type DirSource struct {
	dir    string
	frames []int
	idx    int
}

// NewDirSource scans dir for frame_NNNNN.png files and returns a
// Source that walks them in index order.
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("frame: read dir %s: %w", dir, err)
	}
	var frames []int
	for _, e := range entries {
		var n int
		if _, err := fmt.Sscanf(e.Name(), "frame_%05d.png", &n); err == nil {
			frames = append(frames, n)
		}
	}
	sort.Ints(frames)
	return &DirSource{dir: dir, frames: frames}, nil
}

func (s *DirSource) Next() (*Image, *blobs.Mask, bool) {
	if s.idx >= len(s.frames) {
		return nil, nil, false
	}
	n := s.frames[s.idx]
	s.idx++

	img, err := readGrayPNG(filepath.Join(s.dir, fmt.Sprintf("frame_%05d.png", n)))
	if err != nil {
		return nil, nil, false
	}
	fg, err := readGrayPNG(filepath.Join(s.dir, fmt.Sprintf("fg_%05d.png", n)))
	if err != nil {
		return nil, nil, false
	}

	mask := blobs.NewMask(img.W, img.H)
	for y := 0; y < img.H; y++ {
		for x := 0; x < img.W; x++ {
			if fg.At(x, y) > 0 {
				mask.Set(x, y, 255)
			}
		}
	}
	return img, mask, true
}

func (s *DirSource) Close() error { return nil }

func readGrayPNG(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, err := png.Decode(f)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	img := NewImage(b.Dx(), b.Dy())
	gray, ok := src.(*image.Gray)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if ok {
				img.Set(x, y, gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			} else {
				r, g, bl, _ := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
				lum := (299*r + 587*g + 114*bl) / 1000
				img.Set(x, y, byte(lum>>8))
			}
		}
	}
	return img, nil
}
