// Package replay draws a recorded ant trajectory onto the frames the
// source delivers, for running the controller against a reproducible
// scripted scenario (-p).
package replay

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/rgbond/antctl/internal/frame"
	"github.com/rgbond/antctl/internal/geometry"
)

// pos is one recorded sample: the ant centroid, its blob pixel count,
// and the frame index it was observed at.
type pos struct {
	x, y, npix, frame int
}

// Player replays a sequence of recorded ant positions onto frames by
// linear interpolation between the two recorded samples bracketing the
// current frame index, darkening a patch sized from the ant-size
// table -- the same role as the original's player/interp.
type Player struct {
	sizes *geometry.AntSizeTable
	pos   []pos
	cur   int
	done  bool
}

// Open reads a replay file of "x y npix frame" lines, one recorded
// sample per line, sorted by increasing frame.
func Open(path string, sizes *geometry.AntSizeTable) (*Player, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: open %s: %w", path, err)
	}
	defer f.Close()

	var samples []pos
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var p pos
		if _, err := fmt.Sscanf(sc.Text(), "%d %d %d %d", &p.x, &p.y, &p.npix, &p.frame); err != nil {
			continue
		}
		samples = append(samples, p)
	}
	if err := sc.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("replay: read %s: %w", path, err)
	}
	if len(samples) < 2 {
		return nil, fmt.Errorf("replay: %s needs at least 2 recorded positions", path)
	}
	return &Player{sizes: sizes, pos: samples}, nil
}

// AddAnt darkens img at the interpolated ant position for frameIndex,
// once frameIndex has entered the recorded range. It is a no-op once
// the last bracketing pair has been passed, matching the original's
// one-shot "done" latch.
func (p *Player) AddAnt(img *frame.Image, frameIndex int) {
	if p.done {
		return
	}
	if p.cur == 0 && frameIndex < p.pos[0].frame {
		return
	}

	pc, pn := p.pos[p.cur], p.pos[p.cur+1]
	if frameIndex >= pc.frame && frameIndex <= pn.frame {
		p.interp(img, pc, pn, frameIndex)
	}
	if frameIndex == pn.frame {
		p.cur++
		if p.cur >= len(p.pos)-1 {
			p.done = true
		}
	}
}

// interp computes the linearly-interpolated position between pc and pn
// for frameIndex and darkens a rectangle there sized from the expected
// ant area at that position, approximating the recorded blob's
// length/width by the AntLenMM:AntWidthMM 2:1 aspect ratio.
func (p *Player) interp(img *frame.Image, pc, pn pos, frameIndex int) {
	r := float64(frameIndex-pc.frame) / float64(pn.frame-pc.frame)
	px := int(math.Round(r*float64(pn.x-pc.x) + float64(pc.x)))
	py := int(math.Round(r*float64(pn.y-pc.y) + float64(pc.y)))

	area := p.sizes.IdealArea(px, py)
	width := int(math.Round(math.Sqrt(area / 2.0)))
	length := 2 * width
	if width < 1 {
		width = 1
	}
	if length < 1 {
		length = 1
	}

	for i := 0; i < length; i++ {
		for j := 0; j < width; j++ {
			x, y := px+j, py+i
			if img.InBounds(x, y) {
				img.Set(x, y, 0)
			}
		}
	}
}
