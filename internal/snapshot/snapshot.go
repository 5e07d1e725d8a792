// Package snapshot implements the training-patch writer capability:
// optionally saving small PNG crops around ant/laser detections (and
// matching background crops) for offline classifier training data.
// Writing is disabled unless explicitly configured (spec: "-S
// snapshots").
package snapshot

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/rgbond/antctl/internal/frame"
	"github.com/rgbond/antctl/internal/monitoring"
)

// Tag names the four output subdirectories, matching spec's
// images/{ant,laser,bg,no_ants}/ convention exactly.
type Tag string

const (
	TagAnt    Tag = "ant"
	TagLaser  Tag = "laser"
	TagBg     Tag = "bg"
	TagNoAnts Tag = "no_ants"
)

// PatchSize is the crop size written for every tag.
const PatchSize = 28

// BgDeferFrames is how many frames after an ant/laser detection the
// matching background patch is captured, giving the subject time to
// move off that spot.
const BgDeferFrames = 50

// Writer is the capability Snapshots depends on: write one named,
// already-extracted patch. Concrete implementations live outside the
// core (spec: "write_patch(tag,img) ... concrete implementations live
// outside the core").
type Writer interface {
	WritePatch(tag Tag, img *frame.Image) error
}

// PNGWriter writes patches as PNG files under root/<tag>/ named
// <tag>_<tag>_YYYYMMDDhhmm_<seq>.png.
type PNGWriter struct {
	Root string
	Now  func() time.Time

	seq map[Tag]uint32
}

// NewPNGWriter returns a PNGWriter rooted at root (conventionally
// "images").
func NewPNGWriter(root string) *PNGWriter {
	return &PNGWriter{Root: root, Now: time.Now, seq: make(map[Tag]uint32)}
}

// WritePatch encodes img as a PNG and writes it to the tag's directory
// under the naming convention.
func (w *PNGWriter) WritePatch(tag Tag, img *frame.Image) error {
	dir := filepath.Join(w.Root, string(tag))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir %s: %w", dir, err)
	}
	w.seq[tag]++
	name := fmt.Sprintf("%s_%s_%s_%d.png", tag, tag, w.Now().Format("200601021504"), w.seq[tag])
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: create %s: %w", path, err)
	}
	defer f.Close()

	gray := image.NewGray(image.Rect(0, 0, img.W, img.H))
	copy(gray.Pix, img.Data)
	if err := png.Encode(f, gray); err != nil {
		return fmt.Errorf("snapshot: encode %s: %w", path, err)
	}
	return nil
}

// pendingBg is a background patch point queued to be captured
// BgDeferFrames after the ant/laser point it shadows.
type pendingBg struct {
	x, y     int
	dueFrame int
}

// Snapshots orchestrates patch capture: it is a no-op unless enabled
// (disabled by default, matching spec's "-S" gate), extracting a
// PatchSize x PatchSize crop around each point and handing it to a
// Writer, and separately scheduling a matching background capture
// BgDeferFrames later.
type Snapshots struct {
	writer  Writer
	enabled bool
	pending []pendingBg
}

// New returns a disabled Snapshots; call Enable to turn capture on.
func New(w Writer) *Snapshots {
	return &Snapshots{writer: w}
}

// Enable turns patch capture on.
func (s *Snapshots) Enable() { s.enabled = true }

func (s *Snapshots) snap(tag Tag, img *frame.Image, x, y int) {
	if !s.enabled {
		return
	}
	patch, ok := frame.ExtractPatch(img, x, y, PatchSize)
	if !ok {
		monitoring.Logf("snapshot: patch at (%d,%d) outside frame, skipped", x, y)
		return
	}
	if err := s.writer.WritePatch(tag, patch); err != nil {
		monitoring.Logf("snapshot: %v", err)
	}
}

// SnapAnt captures a patch around an ant detection and schedules a
// matching background capture BgDeferFrames later.
func (s *Snapshots) SnapAnt(img *frame.Image, x, y, frameIndex int) {
	s.snap(TagAnt, img, x, y)
	s.enqueueBg(x, y, frameIndex)
}

// SnapLaser captures a patch around a laser detection and schedules a
// matching background capture BgDeferFrames later.
func (s *Snapshots) SnapLaser(img *frame.Image, x, y, frameIndex int) {
	s.snap(TagLaser, img, x, y)
	s.enqueueBg(x, y, frameIndex)
}

// SnapNoAnts captures a patch when ant selection found nothing this
// frame, useful as a negative training example.
func (s *Snapshots) SnapNoAnts(img *frame.Image, x, y int) {
	s.snap(TagNoAnts, img, x, y)
}

func (s *Snapshots) enqueueBg(x, y, frameIndex int) {
	if !s.enabled {
		return
	}
	s.pending = append(s.pending, pendingBg{x: x, y: y, dueFrame: frameIndex + BgDeferFrames})
}

// Tick flushes any background captures now due, given the current
// frame index and frame image. Call once per frame.
func (s *Snapshots) Tick(img *frame.Image, frameIndex int) {
	if !s.enabled || len(s.pending) == 0 {
		return
	}
	remaining := s.pending[:0]
	for _, p := range s.pending {
		if frameIndex >= p.dueFrame {
			s.snap(TagBg, img, p.x, p.y)
			continue
		}
		remaining = append(remaining, p)
	}
	s.pending = remaining
}

var _ Writer = (*PNGWriter)(nil)
