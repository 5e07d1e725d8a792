// Package tracker implements the multi-object ant tracker: scoring
// candidate blobs against an ant-shaped heuristic (or a neural
// classifier), associating them against predicted track positions, and
// selecting the single best-supported ant to hand the controller.
package tracker

import (
	"math"

	"github.com/rgbond/antctl/internal/avg"
	"github.com/rgbond/antctl/internal/blobs"
	"github.com/rgbond/antctl/internal/classify"
	"github.com/rgbond/antctl/internal/frame"
	"github.com/rgbond/antctl/internal/geometry"
	"github.com/rgbond/antctl/internal/monitoring"
	"github.com/rgbond/antctl/internal/snapshot"
)

// Tuning constants. Tracker exposes a configurable override for each
// of the per-frame-pipeline values (CloseBlob, MaxScore, ScoreFloor,
// MaxIdleAge, UVWindow, SpeedWindow); leaving a Tracker field at its
// zero value selects the default below.
const (
	AntColor          = 80  // ideal dark-pixel intensity for ant-colored foreground
	AntThresh         = 100 // foreground mask value marking a thresholded-in pixel
	defaultCloseBlob  = 40  // max pixel distance from prediction for a blob to claim a track
	defaultMaxScore   = 50  // track score ceiling
	defaultUVWindow   = 5   // direction_average window
	defaultSpeedWin   = 10  // running_average window for speed
	defaultScoreFloor = 25  // score a track must exceed for SelectAnt to return it
	defaultMaxIdleAge = 3   // frames since last seen before a track is ineligible for selection
)

// Point is an integer pixel coordinate.
type Point struct{ X, Y int }

func dist(a, b Point) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// Track is one tracked ant.
type Track struct {
	ID             int
	Score          int
	Last           Point
	Pred           Point
	UV             *avg.Direction
	AvgSpeed       *avg.Scalar
	LastFrame      int
	LastFrameTicks uint64
	LaserDist      float64
}

// ScoredBlob pairs a detected blob with its ant-likeness score and,
// once association has run, the track that claimed it.
type ScoredBlob struct {
	Blob    blobs.Blob
	Score   int
	Claimed *Track
}

// Scorer rates blobs for ant-likeness, either heuristically (blob size,
// aspect ratio, and dark-pixel density) or via a neural classifier.
type Scorer struct {
	Sizes      *geometry.AntSizeTable
	Classifier classify.Classifier // nil selects the heuristic path
}

// ScoreAll rates every blob in bs, in order. scale is the downsample
// factor between mask/img pixel space and the full-frame coordinates
// already baked into each Blob (see blobs.Extract).
func (s *Scorer) ScoreAll(bs []blobs.Blob, mask *blobs.Mask, img *frame.Image, scale int) []ScoredBlob {
	out := make([]ScoredBlob, len(bs))
	for i, b := range bs {
		out[i] = ScoredBlob{Blob: b, Score: s.score(b, mask, img, scale)}
	}
	return out
}

func (s *Scorer) score(b blobs.Blob, mask *blobs.Mask, img *frame.Image, scale int) int {
	if s.Classifier != nil {
		p := s.Classifier.Classify(img, b.Xc, b.Yc)
		return int(math.Round(p[classify.ClassAnt] * 15.0))
	}
	return s.heuristicScore(b, mask, img, scale)
}

func (s *Scorer) heuristicScore(b blobs.Blob, mask *blobs.Mask, img *frame.Image, scale int) int {
	ideal := s.Sizes.IdealArea(b.Xc, b.Yc) / float64(scale*scale)
	rng := ideal / 2
	if rng == 0 {
		rng = 1
	}
	min, max := ideal-rng, ideal+rng
	if min < 3 {
		min = 3
	}
	if float64(b.Npix) < min {
		return 0
	}
	if float64(b.Npix) > max {
		return 0
	}

	score := 5

	ratio := float64(b.Rect.W) / float64(b.Rect.H)
	if ratio < 1.0 {
		ratio = 1.0 / ratio
	}
	if ratio < geometry.AntLenMM*1.1/geometry.AntWidthMM {
		score += 4
	}

	ystart, yend := b.Rect.Y/scale, (b.Rect.Y+b.Rect.H)/scale
	xstart, xend := b.Rect.X/scale, (b.Rect.X+b.Rect.W)/scale
	cc := 0
	for y := ystart; y < yend; y++ {
		for x := xstart; x < xend; x++ {
			if mask.Get(x, y) == AntThresh && img.At(x, y) < AntColor {
				cc++
			}
		}
	}
	rng2 := ideal / 8
	min2, max2 := ideal-rng2, ideal+rng2
	if float64(cc) >= min2 && float64(cc) <= max2 {
		score += 10
	}
	return score
}

// Tracker holds the live ant tracks across frames and runs the
// per-frame select/associate/age pipeline. CloseBlob, MaxScore,
// ScoreFloor, MaxIdleAge, UVWindow, and SpeedWindow are tunable;
// leaving a field at zero selects the rig's built-in default.
type Tracker struct {
	tracks []*Track
	nextID int

	CloseBlob   int
	MaxScore    int
	ScoreFloor  int
	MaxIdleAge  int
	UVWindow    int
	SpeedWindow int
}

// New returns an empty Tracker using the built-in tuning defaults.
func New() *Tracker {
	return &Tracker{nextID: 1}
}

func (t *Tracker) closeBlob() int {
	if t.CloseBlob > 0 {
		return t.CloseBlob
	}
	return defaultCloseBlob
}

func (t *Tracker) maxScore() int {
	if t.MaxScore > 0 {
		return t.MaxScore
	}
	return defaultMaxScore
}

func (t *Tracker) scoreFloor() int {
	if t.ScoreFloor > 0 {
		return t.ScoreFloor
	}
	return defaultScoreFloor
}

func (t *Tracker) maxIdleAge() int {
	if t.MaxIdleAge > 0 {
		return t.MaxIdleAge
	}
	return defaultMaxIdleAge
}

func (t *Tracker) uvWindow() int {
	if t.UVWindow > 0 {
		return t.UVWindow
	}
	return defaultUVWindow
}

func (t *Tracker) speedWindow() int {
	if t.SpeedWindow > 0 {
		return t.SpeedWindow
	}
	return defaultSpeedWin
}

// Tracks returns the live track list; callers must not retain it
// across the next SelectAnt call.
func (t *Tracker) Tracks() []*Track { return t.tracks }

// predictAssociation is the single-stage prediction used only for this
// frame's association: it projects a track forward by the number of
// frames since it was last seen, without the two-stage move-time
// correction PredictNextPos applies for an actual commanded move.
func predictAssociation(tr *Track, frameIndex int, avgFrameTime float64) Point {
	aspeed := tr.AvgSpeed.Average()
	uv := tr.UV.Average()
	frames := float64(frameIndex - tr.LastFrame)
	return Point{
		X: tr.Last.X + int(uv.X*aspeed*frames*avgFrameTime),
		Y: tr.Last.Y + int(uv.Y*aspeed*frames*avgFrameTime),
	}
}

// PredictNextPos projects where track will be by the time a commanded
// mirror move actually lands: a first estimate scaled by the laser's
// average frame lag, refined by how many additional whole frames the
// move itself will take to slew. Used by the controller to aim ahead
// of a moving ant rather than at its last known position.
func PredictNextPos(tr *Track, geom geometry.Config, curLoc geometry.Loc, laserLag, avgFrameTime float64) Point {
	aspeed := tr.AvgSpeed.Average()
	if aspeed <= 0.1 {
		return tr.Last
	}
	uv := tr.UV.Average()
	pred := Point{
		X: tr.Last.X + int(uv.X*aspeed*laserLag*avgFrameTime),
		Y: tr.Last.Y + int(uv.Y*aspeed*laserLag*avgFrameTime),
	}
	dt := geom.MoveTimeToPixel(curLoc, pred.X, pred.Y)
	if dt > 0.0 {
		moveFrames := math.Trunc(dt/avgFrameTime + 0.9)
		pred.X += int(uv.X * aspeed * moveFrames * avgFrameTime)
		pred.Y += int(uv.Y * aspeed * moveFrames * avgFrameTime)
	}
	if geom.Keepout(pred.X, pred.Y, 1) {
		return tr.Last
	}
	return pred
}

// associate predicts every live track's position for this frame, then
// lets each scored blob (in scan order) claim the nearest unclaimed
// prediction within CloseBlob pixels. One blob claims at most one
// track and one track is claimed by at most one blob.
func (t *Tracker) associate(scored []ScoredBlob, frameIndex int, avgFrameTime float64) {
	claimed := make(map[*Track]bool, len(t.tracks))
	for _, tr := range t.tracks {
		tr.Pred = predictAssociation(tr, frameIndex, avgFrameTime)
	}

	for i := range scored {
		sb := &scored[i]
		if sb.Score <= 0 {
			continue
		}
		var best *Track
		bestDist := math.Inf(1)
		for _, tr := range t.tracks {
			if claimed[tr] {
				continue
			}
			d := dist(Point{sb.Blob.Xc, sb.Blob.Yc}, tr.Pred)
			if d > float64(t.closeBlob()) {
				continue
			}
			if d < bestDist {
				bestDist = d
				best = tr
			}
		}
		if best != nil {
			sb.Claimed = best
			claimed[best] = true
		}
	}
}

// processAnt folds a claimed blob into its track's running state:
// direction, speed, score, and laser distance.
func (t *Tracker) processAnt(tr *Track, sb ScoredBlob, frameIndex int, frameTicks uint64, tps float64, laserPos Point) {
	now := Point{sb.Blob.Xc, sb.Blob.Yc}
	v := Point{now.X - tr.Last.X, now.Y - tr.Last.Y}
	d := dist(Point{}, v)
	if d != 0.0 {
		tr.UV.Add(avg.Vec2{X: float64(v.X) / d, Y: float64(v.Y) / d})
	}
	dt := float64(frameTicks-tr.LastFrameTicks) / tps
	if dt > 0 {
		tr.AvgSpeed.Add(d / dt)
	}
	tr.LastFrameTicks = frameTicks

	tr.Score += sb.Score
	if tr.Score > t.maxScore() {
		tr.Score = t.maxScore()
	}
	tr.Last = now
	tr.LaserDist = dist(tr.Last, laserPos)
	tr.LastFrame = frameIndex
}

func (t *Tracker) addAnt(sb ScoredBlob, frameIndex int, frameTicks uint64) *Track {
	tr := &Track{
		ID:             t.nextID,
		Score:          sb.Score,
		Last:           Point{sb.Blob.Xc, sb.Blob.Yc},
		UV:             avg.NewDirection(t.uvWindow()),
		AvgSpeed:       avg.NewScalar(t.speedWindow()),
		LastFrame:      frameIndex,
		LastFrameTicks: frameTicks,
	}
	t.nextID++
	t.tracks = append(t.tracks, tr)
	monitoring.Framef(frameIndex, "tracker: new ant id %d at (%d,%d) score %d", tr.ID, tr.Last.X, tr.Last.Y, sb.Score)
	return tr
}

// age decays every live track's score by one and drops any that reach
// zero. Applied once per frame, after this frame's claimed blobs have
// already been folded in, so a freshly matched track nets its blob
// score minus one and an unmatched track simply decays.
func (t *Tracker) age(frameIndex int) {
	live := t.tracks[:0]
	for _, tr := range t.tracks {
		tr.Score--
		if tr.Score <= 0 {
			monitoring.Framef(frameIndex, "tracker: dropped ant id %d at (%d,%d)", tr.ID, tr.Last.X, tr.Last.Y)
			continue
		}
		live = append(live, tr)
	}
	t.tracks = live
}

// pickBest returns, among the live tracks whose score exceeds the score
// floor and that were seen within the last maxIdleAge frames, the one
// nearest to the laser's current aim point, or nil if none qualifies.
func (t *Tracker) pickBest(frameIndex int) *Track {
	var best *Track
	for _, tr := range t.tracks {
		if tr.Score <= t.scoreFloor() {
			continue
		}
		if frameIndex-tr.LastFrame > t.maxIdleAge() {
			continue
		}
		if best == nil || tr.LaserDist < best.LaserDist {
			best = tr
		}
	}
	return best
}

// SelectAnt runs one full frame of the tracking pipeline: associate
// scored blobs to predicted track positions, fold matches into their
// tracks (spawning new tracks for unclaimed ant-scored blobs), age
// every track, and return the best-supported live track, or nil if
// none clears the selection floor.
func (t *Tracker) SelectAnt(scored []ScoredBlob, frameIndex int, frameTicks uint64, tps, avgFrameTime float64, laserPos Point, snaps *snapshot.Snapshots, img *frame.Image) *Track {
	t.associate(scored, frameIndex, avgFrameTime)

	for _, sb := range scored {
		if sb.Score <= 0 {
			continue
		}
		if sb.Claimed != nil {
			t.processAnt(sb.Claimed, sb, frameIndex, frameTicks, tps, laserPos)
			if snaps != nil {
				snaps.SnapAnt(img, sb.Claimed.Last.X, sb.Claimed.Last.Y, frameIndex)
			}
		} else {
			tr := t.addAnt(sb, frameIndex, frameTicks)
			if snaps != nil {
				snaps.SnapAnt(img, tr.Last.X, tr.Last.Y, frameIndex)
			}
		}
	}

	t.age(frameIndex)

	best := t.pickBest(frameIndex)
	if best != nil && best.Score > t.scoreFloor() {
		return best
	}
	return nil
}
