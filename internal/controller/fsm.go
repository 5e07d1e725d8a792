package controller

import (
	"math"

	"github.com/rgbond/antctl/internal/avg"
	"github.com/rgbond/antctl/internal/blobs"
	"github.com/rgbond/antctl/internal/frame"
	"github.com/rgbond/antctl/internal/laser"
	"github.com/rgbond/antctl/internal/monitoring"
	"github.com/rgbond/antctl/internal/snapshot"
	"github.com/rgbond/antctl/internal/tracker"
)

// State is one of the six per-frame control states the FSM cycles
// through while chasing an ant with the laser.
type State int

const (
	StateIdleLaserOff State = iota
	StateIdle1
	StateIdle2
	StateDelay1
	StateDelay2
	StateWaitLaser
)

func (s State) String() string {
	switch s {
	case StateIdleLaserOff:
		return "idle_laser_off"
	case StateIdle1:
		return "idle_1"
	case StateIdle2:
		return "idle_2"
	case StateDelay1:
		return "delay_1"
	case StateDelay2:
		return "delay_2"
	case StateWaitLaser:
		return "wait_laser"
	default:
		return "unknown"
	}
}

// Options are the run-time behavior switches, one per antctl CLI flag
// that changes how the FSM drives the hardware.
type Options struct {
	Accurate    bool // repeat corrections until the loop closes (-c)
	DontCorrect bool // skip closed-loop corrections entirely (-d)
	RandomMoves bool // ignore ants, move randomly (-r)
	NoAnts      bool // ant_looker always reports nothing found (-n)
}

// Controller owns the FSM state and the subsystems it drives each
// frame: the hardware Driver, the ant Tracker, and the laser Locator.
type Controller struct {
	Driver  *Driver
	Tracker *tracker.Tracker
	Laser   *laser.Locator
	Opts    Options

	state           State
	laserOnFrame    int
	laserFrameLag   *avg.Scalar
	laserFrameDelay int

	// RandomMove is called once per frame in StateIdleLaserOff when
	// Opts.RandomMoves is set; it returns true when the random-move
	// sequence has finished and the run should end.
	RandomMove func(frameIndex int) (done bool)
}

// NewController starts the FSM in idle_1, matching the original's
// post-startup state after homing and laser_frame_lag seeding.
func NewController(d *Driver, t *tracker.Tracker, l *laser.Locator, opts Options) *Controller {
	lag := avg.NewScalar(10)
	lag.Add(3)
	return &Controller{
		Driver:        d,
		Tracker:       t,
		Laser:         l,
		Opts:          opts,
		state:         StateIdle1,
		laserFrameLag: lag,
	}
}

// State returns the FSM's current state, chiefly for diagnostics.
func (c *Controller) State() State { return c.state }

// AntLooker updates the tracker from this frame's scored ant blobs and,
// if move is true and a track clears the selection floor, commands a
// move toward its predicted next position. It reports whether a move
// was commanded.
func (c *Controller) AntLooker(scored []tracker.ScoredBlob, move bool, frameIndex int, frameTicks uint64, tps, avgFrameTime float64, img *frame.Image, snaps *snapshot.Snapshots) bool {
	if c.Opts.NoAnts {
		return false
	}

	best := c.Tracker.SelectAnt(scored, frameIndex, frameTicks, tps, avgFrameTime, tracker.Point{X: c.Driver.Target.Px, Y: c.Driver.Target.Py}, snaps, img)
	if !move || best == nil {
		return false
	}

	laserLag := c.laserFrameLag.Average()
	pred := tracker.PredictNextPos(best, c.Driver.Geom, c.Driver.CurLoc, laserLag, avgFrameTime)
	monitoring.Logf("ant_looker: %4d %4d frame: %d", pred.X, pred.Y, frameIndex)
	c.Driver.DoMove(pred.X, pred.Y, "  ant")
	return true
}

// Correct closes the loop on a located laser spot: if it is far enough
// from the target and the target isn't already inside its bounding
// box, it issues a correction move and reports true; otherwise it
// closes out the backlash log entry for the completed move.
func (c *Controller) Correct(center laser.Point, box blobs.Rect, frameIndex int) bool {
	if c.Opts.DontCorrect {
		return false
	}

	c.Driver.CurLoc = c.Driver.Geom.PxyToLoc(center.X, center.Y)
	tx, ty := c.Driver.Target.Px, c.Driver.Target.Py
	dx, dy := float64(tx-center.X), float64(ty-center.Y)
	dist := math.Sqrt(dx*dx + dy*dy)

	if dist > 3.0 && !rectContains(box, tx, ty) {
		monitoring.Logf("correct: %d, %d target: %d %d frame: %d", center.X, center.Y, tx, ty, frameIndex)
		c.Driver.DoCorrection(tx, ty, "  correct")
		return true
	}

	lastM1, lastM2 := c.Driver.Box.LastCommanded()
	if err := c.Driver.Bl.Stop(c.Driver.CurLoc, lastM1, lastM2); err != nil {
		monitoring.Logf("correct: backlash stop: %v", err)
	}
	return false
}

func rectContains(r blobs.Rect, x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// FrameInputs bundles everything Step needs to decide and act for a
// single frame: the scored ant blobs for the tracker, and the laser
// locator's result against the current target window.
type FrameInputs struct {
	Scored       []tracker.ScoredBlob
	FrameIndex   int
	FrameTicks   uint64
	TPS          float64
	AvgFrameTime float64
	Image        *frame.Image
	Snaps        *snapshot.Snapshots

	LaserVisible bool
	LaserCenter  laser.Point
	LaserBox     blobs.Rect

	// MouseClick is set when the operator clicked a point in the
	// display window this frame; it forces the FSM back to idle_1,
	// abandoning whatever correction sequence was in flight.
	MouseClick bool
}

// Step advances the FSM by exactly one frame, mirroring the original's
// main-loop switch on cur_state. It returns true if the run should end
// (random-move sequence finished).
func (c *Controller) Step(in FrameInputs) (done bool) {
	if in.LaserVisible && c.laserOnFrame != 0 {
		c.laserFrameLag.Add(float64(in.FrameIndex - c.laserOnFrame))
		c.laserOnFrame = 0
	}

	if in.MouseClick {
		c.state = StateIdle1
	}

	next := c.state

	switch c.state {
	case StateIdleLaserOff:
		if c.Opts.RandomMoves {
			if c.RandomMove != nil && c.RandomMove(in.FrameIndex) {
				done = true
			}
			next = StateIdle1
		} else if !in.LaserVisible && c.AntLooker(in.Scored, true, in.FrameIndex, in.FrameTicks, in.TPS, in.AvgFrameTime, in.Image, in.Snaps) {
			next = StateIdle1
		}

	case StateIdle1:
		if c.Driver.HwIdle() {
			c.Driver.SwitchLaser(true)
			next = StateDelay1
			c.laserOnFrame = in.FrameIndex
		} else if !in.LaserVisible {
			c.AntLooker(in.Scored, false, in.FrameIndex, in.FrameTicks, in.TPS, in.AvgFrameTime, in.Image, in.Snaps)
		}

	case StateDelay1:
		if c.Driver.HwIdle() {
			c.Driver.SwitchLaser(false)
			if in.LaserVisible {
				if c.Correct(in.LaserCenter, in.LaserBox, in.FrameIndex) {
					next = StateIdle2
				} else {
					next = StateDelay2
				}
			} else {
				c.AntLooker(in.Scored, false, in.FrameIndex, in.FrameTicks, in.TPS, in.AvgFrameTime, in.Image, in.Snaps)
				c.laserFrameDelay = int(math.Round(c.laserFrameLag.Average())) + 1
				next = StateWaitLaser
			}
		} else {
			c.AntLooker(in.Scored, false, in.FrameIndex, in.FrameTicks, in.TPS, in.AvgFrameTime, in.Image, in.Snaps)
		}

	case StateWaitLaser:
		if in.LaserVisible {
			if c.Correct(in.LaserCenter, in.LaserBox, in.FrameIndex) {
				next = StateIdle2
			} else {
				next = StateDelay2
			}
		} else {
			c.AntLooker(in.Scored, false, in.FrameIndex, in.FrameTicks, in.TPS, in.AvgFrameTime, in.Image, in.Snaps)
			c.laserFrameDelay--
			if c.laserFrameDelay == 0 {
				next = StateDelay2
			}
		}

	case StateDelay2:
		if !in.LaserVisible {
			next = StateIdleLaserOff
			c.AntLooker(in.Scored, false, in.FrameIndex, in.FrameTicks, in.TPS, in.AvgFrameTime, in.Image, in.Snaps)
		}

	case StateIdle2:
		if c.Driver.HwIdle() {
			if c.Opts.Accurate {
				c.Driver.SwitchLaser(true)
				next = StateDelay1
			} else {
				next = StateDelay2
			}
		} else if !in.LaserVisible {
			c.AntLooker(in.Scored, false, in.FrameIndex, in.FrameTicks, in.TPS, in.AvgFrameTime, in.Image, in.Snaps)
		}
	}

	c.state = next
	return done
}
