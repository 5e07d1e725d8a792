// Package controller drives the closed-loop ant-chasing state machine:
// a thin hardware-facing Driver over the mailbox and geometry packages,
// and the six-state FSM that decides, frame by frame, whether to slew
// toward a tracked ant or correct onto a located laser spot.
package controller

import (
	"github.com/rgbond/antctl/internal/backlash"
	"github.com/rgbond/antctl/internal/geometry"
	"github.com/rgbond/antctl/internal/mailbox"
	"github.com/rgbond/antctl/internal/monitoring"
)

// Driver wraps the mailbox and geometry packages with the same
// current-location/target bookkeeping as the original's hw class, and
// routes every commanded move through the backlash logger.
type Driver struct {
	Geom geometry.Config
	Box  *mailbox.Mailbox
	Bl   *backlash.Logger

	CurLoc geometry.Loc
	Target geometry.Loc
}

// NewDriver constructs a Driver over an already-open mailbox and
// backlash logger.
func NewDriver(geom geometry.Config, box *mailbox.Mailbox, bl *backlash.Logger) *Driver {
	return &Driver{Geom: geom, Box: box, Bl: bl}
}

// SetHome zeroes the mailbox's accumulated step position and takes the
// driver's current location as the new origin.
func (d *Driver) SetHome() {
	d.Box.SetHome()
}

// HwIdle reports whether the mailbox command slot is free.
func (d *Driver) HwIdle() bool { return d.Box.HwIdle() }

// Keepout reports whether (px,py) at the given display scale falls
// inside a hardware keepout region.
func (d *Driver) Keepout(px, py, scale int) bool { return d.Geom.Keepout(px, py, scale) }

// MoveTime estimates the slew time, in seconds, from the driver's
// current location to the pixel target (px,py).
func (d *Driver) MoveTime(px, py int) float64 {
	return d.Geom.MoveTimeToPixel(d.CurLoc, px, py)
}

// DoMove starts a fresh commanded move to (px,py), logging it as a new
// move in the backlash log. It only recomputes the target Loc when the
// pixel target actually changed, matching the original's do_move.
func (d *Driver) DoMove(px, py int, msg string) bool {
	if px != d.Target.Px || py != d.Target.Py {
		d.Target = d.Geom.PxyToLoc(px, py)
	}
	m1Delta := d.Target.M1Steps - d.CurLoc.M1Steps
	m2Delta := d.Target.M2Steps - d.CurLoc.M2Steps

	lastM1, lastM2 := d.Box.LastCommanded()
	d.Bl.Start(d.CurLoc, d.Target, lastM1, lastM2, m1Delta, m2Delta)

	monitoring.Logf("%s: moving %6.1f %6.1f", msg, m1Delta, m2Delta)
	if d.Box.StartMove(m1Delta, m2Delta, false) {
		d.CurLoc = d.Target
		return true
	}
	return false
}

// DoCorrection nudges the in-flight move toward a refined pixel
// target, logging it as a correction against the move already open in
// the backlash log.
func (d *Driver) DoCorrection(px, py int, msg string) bool {
	if px != d.Target.Px || py != d.Target.Py {
		d.Target = d.Geom.PxyToLoc(px, py)
	}
	m1Delta := d.Target.M1Steps - d.CurLoc.M1Steps
	m2Delta := d.Target.M2Steps - d.CurLoc.M2Steps

	lastM1, lastM2 := d.Box.LastCommanded()
	d.Bl.AddCorrection(d.CurLoc, lastM1, lastM2, m1Delta, m2Delta)

	monitoring.Logf("%s: moving %6.1f %6.1f", msg, m1Delta, m2Delta)
	if d.Box.StartMove(m1Delta, m2Delta, false) {
		d.CurLoc = d.Target
		return true
	}
	return false
}

// SwitchLaser toggles the laser via a zero-step mailbox command.
func (d *Driver) SwitchLaser(on bool) bool { return d.Box.SwitchLaser(on) }

// Shutdown posts the terminal SHUTDOWN command and closes the mailbox
// region.
func (d *Driver) Shutdown() error {
	d.Box.Shutdown()
	return d.Box.Close()
}
