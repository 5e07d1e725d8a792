// Package geometry converts detector pixel coordinates to planar camera
// coordinates, mirror angles, and stepper counts, and models the
// trapezoidal slew-time profile of the two-mirror galvanometer.
//
// All constants below are the camera/mirror calibration for the
// controller this package drives; they are not derived or fit here —
// fixed calibration is out of scope (see spec.md Non-goals).
package geometry

import "math"

// Config holds the lens, mirror, and motion-profile calibration. A
// zero Config is not usable; use DefaultConfig and override selected
// fields from internal/config.TuningConfig where the deployment needs
// to.
type Config struct {
	W, H int // frame dimensions in pixels

	LensFocalLen float64 // inches
	K1, K2, K3   float64 // radial distortion coefficients
	P1, P2, P3   float64 // tangential distortion coefficients (P3 scales both)

	InPerPixel    float64 // sensor pixel pitch, inches
	CameraHeight  float64 // inches above the focal plane

	M1X, M1Y, M1Z float64 // mirror 1 position, inches
	M2Z           float64 // mirror 2 position (z), inches

	StepsPerRev        float64
	MicrostepsPerStep  float64
	GearRatio          float64
	CameraToMirrorsX   float64
	CameraToMirrorsY   float64

	M1Min, M1Max int // step accumulation range, mirror 1
	M2Min, M2Max int // step accumulation range, mirror 2

	Accel float64 // steps/s^2
	MaxV  float64 // steps/s
}

// DefaultConfig returns the calibration for the reference rig: focal
// length derived from a measured 320.5mm focal-plane distance and
// 16mm calibration squares, lens distortion coefficients from a
// least-squares fit against those squares, and mirror/step geometry
// measured at assembly time.
func DefaultConfig() Config {
	return Config{
		W: 1280, H: 960,

		LensFocalLen: 8.76 / 25.4,
		K1:           0.0010958,
		K2:           0.00021057,
		K3:           -5.575e-6,
		P1:           -0.00299204,
		P2:           0.000119739,
		P3:           -0.0227986,

		InPerPixel:   0.00465 / 25.4,
		CameraHeight: 320.5 / 25.4,

		M1X: 0.0, M1Y: 0.0, M1Z: 1.625,
		M2Z: 10.125,

		StepsPerRev:       200.0,
		MicrostepsPerStep: 16,
		GearRatio:         5.2,
		CameraToMirrorsX:  49.0 / 25.4,
		CameraToMirrorsY:  10.1,

		M1Min: -380, M1Max: 345,
		M2Min: -860, M2Max: 980,

		Accel: 2800.0,
		MaxV:  800.0,
	}
}

func (c Config) m2za() float64 { return c.M2Z - 0.625 }
func (c Config) m2zb() float64 { return c.M2Z + 0.625 }

// RampTime is the time to accelerate from rest to MaxV at Accel.
func (c Config) RampTime() float64 { return c.MaxV / c.Accel }

// RampDist is the step distance covered during one ramp (accel or decel).
func (c Config) RampDist() float64 {
	rt := c.RampTime()
	return c.Accel * rt * rt / 2.0
}

// Loc is a fully-resolved location: the pixel it was derived from (if
// any), the distorted and undistorted camera-plane coordinates, the
// mirror-frame coordinates, the two mirror angles, and the
// corresponding signed step counts. It mirrors the original firmware's
// `struct loc`.
type Loc struct {
	Px, Py         int
	Xd, Yd         float64
	X, Y           float64
	Xm, Ym         float64
	M1Theta, M2Theta float64
	M1Steps, M2Steps float64
}

func (c Config) pxToXd(px float64) float64 {
	return (px - float64(c.W)/2) * c.InPerPixel * c.CameraHeight / c.LensFocalLen
}

func (c Config) pyToYd(py float64) float64 {
	return -(py - float64(c.H)/2) * c.InPerPixel * c.CameraHeight / c.LensFocalLen
}

func (c Config) xdYdToX(xd, yd float64) float64 {
	r2 := xd*xd + yd*yd
	radial := xd * (c.K1*r2 + c.K2*r2*r2 + c.K3*r2*r2*r2)
	tangential := (c.P1*(r2+2*xd*xd) + 2*c.P2*xd*yd) * (1 + c.P3*r2)
	return xd + radial + tangential
}

func (c Config) xdYdToY(xd, yd float64) float64 {
	r2 := xd*xd + yd*yd
	radial := yd * (c.K1*r2 + c.K2*r2*r2 + c.K3*r2*r2*r2)
	tangential := (2*c.P1*xd*yd + c.P2*(r2+2*yd*yd)) * (1 + c.P3*r2)
	return yd + radial + tangential
}

func (c Config) calcM2Theta(x float64) float64 {
	return -math.Atan2(c.M1X-x, c.m2zb()) / 2.0
}

func (c Config) calcM1Theta(y, m2Theta float64) float64 {
	return -math.Atan2(c.M1Y-y, c.m2za()-c.M1Z+c.M2Z/math.Cos(2.0*m2Theta)) / 2.0
}

// ThetaToSteps converts a mirror angle in radians to a signed stepper
// count.
func (c Config) ThetaToSteps(theta float64) float64 {
	return theta * c.StepsPerRev * c.MicrostepsPerStep * c.GearRatio / (2 * math.Pi)
}

// StepsToTheta converts a signed stepper count to a mirror angle in
// radians.
func (c Config) StepsToTheta(steps int) float64 {
	return float64(steps) * 2 * math.Pi / (c.StepsPerRev * c.MicrostepsPerStep * c.GearRatio)
}

// PxyToXy resolves a pixel to undistorted planar camera coordinates,
// in inches, without building a full Loc.
func (c Config) PxyToXy(px, py int) (x, y float64) {
	xd := c.pxToXd(float64(px))
	yd := c.pyToYd(float64(py))
	return c.xdYdToX(xd, yd), c.xdYdToY(xd, yd)
}

// XyToLoc resolves undistorted planar coordinates (inches) to a full
// Loc: mirror-frame coordinates, both mirror angles, and signed step
// counts. Px/Py/Xd/Yd are left zero since no pixel was involved.
func (c Config) XyToLoc(x, y float64) Loc {
	var l Loc
	l.X, l.Y = x, y
	l.Xm = c.CameraToMirrorsX - l.X
	l.Ym = c.CameraToMirrorsY - l.Y
	l.M2Theta = c.calcM2Theta(l.Xm)
	l.M1Theta = c.calcM1Theta(l.Ym, l.M2Theta)
	l.M1Steps = -c.ThetaToSteps(l.M1Theta)
	l.M2Steps = -c.ThetaToSteps(l.M2Theta)
	return l
}

// PxyToLoc resolves a pixel to a fully populated Loc.
func (c Config) PxyToLoc(px, py int) Loc {
	xd := c.pxToXd(float64(px))
	yd := c.pyToYd(float64(py))
	x := c.xdYdToX(xd, yd)
	y := c.xdYdToY(xd, yd)
	l := c.XyToLoc(x, y)
	l.Px, l.Py = px, py
	l.Xd, l.Yd = xd, yd
	return l
}

// MMPerPixel estimates the local scale, in millimeters per pixel, at
// (px,py) by finite-differencing PxyToXy ten pixels apart along the x
// axis. Used to build the ant-size lookup table (see BuildAntSizeTable).
func (c Config) MMPerPixel(px, py int) float64 {
	px1 := px + 10
	if px >= c.W-10 {
		px1 = px - 10
	}
	x1, y1 := c.PxyToXy(px, py)
	x2, y2 := c.PxyToXy(px1, py)
	dx := x1 - x2
	dy := y1 - y2
	distInches := math.Sqrt(dx*dx+dy*dy) / 10.0
	return distInches * 25.4
}

// Keepout reports whether (px,py), scaled by scale, falls outside the
// full-frame bounds [0,W)x[0,H). Used to fence both the flood fill and
// commanded moves.
func (c Config) Keepout(px, py, scale int) bool {
	px *= scale
	py *= scale
	if py < 0 || py > c.H-1 {
		return true
	}
	if px < 0 || px > c.W-1 {
		return true
	}
	return false
}

// MoveTime predicts the slew time, in seconds, for a trapezoidal
// velocity profile move from cur to a target Loc's step position.
// Distance is Euclidean in step-space.
func (c Config) MoveTime(cur, target Loc) float64 {
	m1d := target.M1Steps - cur.M1Steps
	m2d := target.M2Steps - cur.M2Steps
	dist := math.Sqrt(m1d*m1d + m2d*m2d)
	rampDist := c.RampDist()
	if dist > rampDist*2.0 {
		return c.RampTime()*2.0 + (dist-rampDist*2.0)/c.MaxV
	}
	return 2.0 * math.Sqrt(dist/c.Accel)
}

// MoveTimeToPixel is MoveTime with the target expressed as a pixel
// coordinate instead of a resolved Loc, for callers (the ant tracker's
// position predictor) that only have a pixel-space prediction.
func (c Config) MoveTimeToPixel(cur Loc, px, py int) float64 {
	return c.MoveTime(cur, c.PxyToLoc(px, py))
}
