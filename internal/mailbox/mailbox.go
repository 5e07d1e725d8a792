// Package mailbox implements the single-slot shared-memory command
// channel to the motor firmware.
//
// Wire layout, exact, little-endian:
//
//	offset 0  : uint32 magic = 0x12344321
//	offset 4  : uint16 ms
//	offset 6  : int16  m1_steps  (unsigned magnitude; sign carried in flags)
//	offset 8  : int16  m2_steps
//	offset 10 : uint16 flags     (LaserOn|MotorsOn|Shutdown|M1Neg|M2Neg)
//	offset 12 : uint16 ok        (0 = idle, 1 = command posted)
//
// There is exactly one in-flight command slot. The controller publishes
// a command by filling offsets 0-11 and then releasing it with a
// sequentially-consistent store of ok=1; the firmware clears ok to 0
// when it has consumed the command. Reads and writes of ok are atomic
// on both sides so this acts as a software release/acquire fence
// around the rest of the struct, even though the two parties are
// different OS processes sharing a mapped page rather than goroutines
// sharing a Go memory model.
package mailbox

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"

	"github.com/rgbond/antctl/internal/monitoring"
)

// Flag bits, exact values from the firmware protocol.
const (
	FlagLaserOn  uint16 = 0x01
	FlagMotorsOn uint16 = 0x02
	FlagShutdown uint16 = 0x04
	FlagM1Neg    uint16 = 0x08
	FlagM2Neg    uint16 = 0x10
)

// Magic is the fixed sentinel written at offset 0 so either side can
// sanity-check the shared mapping.
const Magic uint32 = 0x12344321

const (
	offMagic = 0
	offMs    = 4
	offM1    = 6
	offM2    = 8
	offFlags = 10
	offOk    = 12
)

// Mailbox is the controller-side handle to the shared command slot. It
// also tracks the accumulated step position (m1_limit, m2_limit) so
// that every posted move can be checked against the hard step-range
// invariant before it is written.
type Mailbox struct {
	region Region

	m1Limit int
	m2Limit int
	M1Min, M1Max int
	M2Min, M2Max int

	lastM1 int
	lastM2 int
}

// Open initializes a Mailbox over region: it writes the initial zeroed
// struct (magic set, MOTORS_ON raised) exactly once, matching the
// controller's startup behavior, posts it with ok=1, then waits for the
// firmware to take the slot (ok observed to go to 0) before returning -- callers
// that want to skip this handshake (fake-laser / replay mode) should
// use OpenWithoutHandshake.
func Open(region Region, stepLimits StepLimits) (*Mailbox, error) {
	if err := ensureSize(region.Bytes()); err != nil {
		return nil, err
	}
	mb := newMailbox(region, stepLimits)
	mb.writeInitial()
	mb.storeOk(1)
	for mb.loadOk() == 1 {
		// busy-wait for the firmware to take the initial handshake slot
	}
	return mb, nil
}

// OpenWithoutHandshake initializes the region the same way as Open but
// does not wait for firmware to clear ok -- used when no firmware is
// attached (fake-laser mode, replay, tests).
func OpenWithoutHandshake(region Region, stepLimits StepLimits) (*Mailbox, error) {
	if err := ensureSize(region.Bytes()); err != nil {
		return nil, err
	}
	mb := newMailbox(region, stepLimits)
	mb.writeInitial()
	return mb, nil
}

// StepLimits bounds the accumulated step position per Invariant 4.
type StepLimits struct {
	M1Min, M1Max int
	M2Min, M2Max int
}

func newMailbox(region Region, sl StepLimits) *Mailbox {
	return &Mailbox{
		region: region,
		M1Min:  sl.M1Min, M1Max: sl.M1Max,
		M2Min: sl.M2Min, M2Max: sl.M2Max,
	}
}

func (m *Mailbox) writeInitial() {
	b := m.region.Bytes()
	binary.LittleEndian.PutUint32(b[offMagic:], Magic)
	binary.LittleEndian.PutUint16(b[offMs:], 0)
	binary.LittleEndian.PutUint16(b[offM1:], 0)
	binary.LittleEndian.PutUint16(b[offM2:], 0)
	binary.LittleEndian.PutUint16(b[offFlags:], FlagMotorsOn)
	m.storeOk(0)
}

func (m *Mailbox) okPtr() *uint16 {
	return (*uint16)(unsafe.Pointer(&m.region.Bytes()[offOk]))
}

func (m *Mailbox) loadOk() uint16   { return atomic.LoadUint16(m.okPtr()) }
func (m *Mailbox) storeOk(v uint16) { atomic.StoreUint16(m.okPtr(), v) }

// HwIdle reports whether the firmware has released the command slot.
func (m *Mailbox) HwIdle() bool { return m.loadOk() == 0 }

// SetHome resets the accumulated step position to (0,0), used once at
// startup.
func (m *Mailbox) SetHome() {
	m.m1Limit = 0
	m.m2Limit = 0
}

// LastCommanded returns the last nonzero per-axis step delta
// commanded, used by the backlash logger.
func (m *Mailbox) LastCommanded() (m1, m2 int) { return m.lastM1, m.lastM2 }

// StepLimit returns the current accumulated step position.
func (m *Mailbox) StepLimit() (m1, m2 int) { return m.m1Limit, m.m2Limit }

// StartMove posts a relative move of (deltaM1, deltaM2) steps with the
// laser forced to the given state. It returns false without any state
// change if the accumulated position would leave its hard range
// (Invariant 4). If the slot is still owned by firmware (Invariant 5)
// it returns false without writing the shared region, but the
// accumulated position and last-commanded deltas are still updated.
func (m *Mailbox) StartMove(deltaM1, deltaM2 float64, laserOn bool) bool {
	m1 := int(roundHalfAwayFromZero(deltaM1))
	m2 := int(roundHalfAwayFromZero(deltaM2))

	if m.m1Limit+m1 < m.M1Min || m.m1Limit+m1 > m.M1Max ||
		m.m2Limit+m2 < m.M2Min || m.m2Limit+m2 > m.M2Max {
		monitoring.Logf("mailbox: move out of range: at (%d,%d) moving (%d,%d)", m.m1Limit, m.m2Limit, m1, m2)
		return false
	}

	// The accumulated position commits even on a busy slot: firmware
	// will eventually catch up to wherever the driver thinks the
	// mirrors are, and the driver's own idea of position must not drift
	// from that commitment just because this particular command was
	// dropped.
	m.m1Limit += m1
	m.m2Limit += m2
	if m1 != 0 {
		m.lastM1 = m1
	}
	if m2 != 0 {
		m.lastM2 = m2
	}

	if m.loadOk() != 0 {
		monitoring.Logf("mailbox: start_move command not done")
		return false
	}

	b := m.region.Bytes()
	binary.LittleEndian.PutUint16(b[offMs:], 0)

	flags := binary.LittleEndian.Uint16(b[offFlags:])
	if m1 < 0 {
		binary.LittleEndian.PutUint16(b[offM1:], uint16(-m1))
		flags |= FlagM1Neg
	} else {
		binary.LittleEndian.PutUint16(b[offM1:], uint16(m1))
		flags &^= FlagM1Neg
	}
	if m2 < 0 {
		binary.LittleEndian.PutUint16(b[offM2:], uint16(-m2))
		flags |= FlagM2Neg
	} else {
		binary.LittleEndian.PutUint16(b[offM2:], uint16(m2))
		flags &^= FlagM2Neg
	}
	if laserOn {
		flags |= FlagLaserOn
	} else {
		flags &^= FlagLaserOn
	}
	binary.LittleEndian.PutUint16(b[offFlags:], flags)

	m.storeOk(1)
	return true
}

// SwitchLaser posts a zero-step move that only toggles the laser. It
// returns false if the slot is still owned by firmware.
func (m *Mailbox) SwitchLaser(on bool) bool {
	if m.loadOk() != 0 {
		monitoring.Logf("mailbox: laser command not done")
		return false
	}
	b := m.region.Bytes()
	binary.LittleEndian.PutUint16(b[offM1:], 0)
	binary.LittleEndian.PutUint16(b[offM2:], 0)
	flags := binary.LittleEndian.Uint16(b[offFlags:])
	flags &^= FlagM1Neg
	flags &^= FlagM2Neg
	if on {
		flags |= FlagLaserOn
	} else {
		flags &^= FlagLaserOn
	}
	binary.LittleEndian.PutUint16(b[offFlags:], flags)
	m.storeOk(1)
	return true
}

// Shutdown busy-waits for the slot to be idle, then posts a terminal
// SHUTDOWN command. It is always the last write to the mailbox.
func (m *Mailbox) Shutdown() {
	for m.loadOk() != 0 {
	}
	b := m.region.Bytes()
	binary.LittleEndian.PutUint16(b[offM1:], 0)
	binary.LittleEndian.PutUint16(b[offM2:], 0)
	binary.LittleEndian.PutUint16(b[offFlags:], FlagShutdown)
	m.storeOk(1)
}

// Close releases the underlying region.
func (m *Mailbox) Close() error { return m.region.Close() }

func roundHalfAwayFromZero(v float64) float64 {
	if v < 0 {
		return -roundHalfAwayFromZero(-v)
	}
	frac := v - float64(int(v))
	if frac >= 0.5 {
		return float64(int(v) + 1)
	}
	return float64(int(v))
}
