package mailbox

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLimits() StepLimits {
	return StepLimits{M1Min: -380, M1Max: 345, M2Min: -860, M2Max: 980}
}

func TestOpenWithoutHandshakeWritesMagicAndMotorsOn(t *testing.T) {
	r := NewMemRegion()
	mb, err := OpenWithoutHandshake(r, testLimits())
	require.NoError(t, err)
	b := r.Bytes()
	require.Equal(t, Magic, binary.LittleEndian.Uint32(b[offMagic:]))
	require.Equal(t, FlagMotorsOn, binary.LittleEndian.Uint16(b[offFlags:]))
	require.True(t, mb.HwIdle())
}

func TestStartMoveEncodesSignAndMagnitudeSeparately(t *testing.T) {
	r := NewMemRegion()
	mb, err := OpenWithoutHandshake(r, testLimits())
	require.NoError(t, err)

	ok := mb.StartMove(-10, 20, true)
	require.True(t, ok)

	b := r.Bytes()
	require.Equal(t, uint16(10), binary.LittleEndian.Uint16(b[offM1:]))
	require.Equal(t, uint16(20), binary.LittleEndian.Uint16(b[offM2:]))
	flags := binary.LittleEndian.Uint16(b[offFlags:])
	require.NotZero(t, flags&FlagM1Neg)
	require.Zero(t, flags&FlagM2Neg)
	require.NotZero(t, flags&FlagLaserOn)
	require.False(t, mb.HwIdle())
}

func TestStartMoveRejectedWhenSlotBusyStillAccumulates(t *testing.T) {
	r := NewMemRegion()
	mb, err := OpenWithoutHandshake(r, testLimits())
	require.NoError(t, err)

	require.True(t, mb.StartMove(1, 1, false))
	m1Before, m2Before := mb.StepLimit()

	require.False(t, mb.StartMove(1, 1, false))
	m1After, m2After := mb.StepLimit()
	require.Equal(t, m1Before+1, m1After)
	require.Equal(t, m2Before+1, m2After)
}

func TestStartMoveRejectedOutOfRange(t *testing.T) {
	r := NewMemRegion()
	mb, err := OpenWithoutHandshake(r, testLimits())
	require.NoError(t, err)

	require.False(t, mb.StartMove(400, 0, false))
	m1, m2 := mb.StepLimit()
	require.Equal(t, 0, m1)
	require.Equal(t, 0, m2)
}

func TestSwitchLaserTogglesFlagWithoutSteps(t *testing.T) {
	r := NewMemRegion()
	mb, err := OpenWithoutHandshake(r, testLimits())
	require.NoError(t, err)

	require.True(t, mb.SwitchLaser(true))
	b := r.Bytes()
	require.Equal(t, uint16(0), binary.LittleEndian.Uint16(b[offM1:]))
	flags := binary.LittleEndian.Uint16(b[offFlags:])
	require.NotZero(t, flags&FlagLaserOn)
}

func TestShutdownPostsShutdownFlagOnly(t *testing.T) {
	r := NewMemRegion()
	mb, err := OpenWithoutHandshake(r, testLimits())
	require.NoError(t, err)

	mb.Shutdown()
	b := r.Bytes()
	flags := binary.LittleEndian.Uint16(b[offFlags:])
	require.Equal(t, FlagShutdown, flags)
	require.False(t, mb.HwIdle())
}

func TestSetHomeResetsAccumulatedPosition(t *testing.T) {
	r := NewMemRegion()
	mb, err := OpenWithoutHandshake(r, testLimits())
	require.NoError(t, err)

	require.True(t, mb.StartMove(10, 10, false))
	mb.SetHome()
	m1, m2 := mb.StepLimit()
	require.Equal(t, 0, m1)
	require.Equal(t, 0, m2)
}
