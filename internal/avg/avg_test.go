package avg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScalarEmpty(t *testing.T) {
	s := NewScalar(3)
	require.Equal(t, 0.0, s.Average())
}

func TestScalarExactWindow(t *testing.T) {
	s := NewScalar(4)
	samples := []float64{1, 2, 3, 4}
	for _, v := range samples {
		s.Add(v)
	}
	require.InDelta(t, 2.5, s.Average(), 1e-12)
}

func TestScalarSlidingWindow(t *testing.T) {
	s := NewScalar(3)
	for _, v := range []float64{10, 20, 30, 40, 50} {
		s.Add(v)
	}
	// last 3 samples: 30, 40, 50
	require.InDelta(t, 40.0, s.Average(), 1e-12)
}

func TestDirectionEmpty(t *testing.T) {
	d := NewDirection(5)
	require.Equal(t, Vec2{}, d.Average())
}

func TestDirectionUnitMagnitude(t *testing.T) {
	d := NewDirection(5)
	d.Add(Vec2{X: 3, Y: 4})
	avg := d.Average()
	mag := avg.X*avg.X + avg.Y*avg.Y
	require.InDelta(t, 1.0, mag, 1e-9)
	require.InDelta(t, 0.6, avg.X, 1e-9)
	require.InDelta(t, 0.8, avg.Y, 1e-9)
}

func TestDirectionZeroSum(t *testing.T) {
	d := NewDirection(2)
	d.Add(Vec2{X: 1, Y: 0})
	d.Add(Vec2{X: -1, Y: 0})
	require.Equal(t, Vec2{}, d.Average())
}

func TestDirectionSlidingWindow(t *testing.T) {
	d := NewDirection(2)
	d.Add(Vec2{X: 1, Y: 0})
	d.Add(Vec2{X: 0, Y: 1})
	d.Add(Vec2{X: 0, Y: 1}) // evicts the first sample
	avg := d.Average()
	require.InDelta(t, 0.0, avg.X, 1e-9)
	require.InDelta(t, 1.0, avg.Y, 1e-9)
}
