package tracker

import (
	"testing"

	"github.com/rgbond/antctl/internal/avg"
	"github.com/rgbond/antctl/internal/blobs"
	"github.com/rgbond/antctl/internal/geometry"
	"github.com/stretchr/testify/require"
)

func scoredBlob(xc, yc, score int) ScoredBlob {
	return ScoredBlob{Blob: blobs.Blob{Xc: xc, Yc: yc, Npix: 10}, Score: score}
}

func TestSelectAntCreatesNewTrackFromScoredBlob(t *testing.T) {
	tr := New()
	best := tr.SelectAnt([]ScoredBlob{scoredBlob(100, 100, 10)}, 0, 0, 30.0, 0.033, Point{}, nil, nil)
	require.Nil(t, best) // fresh track starts below scoreFloor

	require.Len(t, tr.Tracks(), 1)
	require.Equal(t, Point{100, 100}, tr.Tracks()[0].Last)
}

func TestSelectAntAccumulatesScoreAcrossFrames(t *testing.T) {
	tr := New()
	for i := 0; i < 4; i++ {
		tr.SelectAnt([]ScoredBlob{scoredBlob(100+i, 100, 15)}, i, uint64(i)*30, 30.0, 0.033, Point{}, nil, nil)
	}
	require.Len(t, tr.Tracks(), 1)
	require.Greater(t, tr.Tracks()[0].Score, defaultScoreFloor)
}

func TestSelectAntReturnsBestTrackOnceAboveFloor(t *testing.T) {
	tr := New()
	var best *Track
	for i := 0; i < 4; i++ {
		best = tr.SelectAnt([]ScoredBlob{scoredBlob(100, 100, 15)}, i, uint64(i)*30, 30.0, 0.033, Point{}, nil, nil)
	}
	require.NotNil(t, best)
	require.Greater(t, best.Score, defaultScoreFloor)
}

func TestAssociationClaimsNearestUnclaimedTrack(t *testing.T) {
	tr := New()
	// Seed two tracks far apart.
	tr.SelectAnt([]ScoredBlob{scoredBlob(0, 0, 15), scoredBlob(500, 500, 15)}, 0, 0, 30.0, 0.033, Point{}, nil, nil)
	require.Len(t, tr.Tracks(), 2)

	// A single blob near (0,0) should only ever update that track.
	tr.SelectAnt([]ScoredBlob{scoredBlob(5, 5, 15)}, 1, 30, 30.0, 0.033, Point{}, nil, nil)

	var near, far *Track
	for _, t0 := range tr.Tracks() {
		if t0.Last.X < 100 {
			near = t0
		} else {
			far = t0
		}
	}
	require.NotNil(t, near)
	require.NotNil(t, far)
	require.Equal(t, Point{5, 5}, near.Last)
	require.Equal(t, 1, near.LastFrame)
	require.Equal(t, 0, far.LastFrame) // untouched this round
}

func TestUnmatchedTrackDecaysAndDies(t *testing.T) {
	tr := New()
	tr.SelectAnt([]ScoredBlob{scoredBlob(10, 10, 6)}, 0, 0, 30.0, 0.033, Point{}, nil, nil)
	require.Len(t, tr.Tracks(), 1)

	// No further detections: score decays by 1 each frame until it dies.
	for i := 1; i <= 6; i++ {
		tr.SelectAnt(nil, i, uint64(i)*30, 30.0, 0.033, Point{}, nil, nil)
	}
	require.Empty(t, tr.Tracks())
}

func TestSelectAntIgnoresZeroScoreBlobs(t *testing.T) {
	tr := New()
	tr.SelectAnt([]ScoredBlob{scoredBlob(10, 10, 0)}, 0, 0, 30.0, 0.033, Point{}, nil, nil)
	require.Empty(t, tr.Tracks())
}

func TestBlobOutsideCloseBlobRadiusStartsNewTrack(t *testing.T) {
	tr := New()
	tr.SelectAnt([]ScoredBlob{scoredBlob(0, 0, 15)}, 0, 0, 30.0, 0.033, Point{}, nil, nil)
	require.Len(t, tr.Tracks(), 1)

	tr.SelectAnt([]ScoredBlob{scoredBlob(1000, 1000, 15)}, 1, 30, 30.0, 0.033, Point{}, nil, nil)
	require.Len(t, tr.Tracks(), 2)
}

func TestPredictNextPosHoldsLastWhenSlow(t *testing.T) {
	geom := geometry.DefaultConfig()
	tr := &Track{Last: Point{640, 480}, UV: avg.NewDirection(5), AvgSpeed: avg.NewScalar(10)}
	cur := geom.PxyToLoc(640, 480)

	got := PredictNextPos(tr, geom, cur, 2.0, 0.033)
	require.Equal(t, tr.Last, got)
}

func TestPredictNextPosAdvancesWithHeading(t *testing.T) {
	geom := geometry.DefaultConfig()
	tr := &Track{Last: Point{640, 480}, UV: avg.NewDirection(5), AvgSpeed: avg.NewScalar(10)}
	tr.UV.Add(avg.Vec2{X: 1, Y: 0})
	tr.AvgSpeed.Add(50)
	cur := geom.PxyToLoc(640, 480)

	got := PredictNextPos(tr, geom, cur, 2.0, 0.033)
	require.Greater(t, got.X, tr.Last.X)
}
