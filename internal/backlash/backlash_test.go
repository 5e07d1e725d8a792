package backlash

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rgbond/antctl/internal/geometry"
	"github.com/stretchr/testify/require"
)

func openTestLogger(t *testing.T) *Logger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backlash.db")
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestStartAddCorrectionStopWritesRows(t *testing.T) {
	l := openTestLogger(t)

	from := geometry.Loc{Px: 100, Py: 100, M1Steps: 10, M2Steps: 20}
	to := geometry.Loc{Px: 200, Py: 150, M1Steps: 50, M2Steps: 80}

	l.Start(from, to, 10, 20, 40, 60)
	l.AddCorrection(geometry.Loc{Px: 180, Py: 140, M1Steps: 45, M2Steps: 70}, 45, 70, 5, 10)
	require.NoError(t, l.Stop(geometry.Loc{Px: 200, Py: 150, M1Steps: 50, M2Steps: 80}, 50, 80))

	var count int
	require.NoError(t, l.db.QueryRow(`SELECT COUNT(*) FROM moves`).Scan(&count))
	require.Equal(t, 3, count) // move + one correction + stop

	var kinds []string
	rows, err := l.db.Query(`SELECT kind FROM moves ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var k string
		require.NoError(t, rows.Scan(&k))
		kinds = append(kinds, k)
	}
	require.Equal(t, []string{"move", "corr", "corr"}, kinds)
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	l := openTestLogger(t)
	require.NoError(t, l.Stop(geometry.Loc{}, 0, 0))

	var count int
	require.NoError(t, l.db.QueryRow(`SELECT COUNT(*) FROM moves`).Scan(&count))
	require.Equal(t, 0, count)
}

func TestSummaryComputesQuantilesOverCorrections(t *testing.T) {
	l := openTestLogger(t)

	for i := 0; i < 5; i++ {
		l.Start(geometry.Loc{Px: 0, Py: 0}, geometry.Loc{Px: 100, Py: 100, M1Steps: 100, M2Steps: 100}, 0, 0, 50, 50)
		l.AddCorrection(geometry.Loc{Px: i, Py: i, M1Steps: float64(i), M2Steps: float64(i)}, 0, 0, float64(i), float64(i))
		require.NoError(t, l.Stop(geometry.Loc{Px: 100, Py: 100, M1Steps: 100, M2Steps: 100}, 0, 0))
	}

	summary, err := l.Summary()
	require.NoError(t, err)
	require.Equal(t, 10, summary.M1.Count) // one AddCorrection row + one Stop row per move
}

func TestSeriesReturnsCorrectionRowsInMoveOrder(t *testing.T) {
	l := openTestLogger(t)

	for i := 1; i <= 3; i++ {
		l.Start(geometry.Loc{Px: 0, Py: 0}, geometry.Loc{Px: 100, Py: 100, M1Steps: 100, M2Steps: 100}, 0, 0, 50, 50)
		l.AddCorrection(geometry.Loc{Px: i, Py: i, M1Steps: float64(i), M2Steps: float64(i)}, 0, 0, float64(i), float64(i))
		require.NoError(t, l.Stop(geometry.Loc{Px: 100, Py: 100, M1Steps: 100, M2Steps: 100}, 0, 0))
	}

	series, err := l.Series()
	require.NoError(t, err)
	require.Len(t, series, 6) // one AddCorrection row + one Stop row per move

	for i := 1; i < len(series); i++ {
		require.LessOrEqual(t, series[i-1].MoveIndex, series[i].MoveIndex)
	}
}

func TestCorrectIsANoop(t *testing.T) {
	l := openTestLogger(t)
	m1, m2 := 3.0, 4.0
	l.Correct(&m1, &m2)
	require.Equal(t, 3.0, m1)
	require.Equal(t, 4.0, m2)
}

func TestAttachAdminRoutesRegistersSummaryRoute(t *testing.T) {
	l := openTestLogger(t)
	mux := http.NewServeMux()
	l.AttachAdminRoutes(mux, filepath.Join(t.TempDir(), "backlash.db"))

	req := httptest.NewRequest(http.MethodGet, "/debug/backlash-summary", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.NotEqual(t, http.StatusNotFound, w.Code)
}
