package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/rally-coach/internal/dataset"
	"github.com/yourusername/rally-coach/internal/models"
)

// fakeAdapter serves canned rows, letting the estimator be tested without
// touching the filesystem.
type fakeAdapter struct {
	players  map[string]dataset.PlayerRecord
	rows     map[string][]dataset.PerspectiveRow
	h2h      []dataset.PerspectiveRow
	matches  []dataset.MatchRow
	snapshot string
}

func (f *fakeAdapter) ResolvePlayer(ref string) (dataset.PlayerRecord, error) {
	if p, ok := f.players[ref]; ok {
		return p, nil
	}
	for _, p := range f.players {
		if p.Name == ref {
			return p, nil
		}
	}
	return dataset.PlayerRecord{}, &dataset.DataError{Message: fmt.Sprintf("player %q not found", ref)}
}

func (f *fakeAdapter) PlayerRows(playerID string, window int, asOf time.Time) ([]dataset.PerspectiveRow, error) {
	rows := f.rows[playerID]
	if len(rows) == 0 {
		return nil, &dataset.DataError{PlayerID: playerID, Message: "no matches found in window"}
	}
	return rows, nil
}

func (f *fakeAdapter) HeadToHeadRows(a, b string, window int, asOf time.Time) ([]dataset.PerspectiveRow, error) {
	return f.h2h, nil
}

func (f *fakeAdapter) Matches(window int, asOf time.Time) ([]dataset.MatchRow, error) {
	return f.matches, nil
}

func (f *fakeAdapter) Snapshot() string { return f.snapshot }

func perspectiveRow(won bool, serveWins int) dataset.PerspectiveRow {
	return dataset.PerspectiveRow{
		ServeRallies: 40, ServeWins: serveWins,
		ReceiveRallies: 40, ReceiveWins: 18,
		ShortRate: 0.6, FlickRate: 0.4,
		AttackRate: 0.4, NeutralRate: 0.35, SafeRate: 0.25,
		PointsFor: 21, PointsAgainst: 17,
		Won: won,
	}
}

func testAdapter() *fakeAdapter {
	a := &fakeAdapter{
		players: map[string]dataset.PlayerRecord{
			"p001": {PlayerID: "p001", Name: "Arif Kusnandar"},
			"p002": {PlayerID: "p002", Name: "Teo Jun Hao"},
		},
		rows:     map[string][]dataset.PerspectiveRow{},
		snapshot: "test",
	}
	for i := 0; i < 8; i++ {
		a.rows["p001"] = append(a.rows["p001"], perspectiveRow(i%2 == 0, 24))
		a.rows["p002"] = append(a.rows["p002"], perspectiveRow(i%3 == 0, 20))
	}
	return a
}

func testEstimator(adapter dataset.Adapter) *Estimator {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewEstimator(adapter, logger)
}

func TestLaplaceSmoothing(t *testing.T) {
	// No data pulls to 1/2; data dominates as trials grow.
	assert.InDelta(t, 0.5, laplace(0, 0, 2.0), 1e-12)
	assert.InDelta(t, (24.0+2.0)/(40.0+4.0), laplace(24, 40, 2.0), 1e-12)
	assert.Less(t, laplace(40, 40, 2.0), 1.0)
}

func TestPlayerStatsSmoothedRates(t *testing.T) {
	adapter := testAdapter()
	e := testEstimator(adapter)

	s, err := e.PlayerStats(dataset.PlayerRecord{PlayerID: "p001", Name: "Arif Kusnandar"}, 30, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 8, s.Matches)
	// 8 matches of 24/40 serve wins: (192+2)/(320+4).
	assert.InDelta(t, 194.0/324.0, s.BaseServeWin, 1e-9)
	// Short rate pulled toward 0.5: (0.6+0.02)/1.04.
	assert.InDelta(t, 0.62/1.04, s.ServeMix.Short, 1e-9)
	assert.InDelta(t, 1.0, s.ServeMix.Short+s.ServeMix.Flick, 1e-9)
	style := s.RallyStyle
	assert.InDelta(t, 1.0, style.Attack+style.Neutral+style.Safe, 1e-9)
}

func TestPlayerStatsNoRowsIsDataError(t *testing.T) {
	adapter := testAdapter()
	e := testEstimator(adapter)

	_, err := e.PlayerStats(dataset.PlayerRecord{PlayerID: "p404", Name: "Nobody"}, 30, time.Time{})
	var dErr *dataset.DataError
	require.ErrorAs(t, err, &dErr)
}

func TestHeadToHeadDefaultsWhenEmpty(t *testing.T) {
	e := testEstimator(testAdapter())

	h2h, err := e.HeadToHead("p001", "p002", 30, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, h2h.Matches)
	assert.Equal(t, 0.5, h2h.AServeWin)
	assert.Equal(t, 0.5, h2h.AReceiveWin)
	assert.Equal(t, 0.5, h2h.AWinRate)
}

func TestInfluenceWeightsDefaultsOnThinData(t *testing.T) {
	adapter := testAdapter()
	adapter.matches = make([]dataset.MatchRow, 5)
	e := testEstimator(adapter)

	w, err := e.InfluenceWeights(30, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, defaultInfluenceWeights, w)
}

func TestInfluenceWeightsCachedPerSnapshot(t *testing.T) {
	adapter := testAdapter()
	e := testEstimator(adapter)
	asOf := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	first, err := e.InfluenceWeights(30, asOf)
	require.NoError(t, err)
	assert.Equal(t, defaultInfluenceWeights, first)

	// A changed dataset behind the same snapshot key is not re-read, so the
	// fittable rows added here are never seen.
	for i := 0; i < 20; i++ {
		d := float64(i-10) / 25.0
		adapter.matches = append(adapter.matches, dataset.MatchRow{
			AShortServeRate: 0.5 + d, BShortServeRate: 0.5,
			AAttackRate: 0.35 + d/3, BAttackRate: 0.35,
			ASafeRate: 0.25, BSafeRate: 0.25 - d/4,
			APoints: 200 + int(40*d), BPoints: 200 - int(40*d),
		})
	}
	second, err := e.InfluenceWeights(30, asOf)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMatchupParamsBlendsHeadToHead(t *testing.T) {
	adapter := testAdapter()
	// 6 head-to-head matches, all dominant serving by player A.
	for i := 0; i < 6; i++ {
		r := perspectiveRow(true, 34)
		adapter.h2h = append(adapter.h2h, r)
	}
	e := testEstimator(adapter)

	base, baseStats, err := e.MatchupParams("p001", "p002", 30, time.Time{}, models.DefaultGameFormat)
	require.NoError(t, err)
	require.NotNil(t, baseStats)

	// blend = 6/18 = 1/3; the head-to-head serve rate exceeds the window
	// rate, so the blended base moves up.
	windowRate := 194.0 / 324.0
	h2hRate := (6.0*34.0 + 1.5) / (6.0*40.0 + 3.0)
	expected := (1.0-1.0/3.0)*windowRate + (1.0/3.0)*h2hRate
	assert.InDelta(t, expected, base.PlayerA.BaseServeWin, 1e-9)
	assert.Equal(t, 6, baseStats.HeadToHead.Matches)
}

func TestMatchupParamsSamePlayerRejected(t *testing.T) {
	e := testEstimator(testAdapter())
	_, _, err := e.MatchupParams("p001", "Arif Kusnandar", 30, time.Time{}, models.DefaultGameFormat)
	var dErr *dataset.DataError
	require.ErrorAs(t, err, &dErr)
}

func TestMatchupParamsUnknownPlayer(t *testing.T) {
	e := testEstimator(testAdapter())
	_, _, err := e.MatchupParams("p001", "p404", 30, time.Time{}, models.DefaultGameFormat)
	assert.Error(t, err)
}
