package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var matchHeader = "date,playerA_id,playerB_id,winner_id," +
	"a_serve_rallies,a_serve_wins,b_serve_rallies,b_serve_wins," +
	"a_short_serve_rate,a_flick_serve_rate,b_short_serve_rate,b_flick_serve_rate," +
	"a_attack_rate,a_neutral_rate,a_safe_rate,b_attack_rate,b_neutral_rate,b_safe_rate," +
	"a_points,b_points\n"

func matchLine(date, a, b, winner string, aSR, aSW, bSR, bSW, aPts, bPts int) string {
	return fmt.Sprintf("%s,%s,%s,%s,%d,%d,%d,%d,0.6,0.4,0.5,0.5,0.4,0.35,0.25,0.3,0.4,0.3,%d,%d\n",
		date, a, b, winner, aSR, aSW, bSR, bSW, aPts, bPts)
}

func writeFixture(t *testing.T, matches string) *CSVAdapter {
	t.Helper()
	dir := t.TempDir()

	players := "player_id,name,country,handedness\n" +
		"p001,Arif Kusnandar,INA,R\n" +
		"p002,Teo Jun Hao,MAS,R\n" +
		"p003,Kenta Morishita,JPN,L\n"
	playersPath := filepath.Join(dir, "players.csv")
	matchesPath := filepath.Join(dir, "matches.csv")
	require.NoError(t, os.WriteFile(playersPath, []byte(players), 0o644))
	require.NoError(t, os.WriteFile(matchesPath, []byte(matchHeader+matches), 0o644))
	return NewCSVAdapter(playersPath, matchesPath)
}

func defaultFixture(t *testing.T) *CSVAdapter {
	return writeFixture(t,
		matchLine("2025-03-01", "p001", "p002", "p001", 40, 24, 38, 17, 21, 17)+
			matchLine("2025-03-08", "p002", "p003", "p003", 36, 18, 40, 22, 18, 21)+
			matchLine("2025-03-15", "p001", "p002", "p002", 42, 19, 40, 23, 19, 21)+
			matchLine("2025-03-22", "p001", "p003", "p001", 39, 23, 37, 16, 21, 16))
}

func TestResolvePlayerByID(t *testing.T) {
	adapter := defaultFixture(t)
	p, err := adapter.ResolvePlayer("p002")
	require.NoError(t, err)
	assert.Equal(t, "Teo Jun Hao", p.Name)
}

func TestResolvePlayerByExactNameCaseInsensitive(t *testing.T) {
	adapter := defaultFixture(t)
	p, err := adapter.ResolvePlayer("  arif  KUSNANDAR ")
	require.NoError(t, err)
	assert.Equal(t, "p001", p.PlayerID)
}

func TestResolvePlayerByUniqueSubstring(t *testing.T) {
	adapter := defaultFixture(t)
	p, err := adapter.ResolvePlayer("morishita")
	require.NoError(t, err)
	assert.Equal(t, "p003", p.PlayerID)
}

func TestResolvePlayerUnknownWithSuggestions(t *testing.T) {
	adapter := defaultFixture(t)
	_, err := adapter.ResolvePlayer("Arif Kusnander")
	require.Error(t, err)

	var dErr *DataError
	require.ErrorAs(t, err, &dErr)
	assert.Contains(t, dErr.Message, "Did you mean")
	assert.Contains(t, dErr.Message, "Arif Kusnandar")
}

func TestResolvePlayerUnknownNoSuggestions(t *testing.T) {
	adapter := defaultFixture(t)
	_, err := adapter.ResolvePlayer("zzzzzzzzzzzz")
	require.Error(t, err)

	var dErr *DataError
	require.ErrorAs(t, err, &dErr)
	assert.NotContains(t, dErr.Message, "Did you mean")
}

func TestPlayerRowsWindowAndOrder(t *testing.T) {
	adapter := defaultFixture(t)
	rows, err := adapter.PlayerRows("p001", 2, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// The window keeps the most recent matches in date order.
	assert.Equal(t, "p002", rows[0].OpponentID)
	assert.Equal(t, "p003", rows[1].OpponentID)
	assert.True(t, rows[1].Won)
}

func TestPlayerRowsAsOfCutoff(t *testing.T) {
	adapter := defaultFixture(t)
	asOf := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	rows, err := adapter.PlayerRows("p001", 10, asOf)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), rows[0].Date)
}

func TestPlayerRowsEmptyWindowIsDataError(t *testing.T) {
	adapter := defaultFixture(t)
	asOf := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := adapter.PlayerRows("p001", 10, asOf)

	var dErr *DataError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, "p001", dErr.PlayerID)
}

func TestHeadToHeadRowsBothOrientations(t *testing.T) {
	adapter := defaultFixture(t)
	rows, err := adapter.HeadToHeadRows("p002", "p001", 10, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, "p002", r.PlayerID)
		assert.Equal(t, "p001", r.OpponentID)
	}
	assert.False(t, rows[0].Won)
	assert.True(t, rows[1].Won)
}

func TestPerspectiveReceiveWins(t *testing.T) {
	row := MatchRow{
		PlayerA: "p001", PlayerB: "p002", WinnerID: "p002",
		AServeRallies: 40, AServeWins: 22, BServeRallies: 36, BServeWins: 20,
		APoints: 20, BPoints: 22,
	}

	a := Perspective(row, "p001")
	assert.Equal(t, 36, a.ReceiveRallies)
	assert.Equal(t, 16, a.ReceiveWins) // opponent served 36, won 20
	assert.False(t, a.Won)

	b := Perspective(row, "p002")
	assert.Equal(t, 40, b.ReceiveRallies)
	assert.Equal(t, 18, b.ReceiveWins)
	assert.True(t, b.Won)
}

func TestLoadMatchesRejectsMalformedRow(t *testing.T) {
	adapter := writeFixture(t, "not-a-date,p001,p002,p001,1,1,1,1,0.5,0.5,0.5,0.5,0.3,0.4,0.3,0.3,0.4,0.3,21,10\n")
	_, err := adapter.Matches(10, time.Time{})
	assert.Error(t, err)
}

func TestLoadPlayersRejectsEmptyTable(t *testing.T) {
	dir := t.TempDir()
	playersPath := filepath.Join(dir, "players.csv")
	matchesPath := filepath.Join(dir, "matches.csv")
	require.NoError(t, os.WriteFile(playersPath, []byte("player_id,name,country,handedness\n"), 0o644))
	require.NoError(t, os.WriteFile(matchesPath, []byte(matchHeader), 0o644))

	adapter := NewCSVAdapter(playersPath, matchesPath)
	_, err := adapter.ResolvePlayer("p001")
	assert.Error(t, err)
}
