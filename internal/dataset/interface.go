// Package dataset supplies historical per-player rate statistics to the
// estimator. The canonical source is a local CSV pair (players + matches);
// an HTTP-backed source with a disk cache is available for deployments that
// sync data from a remote service.
package dataset

import (
	"fmt"
	"time"
)

// PlayerRecord identifies one player in the dataset.
type PlayerRecord struct {
	PlayerID   string `json:"player_id"`
	Name       string `json:"name"`
	Country    string `json:"country,omitempty"`
	Handedness string `json:"handedness,omitempty"`
}

// MatchRow is one historical match as recorded in the dataset, with both
// players' per-match rate statistics.
type MatchRow struct {
	Date     time.Time
	PlayerA  string
	PlayerB  string
	WinnerID string

	AServeRallies int
	AServeWins    int
	BServeRallies int
	BServeWins    int

	AShortServeRate float64
	AFlickServeRate float64
	AAttackRate     float64
	ANeutralRate    float64
	ASafeRate       float64
	BShortServeRate float64
	BFlickServeRate float64
	BAttackRate     float64
	BNeutralRate    float64
	BSafeRate       float64

	APoints int
	BPoints int
}

// PerspectiveRow is a match re-expressed from one player's point of view.
type PerspectiveRow struct {
	Date       time.Time
	PlayerID   string
	OpponentID string

	ServeRallies   int
	ServeWins      int
	ReceiveRallies int
	ReceiveWins    int

	ShortRate   float64
	FlickRate   float64
	AttackRate  float64
	NeutralRate float64
	SafeRate    float64

	PointsFor     int
	PointsAgainst int
	Won           bool
}

// Adapter is the read-only historical data source consumed by the stats
// estimator.
type Adapter interface {
	// ResolvePlayer accepts a player id or a (possibly partial) name.
	ResolvePlayer(ref string) (PlayerRecord, error)
	// PlayerRows returns the player's last `window` matches from that
	// player's perspective, optionally cut off at asOf (zero = no cutoff).
	PlayerRows(playerID string, window int, asOf time.Time) ([]PerspectiveRow, error)
	// HeadToHeadRows returns the matches between the two players from
	// player A's perspective. An empty slice means no head-to-head history.
	HeadToHeadRows(playerAID, playerBID string, window int, asOf time.Time) ([]PerspectiveRow, error)
	// Matches returns the full windowed match table used for influence
	// weight estimation.
	Matches(window int, asOf time.Time) ([]MatchRow, error)
	// Snapshot identifies the loaded dataset revision; estimators key
	// their caches on it.
	Snapshot() string
}

// DataError reports a problem with the historical data itself, such as a
// player with no matches inside the requested window.
type DataError struct {
	PlayerID string
	Message  string
}

func (e *DataError) Error() string {
	if e.PlayerID != "" {
		return fmt.Sprintf("data error for player %s: %s", e.PlayerID, e.Message)
	}
	return fmt.Sprintf("data error: %s", e.Message)
}

// Perspective re-expresses a match from the given player's point of view.
// Receive wins are the rallies the opponent served and lost.
func Perspective(row MatchRow, playerID string) PerspectiveRow {
	if row.PlayerA == playerID {
		return PerspectiveRow{
			Date:           row.Date,
			PlayerID:       playerID,
			OpponentID:     row.PlayerB,
			ServeRallies:   row.AServeRallies,
			ServeWins:      row.AServeWins,
			ReceiveRallies: row.BServeRallies,
			ReceiveWins:    row.BServeRallies - row.BServeWins,
			ShortRate:      row.AShortServeRate,
			FlickRate:      row.AFlickServeRate,
			AttackRate:     row.AAttackRate,
			NeutralRate:    row.ANeutralRate,
			SafeRate:       row.ASafeRate,
			PointsFor:      row.APoints,
			PointsAgainst:  row.BPoints,
			Won:            row.WinnerID == row.PlayerA,
		}
	}
	return PerspectiveRow{
		Date:           row.Date,
		PlayerID:       playerID,
		OpponentID:     row.PlayerA,
		ServeRallies:   row.BServeRallies,
		ServeWins:      row.BServeWins,
		ReceiveRallies: row.AServeRallies,
		ReceiveWins:    row.AServeRallies - row.AServeWins,
		ShortRate:      row.BShortServeRate,
		FlickRate:      row.BFlickServeRate,
		AttackRate:     row.BAttackRate,
		NeutralRate:    row.BNeutralRate,
		SafeRate:       row.BSafeRate,
		PointsFor:      row.BPoints,
		PointsAgainst:  row.APoints,
		Won:            row.WinnerID == row.PlayerB,
	}
}
