// Package stats turns windows of historical matches into smoothed parameter
// estimates: per-player base rates and serve/style mixes, head-to-head
// blending, and the dataset-wide influence weights.
package stats

import (
	"fmt"
	"math"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/rally-coach/internal/dataset"
	"github.com/yourusername/rally-coach/internal/models"
)

// Laplace smoothing strengths. The base rate uses the strongest pull, the
// match win rate the weakest.
const (
	alphaBase     = 2.0
	alphaHeadHead = 1.5
	alphaWinRate  = 1.0
)

// minRegressionRows is the minimum dataset size for fitting influence
// weights; below it the fixed defaults are used to avoid fitting noise.
const minRegressionRows = 10

// PlayerStats is the smoothed per-player estimate derived from one window.
type PlayerStats struct {
	PlayerID       string               `json:"player_id"`
	Name           string               `json:"name"`
	Matches        int                  `json:"matches"`
	WinRate        float64              `json:"win_rate"`
	BaseServeWin   float64              `json:"base_srv_win"`
	BaseReceiveWin float64              `json:"base_rcv_win"`
	ServeMix       models.ServeMix      `json:"serve_mix"`
	RallyStyle     models.RallyStyleMix `json:"rally_style"`
	ServeTrials    int                  `json:"serve_trials"`
	ReceiveTrials  int                  `json:"receive_trials"`
}

// HeadToHead summarizes the direct history between the two players.
type HeadToHead struct {
	Matches     int     `json:"matches"`
	AWinRate    float64 `json:"a_win_rate"`
	AServeWin   float64 `json:"a_srv_win"`
	AReceiveWin float64 `json:"a_rcv_win"`
}

// MatchupStats bundles everything the estimator derived for one matchup.
type MatchupStats struct {
	PlayerA      dataset.PlayerRecord    `json:"player_a_record"`
	PlayerB      dataset.PlayerRecord    `json:"player_b_record"`
	PlayerAStats PlayerStats             `json:"player_a"`
	PlayerBStats PlayerStats             `json:"player_b"`
	HeadToHead   HeadToHead              `json:"head_to_head"`
	Weights      models.InfluenceWeights `json:"weights"`
}

// Estimator converts historical windows into validated matchup parameters.
// Influence weights are estimated once per dataset snapshot and cached.
type Estimator struct {
	adapter dataset.Adapter
	cache   *gocache.Cache
	logger  *logrus.Logger
}

// NewEstimator creates an estimator over the given data source.
func NewEstimator(adapter dataset.Adapter, logger *logrus.Logger) *Estimator {
	return &Estimator{
		adapter: adapter,
		cache:   gocache.New(30*time.Minute, 10*time.Minute),
		logger:  logger,
	}
}

func laplace(wins, trials, alpha float64) float64 {
	return (wins + alpha) / (trials + 2.0*alpha)
}

// PlayerStats estimates one player's smoothed parameters from the window.
func (e *Estimator) PlayerStats(record dataset.PlayerRecord, window int, asOf time.Time) (PlayerStats, error) {
	rows, err := e.adapter.PlayerRows(record.PlayerID, window, asOf)
	if err != nil {
		return PlayerStats{}, err
	}

	var serveTrials, serveWins, receiveTrials, receiveWins, wins int
	var serveWeight, rallyWeight float64
	var shortSum, attackSum, safeSum float64
	for _, r := range rows {
		serveTrials += r.ServeRallies
		serveWins += r.ServeWins
		receiveTrials += r.ReceiveRallies
		receiveWins += r.ReceiveWins
		if r.Won {
			wins++
		}

		sw := math.Max(float64(r.ServeRallies), 1)
		rw := math.Max(float64(r.PointsFor+r.PointsAgainst), 1)
		serveWeight += sw
		rallyWeight += rw
		shortSum += r.ShortRate * sw
		attackSum += r.AttackRate * rw
		safeSum += r.SafeRate * rw
	}

	baseServe := laplace(float64(serveWins), float64(serveTrials), alphaBase)
	baseReceive := laplace(float64(receiveWins), float64(receiveTrials), alphaBase)

	// Dirichlet-style pull of the short-serve rate toward 0.5.
	short := (shortSum/serveWeight + 0.02) / (1.0 + 0.04)
	serveMix, err := models.NewServeMix(short, 1.0-short)
	if err != nil {
		return PlayerStats{}, err
	}

	attack := models.Clamp(attackSum/rallyWeight, 0.05, 0.9)
	safe := models.Clamp(safeSum/rallyWeight, 0.05, 0.9)
	neutral := math.Max(0.05, 1.0-attack-safe)
	total := attack + neutral + safe
	rallyStyle, err := models.NewRallyStyleMix(attack/total, neutral/total, safe/total)
	if err != nil {
		return PlayerStats{}, err
	}

	return PlayerStats{
		PlayerID:       record.PlayerID,
		Name:           record.Name,
		Matches:        len(rows),
		WinRate:        laplace(float64(wins), float64(len(rows)), alphaWinRate),
		BaseServeWin:   baseServe,
		BaseReceiveWin: baseReceive,
		ServeMix:       serveMix,
		RallyStyle:     rallyStyle,
		ServeTrials:    serveTrials,
		ReceiveTrials:  receiveTrials,
	}, nil
}

// HeadToHead summarizes the direct history between the players, from player
// A's perspective. With no shared matches the neutral 0.5 rates are
// returned with Matches == 0.
func (e *Estimator) HeadToHead(playerAID, playerBID string, window int, asOf time.Time) (HeadToHead, error) {
	rows, err := e.adapter.HeadToHeadRows(playerAID, playerBID, window, asOf)
	if err != nil {
		return HeadToHead{}, err
	}
	if len(rows) == 0 {
		return HeadToHead{Matches: 0, AWinRate: 0.5, AServeWin: 0.5, AReceiveWin: 0.5}, nil
	}

	var serveTrials, serveWins, receiveTrials, receiveWins, wins int
	for _, r := range rows {
		serveTrials += r.ServeRallies
		serveWins += r.ServeWins
		receiveTrials += r.ReceiveRallies
		receiveWins += r.ReceiveWins
		if r.Won {
			wins++
		}
	}

	return HeadToHead{
		Matches:     len(rows),
		AWinRate:    laplace(float64(wins), float64(len(rows)), alphaWinRate),
		AServeWin:   laplace(float64(serveWins), float64(serveTrials), alphaHeadHead),
		AReceiveWin: laplace(float64(receiveWins), float64(receiveTrials), alphaHeadHead),
	}, nil
}

// InfluenceWeights regresses point-share margin on the style differentials
// and returns the clamped coefficient magnitudes. The result is cached per
// dataset snapshot and window.
func (e *Estimator) InfluenceWeights(window int, asOf time.Time) (models.InfluenceWeights, error) {
	key := fmt.Sprintf("weights|%s|%d|%d", e.adapter.Snapshot(), window, asOf.Unix())
	if cached, ok := e.cache.Get(key); ok {
		return cached.(models.InfluenceWeights), nil
	}

	matches, err := e.adapter.Matches(window, asOf)
	if err != nil {
		return models.InfluenceWeights{}, err
	}

	weights, err := estimateInfluenceWeights(matches)
	if err != nil {
		return models.InfluenceWeights{}, err
	}
	if len(matches) < minRegressionRows {
		e.logger.WithField("rows", len(matches)).Debug("Thin dataset, using default influence weights")
	}

	e.cache.Set(key, weights, gocache.DefaultExpiration)
	return weights, nil
}

// MatchupParams builds the validated parameter set for a matchup, blending
// base rates with head-to-head history when it exists.
func (e *Estimator) MatchupParams(playerARef, playerBRef string, window int, asOf time.Time, format models.GameFormat) (models.MatchupParams, *MatchupStats, error) {
	recordA, err := e.adapter.ResolvePlayer(playerARef)
	if err != nil {
		return models.MatchupParams{}, nil, err
	}
	recordB, err := e.adapter.ResolvePlayer(playerBRef)
	if err != nil {
		return models.MatchupParams{}, nil, err
	}
	if recordA.PlayerID == recordB.PlayerID {
		return models.MatchupParams{}, nil, &dataset.DataError{PlayerID: recordA.PlayerID, Message: "player A and player B must be different players"}
	}

	statsA, err := e.PlayerStats(recordA, window, asOf)
	if err != nil {
		return models.MatchupParams{}, nil, err
	}
	statsB, err := e.PlayerStats(recordB, window, asOf)
	if err != nil {
		return models.MatchupParams{}, nil, err
	}
	h2h, err := e.HeadToHead(recordA.PlayerID, recordB.PlayerID, window, asOf)
	if err != nil {
		return models.MatchupParams{}, nil, err
	}
	weights, err := e.InfluenceWeights(window, asOf)
	if err != nil {
		return models.MatchupParams{}, nil, err
	}

	// More head-to-head data shifts weight away from the general window,
	// capped at 35%.
	blend := 0.0
	if h2h.Matches > 0 {
		blend = math.Min(0.35, float64(h2h.Matches)/(float64(h2h.Matches)+12.0))
	}
	statsA.BaseServeWin = (1.0-blend)*statsA.BaseServeWin + blend*h2h.AServeWin
	statsA.BaseReceiveWin = (1.0-blend)*statsA.BaseReceiveWin + blend*h2h.AReceiveWin

	playerA, err := buildPlayerParams(statsA)
	if err != nil {
		return models.MatchupParams{}, nil, err
	}
	playerB, err := buildPlayerParams(statsB)
	if err != nil {
		return models.MatchupParams{}, nil, err
	}

	matchup, err := models.NewMatchupParams(playerA, playerB, weights, format)
	if err != nil {
		return models.MatchupParams{}, nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"player_a":    playerA.Name,
		"player_b":    playerB.Name,
		"h2h_matches": h2h.Matches,
		"h2h_blend":   blend,
	}).Debug("Built matchup parameters")

	return matchup, &MatchupStats{
		PlayerA:      recordA,
		PlayerB:      recordB,
		PlayerAStats: statsA,
		PlayerBStats: statsB,
		HeadToHead:   h2h,
		Weights:      weights,
	}, nil
}

func buildPlayerParams(s PlayerStats) (models.PlayerParams, error) {
	return models.NewPlayerParams(
		s.PlayerID,
		s.Name,
		models.ClampProbability(s.BaseServeWin),
		models.ClampProbability(s.BaseReceiveWin),
		s.ServeMix,
		s.RallyStyle,
		s.Matches,
	)
}
