// Package models defines the validated parameter model for a matchup: the
// per-player rate parameters, the shared influence weights, and the
// adjustment algebra used by the strategy search. All types are value types
// constructed through validating constructors; adjustment operations return
// new instances and never mutate in place.
package models

import (
	"math"
	"strings"
)

// SimplexTolerance is the maximum deviation from 1.0 allowed for the sum of
// a mix vector.
const SimplexTolerance = 1e-6

// Clamp bounds value to [low, high].
func Clamp(value, low, high float64) float64 {
	return math.Max(low, math.Min(high, value))
}

// ClampProbability bounds a probability to the strict interior [0.01, 0.99]
// required by the model description grammar.
func ClampProbability(value float64) float64 {
	return Clamp(value, 0.01, 0.99)
}

// ServeMix is the serve selection distribution. Short + Flick must sum to 1.
type ServeMix struct {
	Short float64 `json:"short"`
	Flick float64 `json:"flick"`
}

// NewServeMix validates and constructs a serve mix.
func NewServeMix(short, flick float64) (ServeMix, error) {
	if short < 0 || short > 1 || flick < 0 || flick > 1 {
		return ServeMix{}, newValidationError("serve_mix", "components must be in [0,1]; got short=%.6f flick=%.6f", short, flick)
	}
	if total := short + flick; math.Abs(total-1.0) > SimplexTolerance {
		return ServeMix{}, newValidationError("serve_mix", "must sum to 1.0; got %.6f", total)
	}
	return ServeMix{Short: short, Flick: flick}, nil
}

// RallyStyleMix is the rally style distribution. Attack + Neutral + Safe
// must sum to 1.
type RallyStyleMix struct {
	Attack  float64 `json:"attack"`
	Neutral float64 `json:"neutral"`
	Safe    float64 `json:"safe"`
}

// NewRallyStyleMix validates and constructs a rally style mix.
func NewRallyStyleMix(attack, neutral, safe float64) (RallyStyleMix, error) {
	for name, v := range map[string]float64{"attack": attack, "neutral": neutral, "safe": safe} {
		if v < 0 || v > 1 {
			return RallyStyleMix{}, newValidationError("rally_style", "%s must be in [0,1]; got %.6f", name, v)
		}
	}
	if total := attack + neutral + safe; math.Abs(total-1.0) > SimplexTolerance {
		return RallyStyleMix{}, newValidationError("rally_style", "must sum to 1.0; got %.6f", total)
	}
	return RallyStyleMix{Attack: attack, Neutral: neutral, Safe: safe}, nil
}

// InfluenceWeights are the pairwise style influence coefficients, estimated
// once per dataset snapshot and shared read-only across matchups.
type InfluenceWeights struct {
	WShort  float64 `json:"w_short"`
	WAttack float64 `json:"w_attack"`
	WSafe   float64 `json:"w_safe"`
}

// NewInfluenceWeights validates and constructs influence weights. Each
// coefficient must be positive and no larger than 0.3.
func NewInfluenceWeights(wShort, wAttack, wSafe float64) (InfluenceWeights, error) {
	for name, v := range map[string]float64{"w_short": wShort, "w_attack": wAttack, "w_safe": wSafe} {
		if v <= 0 || v > 0.3 {
			return InfluenceWeights{}, newValidationError("weights", "%s must be in (0, 0.3]; got %.6f", name, v)
		}
	}
	return InfluenceWeights{WShort: wShort, WAttack: wAttack, WSafe: wSafe}, nil
}

// PlayerParams holds one player's smoothed rate parameters. Instances are
// immutable; adjustments go through MatchupParams.WithAdjustments.
type PlayerParams struct {
	PlayerID       string        `json:"player_id"`
	Name           string        `json:"name"`
	BaseServeWin   float64       `json:"base_srv_win"`
	BaseReceiveWin float64       `json:"base_rcv_win"`
	ServeMix       ServeMix      `json:"serve_mix"`
	RallyStyle     RallyStyleMix `json:"rally_style"`
	SampleMatches  int           `json:"sample_matches"`
}

// NewPlayerParams validates and constructs player parameters.
func NewPlayerParams(playerID, name string, baseServeWin, baseReceiveWin float64, serveMix ServeMix, rallyStyle RallyStyleMix, sampleMatches int) (PlayerParams, error) {
	if strings.TrimSpace(playerID) == "" {
		return PlayerParams{}, newValidationError("player_id", "must not be empty")
	}
	if strings.TrimSpace(name) == "" {
		return PlayerParams{}, newValidationError("name", "must not be empty")
	}
	if baseServeWin < 0.01 || baseServeWin > 0.99 {
		return PlayerParams{}, newValidationError("base_srv_win", "must be in [0.01, 0.99]; got %.6f", baseServeWin)
	}
	if baseReceiveWin < 0.01 || baseReceiveWin > 0.99 {
		return PlayerParams{}, newValidationError("base_rcv_win", "must be in [0.01, 0.99]; got %.6f", baseReceiveWin)
	}
	if sampleMatches < 0 {
		return PlayerParams{}, newValidationError("sample_matches", "must be >= 0; got %d", sampleMatches)
	}
	return PlayerParams{
		PlayerID:       playerID,
		Name:           name,
		BaseServeWin:   baseServeWin,
		BaseReceiveWin: baseReceiveWin,
		ServeMix:       serveMix,
		RallyStyle:     rallyStyle,
		SampleMatches:  sampleMatches,
	}, nil
}

// GameFormat holds the scoring constants of the matchup.
type GameFormat struct {
	Target int `json:"target"`
	Cap    int `json:"cap"`
	BestOf int `json:"best_of"`
}

// DefaultGameFormat is modern 21-point badminton scoring, best of three.
var DefaultGameFormat = GameFormat{Target: 21, Cap: 30, BestOf: 3}

// EffectiveProbabilities are the four style-adjusted rally win probabilities,
// each strictly inside (0,1).
type EffectiveProbabilities struct {
	PAServeWin   float64 `json:"pA_srv_win"`
	PAReceiveWin float64 `json:"pA_rcv_win"`
	PBServeWin   float64 `json:"pB_srv_win"`
	PBReceiveWin float64 `json:"pB_rcv_win"`
}

// MatchupParams pairs two players with shared influence weights and the game
// format. It is the single source of truth for template rendering: effective
// probabilities are always recomputed from the current field values, never
// cached.
type MatchupParams struct {
	PlayerA PlayerParams     `json:"player_a"`
	PlayerB PlayerParams     `json:"player_b"`
	Weights InfluenceWeights `json:"weights"`
	Format  GameFormat       `json:"format"`
}

// NewMatchupParams validates and constructs matchup parameters.
func NewMatchupParams(playerA, playerB PlayerParams, weights InfluenceWeights, format GameFormat) (MatchupParams, error) {
	if format.Target < 11 || format.Target > 30 {
		return MatchupParams{}, newValidationError("target", "must be in [11, 30]; got %d", format.Target)
	}
	if format.Cap < 21 || format.Cap > 50 {
		return MatchupParams{}, newValidationError("cap", "must be in [21, 50]; got %d", format.Cap)
	}
	if format.Cap < format.Target {
		return MatchupParams{}, newValidationError("cap", "must be >= target; got cap=%d target=%d", format.Cap, format.Target)
	}
	if format.BestOf < 1 || format.BestOf > 7 {
		return MatchupParams{}, newValidationError("best_of", "must be in [1, 7]; got %d", format.BestOf)
	}
	if format.BestOf%2 == 0 {
		return MatchupParams{}, newValidationError("best_of", "must be odd; got %d", format.BestOf)
	}
	return MatchupParams{PlayerA: playerA, PlayerB: playerB, Weights: weights, Format: format}, nil
}

// GamesToWin is the number of games required to take the match.
func (m MatchupParams) GamesToWin() int {
	return m.Format.BestOf/2 + 1
}

func (m MatchupParams) styleDelta() float64 {
	a, b := m.PlayerA, m.PlayerB
	return m.Weights.WShort*(a.ServeMix.Short-b.ServeMix.Short) +
		m.Weights.WAttack*(a.RallyStyle.Attack-b.RallyStyle.Attack) -
		m.Weights.WSafe*(b.RallyStyle.Safe-a.RallyStyle.Safe)
}

// EffectiveProbabilities derives the style-adjusted rally win probabilities.
// Player B's probabilities are the clamped complements of player A's.
func (m MatchupParams) EffectiveProbabilities() EffectiveProbabilities {
	delta := m.styleDelta()
	pAServe := ClampProbability(m.PlayerA.BaseServeWin + delta)
	pAReceive := ClampProbability(m.PlayerA.BaseReceiveWin + delta)
	return EffectiveProbabilities{
		PAServeWin:   pAServe,
		PAReceiveWin: pAReceive,
		PBServeWin:   ClampProbability(1.0 - pAReceive),
		PBReceiveWin: ClampProbability(1.0 - pAServe),
	}
}

// WithAdjustments returns a copy of the matchup where player A's serve mix
// short rate and rally attack rate have been shifted by the given deltas.
// Flick is re-derived as 1-short. The neutral:safe ratio is held fixed while
// both are rescaled so the style triple still sums to 1. This is the only
// mutation path; everything else is copy-on-write.
func (m MatchupParams) WithAdjustments(serveShortDelta, attackDelta float64) (MatchupParams, error) {
	a := m.PlayerA

	short := Clamp(a.ServeMix.Short+serveShortDelta, 0.01, 0.99)
	serveMix, err := NewServeMix(short, 1.0-short)
	if err != nil {
		return MatchupParams{}, err
	}

	attack := Clamp(a.RallyStyle.Attack+attackDelta, 0.01, 0.98)
	remainOld := math.Max(a.RallyStyle.Neutral+a.RallyStyle.Safe, 1e-6)
	neutral := (a.RallyStyle.Neutral / remainOld) * (1.0 - attack)
	safe := (a.RallyStyle.Safe / remainOld) * (1.0 - attack)
	rallyStyle, err := NewRallyStyleMix(attack, neutral, safe)
	if err != nil {
		return MatchupParams{}, err
	}

	adjusted := m
	adjusted.PlayerA.ServeMix = serveMix
	adjusted.PlayerA.RallyStyle = rallyStyle
	return adjusted, nil
}

// L1ChangeFrom sums the absolute differences across all five of player A's
// mix components relative to the baseline. The strategy search uses it to
// keep candidate perturbations realistic.
func (m MatchupParams) L1ChangeFrom(baseline MatchupParams) float64 {
	now, base := m.PlayerA, baseline.PlayerA
	return math.Abs(now.ServeMix.Short-base.ServeMix.Short) +
		math.Abs(now.ServeMix.Flick-base.ServeMix.Flick) +
		math.Abs(now.RallyStyle.Attack-base.RallyStyle.Attack) +
		math.Abs(now.RallyStyle.Neutral-base.RallyStyle.Neutral) +
		math.Abs(now.RallyStyle.Safe-base.RallyStyle.Safe)
}
