package pcsp

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/yourusername/rally-coach/internal/models"
)

// WeightScale is the fixed denominator for the integer-weighted pcase choice
// operators. For every probability p the emitted pair satisfies
// win + lose == WeightScale exactly.
const WeightScale = 10000

// weightPair converts a probability into an exact integer weight pair at
// WeightScale. The rounding goes through decimal arithmetic so the generated
// model never carries floating-point drift.
func weightPair(p float64) (win, lose int64) {
	win = decimal.NewFromFloat(p).
		Mul(decimal.NewFromInt(WeightScale)).
		Round(0).
		IntPart()
	if win < 0 {
		win = 0
	}
	if win > WeightScale {
		win = WeightScale
	}
	return win, WeightScale - win
}

func prob(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// TemplateContext builds the placeholder map for the model template from the
// matchup's current field values. Effective probabilities are recomputed on
// every call; nothing is cached.
func TemplateContext(params models.MatchupParams) map[string]string {
	eff := params.EffectiveProbabilities()
	srvWin, srvLose := weightPair(eff.PAServeWin)
	rcvWin, rcvLose := weightPair(eff.PAReceiveWin)

	a, b := params.PlayerA, params.PlayerB
	return map[string]string{
		"target":       strconv.Itoa(params.Format.Target),
		"cap":          strconv.Itoa(params.Format.Cap),
		"best_of":      strconv.Itoa(params.Format.BestOf),
		"games_to_win": strconv.Itoa(params.GamesToWin()),

		"pA_srv_win": prob(eff.PAServeWin),
		"pA_rcv_win": prob(eff.PAReceiveWin),

		"pA_srv_win_w":  strconv.FormatInt(srvWin, 10),
		"pA_srv_lose_w": strconv.FormatInt(srvLose, 10),
		"pA_rcv_win_w":  strconv.FormatInt(rcvWin, 10),
		"pA_rcv_lose_w": strconv.FormatInt(rcvLose, 10),

		"baseA_srv_win": prob(a.BaseServeWin),
		"baseA_rcv_win": prob(a.BaseReceiveWin),
		"baseB_srv_win": prob(b.BaseServeWin),
		"baseB_rcv_win": prob(b.BaseReceiveWin),

		"serve_mix_A_short": prob(a.ServeMix.Short),
		"serve_mix_A_flick": prob(a.ServeMix.Flick),
		"serve_mix_B_short": prob(b.ServeMix.Short),
		"serve_mix_B_flick": prob(b.ServeMix.Flick),

		"rally_style_A_attack":  prob(a.RallyStyle.Attack),
		"rally_style_A_neutral": prob(a.RallyStyle.Neutral),
		"rally_style_A_safe":    prob(a.RallyStyle.Safe),
		"rally_style_B_attack":  prob(b.RallyStyle.Attack),
		"rally_style_B_neutral": prob(b.RallyStyle.Neutral),
		"rally_style_B_safe":    prob(b.RallyStyle.Safe),

		"w_short":  prob(params.Weights.WShort),
		"w_attack": prob(params.Weights.WAttack),
		"w_safe":   prob(params.Weights.WSafe),

		"playerA_name": a.Name,
		"playerB_name": b.Name,
	}
}
