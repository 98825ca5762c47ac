package models

// StrategyCandidate is one evaluated perturbation of the controllable
// player's parameters. Rank is 1-based and assigned after the final sort by
// resulting probability.
type StrategyCandidate struct {
	Rank            int     `json:"rank"`
	ServeShortDelta float64 `json:"serve_short_delta"`
	AttackDelta     float64 `json:"attack_delta"`
	L1Change        float64 `json:"l1_change"`
	Probability     float64 `json:"probability"`
}
