package entity

import "time"

// RewardCoefficient is the adaptive per-participant scalar applied (as a
// household average) to base points at generation time
type RewardCoefficient struct {
	ParticipantID int64     `json:"participant_id"`
	Value         float64   `json:"value"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RewardSettings bounds and steers coefficient adjustments. Admin overrides
// replace fields at runtime and apply prospectively only.
type RewardSettings struct {
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Default     float64 `json:"default"`
	BonusStep   float64 `json:"bonus_step"`
	PenaltyStep float64 `json:"penalty_step"`
}

// Clamp bounds a coefficient value to the configured range
func (s RewardSettings) Clamp(v float64) float64 {
	if v < s.Min {
		return s.Min
	}
	if v > s.Max {
		return s.Max
	}
	return v
}
