package entity

import "time"

// Frequency defines how often a template produces instances
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// IsValid checks the frequency value
func (f Frequency) IsValid() bool {
	return f == FrequencyDaily || f == FrequencyWeekly
}

// TaskKind distinguishes templates that require photo evidence for peer
// review from quick tasks that close on submission
type TaskKind string

const (
	KindPhotoReport TaskKind = "photo_report"
	KindQuick       TaskKind = "quick"
)

// IsValid checks the kind value
func (k TaskKind) IsValid() bool {
	return k == KindPhotoReport || k == KindQuick
}

// TaskTemplate is a reusable chore definition. Templates are read-only to
// the lifecycle core; admin edits take effect on the next generation run.
type TaskTemplate struct {
	ID                  int64         `json:"id"`
	Code                string        `json:"code"`
	Title               string        `json:"title"`
	BasePoints          int           `json:"base_points"`
	Frequency           Frequency     `json:"frequency"`
	MaxPerDay           int           `json:"max_per_day"`
	SLA                 time.Duration `json:"sla"`
	ClaimTimeout        time.Duration `json:"claim_timeout"`
	Kind                TaskKind      `json:"kind"`
	Penalty             int           `json:"penalty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// RequiresPhotoReport reports whether completion must pass peer voting
func (t *TaskTemplate) RequiresPhotoReport() bool {
	return t.Kind == KindPhotoReport
}
