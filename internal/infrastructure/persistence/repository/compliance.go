package repository

import "github.com/pavelsemenov/choreboard/internal/application/port"

// Compile-time interface checks
var (
	_ port.ParticipantRepository = (*ParticipantRepository)(nil)
	_ port.TemplateRepository    = (*TemplateRepository)(nil)
	_ port.InstanceRepository    = (*InstanceRepository)(nil)
	_ port.ReportRepository      = (*ReportRepository)(nil)
	_ port.TallyRepository       = (*TallyRepository)(nil)
	_ port.ScoreRepository       = (*ScoreRepository)(nil)
	_ port.DisputeRepository     = (*DisputeRepository)(nil)
	_ port.CoefficientRepository = (*CoefficientRepository)(nil)
)
