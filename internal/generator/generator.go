package generator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pavelsemenov/choreboard/internal/application/port"
	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"github.com/pavelsemenov/choreboard/internal/domain/workflow"
	"go.uber.org/zap"
)

// Announcer is the slice of the lifecycle engine the generator drives
type Announcer interface {
	ScheduleAnnouncement(ctx context.Context, inst *entity.TaskInstance, candidate time.Time)
	Retire(ctx context.Context, instanceID int64, reason string) error
}

// CoefficientSource provides the household average reward coefficient
type CoefficientSource interface {
	Average(ctx context.Context, participantIDs []int64) (float64, error)
}

// Config carries the generation schedule
type Config struct {
	// Hour is the local hour of day at which generation runs
	Hour int

	// WeeklyDay is the weekday on which weekly templates produce instances
	WeeklyDay time.Weekday

	// Location is the household timezone
	Location *time.Location
}

// Generator instantiates task templates once a day: stale open instances
// from previous days are retired first, then each template gets its
// max-per-day slots with effective points fixed from the current average
// coefficient snapshot.
type Generator struct {
	cfg          Config
	templates    port.TemplateRepository
	instances    port.InstanceRepository
	participants port.ParticipantRepository
	coefficients CoefficientSource
	announcer    Announcer
	clock        port.Clock
	logger       *zap.Logger

	mu        sync.Mutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a generator worker
func New(
	cfg Config,
	templates port.TemplateRepository,
	instances port.InstanceRepository,
	participants port.ParticipantRepository,
	coefficients CoefficientSource,
	announcer Announcer,
	clock port.Clock,
	logger *zap.Logger,
) *Generator {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Generator{
		cfg:          cfg,
		templates:    templates,
		instances:    instances,
		participants: participants,
		coefficients: coefficients,
		announcer:    announcer,
		clock:        clock,
		logger:       logger,
	}
}

// Name identifies the worker
func (g *Generator) Name() string {
	return "task-generator"
}

// Start launches the daily generation loop
func (g *Generator) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.isRunning {
		return fmt.Errorf("generator is already running")
	}

	g.ctx, g.cancel = context.WithCancel(ctx)
	g.isRunning = true

	g.logger.Info("Generator started",
		zap.Int("hour", g.cfg.Hour),
		zap.String("weekly_day", g.cfg.WeeklyDay.String()))

	go g.runLoop()

	return nil
}

// Stop stops the generation loop
func (g *Generator) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.isRunning {
		return nil
	}

	g.isRunning = false
	if g.cancel != nil {
		g.cancel()
	}

	g.logger.Info("Generator stopped")
	return nil
}

func (g *Generator) runLoop() {
	for {
		next := g.nextRunAfter(g.clock.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-g.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := g.GenerateForDay(g.ctx, g.clock.Now()); err != nil {
				g.logger.Error("Generation run failed", zap.Error(err))
			}
		}
	}
}

// nextRunAfter returns the next generation instant strictly after now
func (g *Generator) nextRunAfter(now time.Time) time.Time {
	local := now.In(g.cfg.Location)
	run := time.Date(local.Year(), local.Month(), local.Day(), g.cfg.Hour, 0, 0, 0, g.cfg.Location)
	if !run.After(now) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}

// GenerateForDay runs one generation pass for the day containing at.
// Returns how many instances were created.
func (g *Generator) GenerateForDay(ctx context.Context, at time.Time) (int, error) {
	local := at.In(g.cfg.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.cfg.Location)

	g.retireStale(ctx, day)

	avg, err := g.averageCoefficient(ctx)
	if err != nil {
		return 0, err
	}

	templates, err := g.templates.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list templates: %w", err)
	}

	created := 0
	for _, tmpl := range templates {
		if tmpl.Frequency == entity.FrequencyWeekly && local.Weekday() != g.cfg.WeeklyDay {
			continue
		}

		existing, err := g.instances.CountForTemplateOnDay(ctx, tmpl.ID, day)
		if err != nil {
			return created, fmt.Errorf("failed to count instances for template %s: %w", tmpl.Code, err)
		}

		points := effectivePoints(tmpl.BasePoints, avg)
		for slot := existing + 1; slot <= tmpl.MaxPerDay; slot++ {
			inst := &entity.TaskInstance{
				TemplateID:      tmpl.ID,
				Day:             day,
				Slot:            slot,
				Status:          string(workflow.StateOpen),
				EffectivePoints: points,
				CreatedAt:       g.clock.Now(),
			}
			if err := g.instances.Create(ctx, inst); err != nil {
				return created, fmt.Errorf("failed to create instance for template %s: %w", tmpl.Code, err)
			}
			g.announcer.ScheduleAnnouncement(ctx, inst, g.clock.Now())
			created++
		}
	}

	g.logger.Info("Generation pass complete",
		zap.Time("day", day),
		zap.Float64("avg_coefficient", avg),
		zap.Int("created", created))

	return created, nil
}

// retireStale closes open instances left over from previous days
func (g *Generator) retireStale(ctx context.Context, day time.Time) {
	stale, err := g.instances.ListOpenBefore(ctx, day)
	if err != nil {
		g.logger.Error("Failed to list stale instances", zap.Error(err))
		return
	}
	for _, inst := range stale {
		if err := g.announcer.Retire(ctx, inst.ID, "day_rollover"); err != nil {
			g.logger.Error("Failed to retire stale instance",
				zap.Int64("instance_id", inst.ID), zap.Error(err))
		}
	}
	if len(stale) > 0 {
		g.logger.Info("Stale instances retired", zap.Int("count", len(stale)))
	}
}

// averageCoefficient snapshots the household average for this pass
func (g *Generator) averageCoefficient(ctx context.Context) (float64, error) {
	roster, err := g.participants.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list participants: %w", err)
	}
	ids := make([]int64, 0, len(roster))
	for _, p := range roster {
		ids = append(ids, p.ID)
	}
	avg, err := g.coefficients.Average(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to compute average coefficient: %w", err)
	}
	return avg, nil
}

// effectivePoints fixes the instance award base: base points scaled by the
// average coefficient, rounded, never below 1
func effectivePoints(base int, avg float64) int {
	points := int(math.Round(float64(base) * avg))
	if points < 1 {
		points = 1
	}
	return points
}
