package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"github.com/pavelsemenov/choreboard/internal/domain/workflow"
	"github.com/pavelsemenov/choreboard/internal/lifecycle"
	"github.com/pavelsemenov/choreboard/internal/reward"
	"github.com/pavelsemenov/choreboard/internal/scoring"
	"github.com/pavelsemenov/choreboard/internal/voting"
)

const dayFormat = "2006-01-02"

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps   Deps
	logger *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Deps, logger *zap.Logger) *Handlers {
	return &Handlers{deps: deps, logger: logger}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ParticipantRequest identifies the acting participant
type ParticipantRequest struct {
	ParticipantID int64 `json:"participant_id" binding:"required"`
}

// ReportRequest carries a completion report
type ReportRequest struct {
	ParticipantID int64  `json:"participant_id" binding:"required"`
	EvidenceRef   string `json:"evidence_ref"`
}

// VoteRequest carries one ballot
type VoteRequest struct {
	VoterID int64  `json:"voter_id" binding:"required"`
	Verdict string `json:"verdict" binding:"required"`
}

// ResolveDisputeRequest carries the admin's ruling on a dispute
type ResolveDisputeRequest struct {
	Verdict    string `json:"verdict" binding:"required"`
	Note       string `json:"note"`
	ResolvedBy string `json:"resolved_by" binding:"required"`
}

// RetireRequest carries the reason an instance is retired
type RetireRequest struct {
	Reason string `json:"reason"`
}

// GenerateRequest optionally pins generation to a specific day
type GenerateRequest struct {
	Day string `json:"day"`
}

// CreateParticipantRequest carries a new roster member
type CreateParticipantRequest struct {
	Handle string `json:"handle" binding:"required"`
	Name   string `json:"name" binding:"required"`
}

// RewardSettingsRequest carries a reward settings override
type RewardSettingsRequest struct {
	Min         float64 `json:"min" binding:"required"`
	Max         float64 `json:"max" binding:"required"`
	Default     float64 `json:"default" binding:"required"`
	BonusStep   float64 `json:"bonus_step"`
	PenaltyStep float64 `json:"penalty_step"`
}

// TemplateRequest carries template create/update fields
type TemplateRequest struct {
	Code                string `json:"code" binding:"required"`
	Title               string `json:"title" binding:"required"`
	BasePoints          int    `json:"base_points" binding:"required"`
	Frequency           string `json:"frequency" binding:"required"`
	MaxPerDay           int    `json:"max_per_day"`
	SLAMinutes          int    `json:"sla_minutes" binding:"required"`
	ClaimTimeoutMinutes int    `json:"claim_timeout_minutes" binding:"required"`
	Kind                string `json:"kind" binding:"required"`
	Penalty             int    `json:"penalty"`
}

// BalanceResponse reports one participant's season balance
type BalanceResponse struct {
	ParticipantID int64 `json:"participant_id"`
	Balance       int   `json:"balance"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// ListTasks handles GET /api/tasks?day=YYYY-MM-DD or ?status=OPEN
func (h *Handlers) ListTasks(c *gin.Context) {
	ctx := c.Request.Context()

	if dayStr := c.Query("day"); dayStr != "" {
		day, err := time.Parse(dayFormat, dayStr)
		if err != nil {
			h.badRequest(c, "day must be formatted as "+dayFormat)
			return
		}
		instances, err := h.deps.Instances.ListByDay(ctx, day)
		if err != nil {
			h.fail(c, "Failed to list tasks by day", err)
			return
		}
		h.ok(c, instances)
		return
	}

	status := c.Query("status")
	if status == "" {
		status = string(workflow.StateOpen)
	}
	instances, err := h.deps.Instances.ListByStatus(ctx, status)
	if err != nil {
		h.fail(c, "Failed to list tasks by status", err)
		return
	}
	h.ok(c, instances)
}

// GetTask handles GET /api/tasks/:id
func (h *Handlers) GetTask(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	inst, err := h.deps.Instances.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get task", err)
		return
	}
	if inst == nil {
		h.notFound(c, "task not found")
		return
	}
	h.ok(c, inst)
}

// ClaimTask handles POST /api/tasks/:id/claim
func (h *Handlers) ClaimTask(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req ParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "participant_id is required")
		return
	}

	inst, err := h.deps.Lifecycle.Claim(c.Request.Context(), id, req.ParticipantID)
	if err != nil {
		h.fail(c, "Claim failed", err)
		return
	}
	h.ok(c, inst)
}

// DeferTask handles POST /api/tasks/:id/defer
func (h *Handlers) DeferTask(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req ParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "participant_id is required")
		return
	}

	inst, err := h.deps.Lifecycle.Defer(c.Request.Context(), id, req.ParticipantID)
	if err != nil {
		h.fail(c, "Defer failed", err)
		return
	}
	h.ok(c, inst)
}

// SubmitReport handles POST /api/tasks/:id/report
func (h *Handlers) SubmitReport(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "participant_id is required")
		return
	}

	inst, err := h.deps.Lifecycle.SubmitReport(c.Request.Context(), id, req.ParticipantID, req.EvidenceRef)
	if err != nil {
		h.fail(c, "Report submission failed", err)
		return
	}
	h.ok(c, inst)
}

// CancelClaim handles POST /api/tasks/:id/cancel
func (h *Handlers) CancelClaim(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req ParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "participant_id is required")
		return
	}

	inst, err := h.deps.Lifecycle.CancelClaim(c.Request.Context(), id, req.ParticipantID)
	if err != nil {
		h.fail(c, "Cancel failed", err)
		return
	}
	h.ok(c, inst)
}

// CastVote handles POST /api/reports/:id/vote
func (h *Handlers) CastVote(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "voter_id and verdict are required")
		return
	}

	tally, err := h.deps.Voting.Cast(c.Request.Context(), id, req.VoterID, entity.Verdict(req.Verdict))
	if err != nil {
		h.fail(c, "Vote failed", err)
		return
	}
	h.ok(c, tally)
}

// ListOpenDisputes handles GET /api/disputes
func (h *Handlers) ListOpenDisputes(c *gin.Context) {
	disputes, err := h.deps.Disputes.ListOpen(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list disputes", err)
		return
	}
	h.ok(c, disputes)
}

// ResolveDispute handles POST /api/disputes/:id/resolve
func (h *Handlers) ResolveDispute(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "verdict and resolved_by are required")
		return
	}

	err := h.deps.Lifecycle.ResolveDispute(c.Request.Context(), id, entity.Verdict(req.Verdict), req.Note, req.ResolvedBy)
	if err != nil {
		h.fail(c, "Dispute resolution failed", err)
		return
	}
	h.ok(c, gin.H{"dispute_id": id, "resolved": true})
}

// Scoreboard handles GET /api/scoreboard
func (h *Handlers) Scoreboard(c *gin.Context) {
	standings, err := h.deps.Ledger.Scoreboard(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to build scoreboard", err)
		return
	}
	h.ok(c, standings)
}

// ListParticipants handles GET /api/participants
func (h *Handlers) ListParticipants(c *gin.Context) {
	participants, err := h.deps.Participants.ListActive(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list participants", err)
		return
	}
	h.ok(c, participants)
}

// CreateParticipant handles POST /api/participants
func (h *Handlers) CreateParticipant(c *gin.Context) {
	var req CreateParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "handle and name are required")
		return
	}

	p := &entity.Participant{
		Handle:   req.Handle,
		Name:     req.Name,
		Active:   true,
		JoinedAt: time.Now().UTC(),
	}
	if err := h.deps.Participants.Create(c.Request.Context(), p); err != nil {
		h.fail(c, "Participant creation failed", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: p})
}

// ParticipantBalance handles GET /api/participants/:id/balance
func (h *Handlers) ParticipantBalance(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	balance, err := h.deps.Ledger.BalanceOf(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to compute balance", err)
		return
	}
	h.ok(c, BalanceResponse{ParticipantID: id, Balance: balance})
}

// ListCoefficients handles GET /api/reward/coefficients
func (h *Handlers) ListCoefficients(c *gin.Context) {
	coeffs, err := h.deps.Reward.Coefficients(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list coefficients", err)
		return
	}
	h.ok(c, coeffs)
}

// GetRewardSettings handles GET /api/reward/settings
func (h *Handlers) GetRewardSettings(c *gin.Context) {
	settings, err := h.deps.Reward.Settings(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to get reward settings", err)
		return
	}
	h.ok(c, settings)
}

// UpdateRewardSettings handles PUT /api/reward/settings
func (h *Handlers) UpdateRewardSettings(c *gin.Context) {
	var req RewardSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "min, max and default are required")
		return
	}

	settings := entity.RewardSettings{
		Min:         req.Min,
		Max:         req.Max,
		Default:     req.Default,
		BonusStep:   req.BonusStep,
		PenaltyStep: req.PenaltyStep,
	}
	if err := h.deps.Reward.UpdateSettings(c.Request.Context(), settings); err != nil {
		h.fail(c, "Settings update failed", err)
		return
	}
	h.ok(c, settings)
}

// ListTemplates handles GET /api/templates
func (h *Handlers) ListTemplates(c *gin.Context) {
	templates, err := h.deps.Templates.List(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list templates", err)
		return
	}
	h.ok(c, templates)
}

// CreateTemplate handles POST /api/templates
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "code, title, base_points, frequency, sla_minutes, claim_timeout_minutes and kind are required")
		return
	}

	tmpl, err := req.toTemplate()
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	if err := h.deps.Templates.Create(c.Request.Context(), tmpl); err != nil {
		h.fail(c, "Template creation failed", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: tmpl})
}

// UpdateTemplate handles PUT /api/templates/:id. Edits take effect on the
// next generation run; already generated instances keep their points.
func (h *Handlers) UpdateTemplate(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "code, title, base_points, frequency, sla_minutes, claim_timeout_minutes and kind are required")
		return
	}

	existing, err := h.deps.Templates.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get template", err)
		return
	}
	if existing == nil {
		h.notFound(c, "template not found")
		return
	}

	tmpl, err := req.toTemplate()
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	tmpl.ID = id
	tmpl.CreatedAt = existing.CreatedAt
	if err := h.deps.Templates.Update(c.Request.Context(), tmpl); err != nil {
		h.fail(c, "Template update failed", err)
		return
	}
	h.ok(c, tmpl)
}

// ForceAnnounce handles POST /api/admin/tasks/:id/announce
func (h *Handlers) ForceAnnounce(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	if err := h.deps.Lifecycle.ForceAnnounce(c.Request.Context(), id); err != nil {
		h.fail(c, "Force announce failed", err)
		return
	}
	h.ok(c, gin.H{"task_id": id, "announced": true})
}

// RetireTask handles POST /api/admin/tasks/:id/retire
func (h *Handlers) RetireTask(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req RetireRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Reason == "" {
		req.Reason = "admin_retired"
	}

	if err := h.deps.Lifecycle.Retire(c.Request.Context(), id, req.Reason); err != nil {
		h.fail(c, "Retire failed", err)
		return
	}
	h.ok(c, gin.H{"task_id": id, "retired": true})
}

// GenerateNow handles POST /api/admin/generate
func (h *Handlers) GenerateNow(c *gin.Context) {
	at := time.Now()
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.Day != "" {
		day, err := time.Parse(dayFormat, req.Day)
		if err != nil {
			h.badRequest(c, "day must be formatted as "+dayFormat)
			return
		}
		at = day
	}

	created, err := h.deps.Generator.GenerateForDay(c.Request.Context(), at)
	if err != nil {
		h.fail(c, "Generation failed", err)
		return
	}
	h.ok(c, gin.H{"created": created})
}

// EndSeason handles POST /api/admin/season/end
func (h *Handlers) EndSeason(c *gin.Context) {
	summary, err := h.deps.Lifecycle.EndMonth(c.Request.Context())
	if err != nil {
		h.fail(c, "Season end failed", err)
		return
	}
	h.ok(c, summary)
}

func (req *TemplateRequest) toTemplate() (*entity.TaskTemplate, error) {
	frequency := entity.Frequency(req.Frequency)
	if !frequency.IsValid() {
		return nil, errors.New("frequency must be daily or weekly")
	}
	kind := entity.TaskKind(req.Kind)
	if !kind.IsValid() {
		return nil, errors.New("kind must be photo_report or quick")
	}
	if req.BasePoints <= 0 {
		return nil, errors.New("base_points must be positive")
	}
	if req.SLAMinutes <= 0 || req.ClaimTimeoutMinutes <= 0 {
		return nil, errors.New("sla_minutes and claim_timeout_minutes must be positive")
	}
	if req.Penalty < 0 {
		return nil, errors.New("penalty must not be negative")
	}
	maxPerDay := req.MaxPerDay
	if maxPerDay <= 0 {
		maxPerDay = 1
	}

	return &entity.TaskTemplate{
		Code:         req.Code,
		Title:        req.Title,
		BasePoints:   req.BasePoints,
		Frequency:    frequency,
		MaxPerDay:    maxPerDay,
		SLA:          time.Duration(req.SLAMinutes) * time.Minute,
		ClaimTimeout: time.Duration(req.ClaimTimeoutMinutes) * time.Minute,
		Kind:         kind,
		Penalty:      req.Penalty,
	}, nil
}

func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handlers) ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

func (h *Handlers) notFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Response{Success: false, Error: msg})
}

// fail maps domain errors to HTTP status codes
func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrUnknownEntity),
		errors.Is(err, voting.ErrTallyNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrNotClaimant),
		errors.Is(err, voting.ErrSelfVote):
		return http.StatusForbidden
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrDisputeResolved),
		errors.Is(err, voting.ErrTallyFinalized),
		errors.Is(err, voting.ErrDuplicateVoter):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrInvalidVerdict),
		errors.Is(err, voting.ErrInvalidBallot),
		errors.Is(err, reward.ErrCoefficientRange),
		errors.Is(err, scoring.ErrInvalidEvent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
