package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pavelsemenov/choreboard/internal/application/dispatcher"
	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"github.com/pavelsemenov/choreboard/internal/domain/workflow"
	"github.com/pavelsemenov/choreboard/internal/scheduler"
	"github.com/pavelsemenov/choreboard/internal/scoring"
	"github.com/pavelsemenov/choreboard/internal/voting"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memTemplateRepo struct {
	mu        sync.Mutex
	nextID    int64
	templates map[int64]*entity.TaskTemplate
}

func newMemTemplateRepo() *memTemplateRepo {
	return &memTemplateRepo{templates: make(map[int64]*entity.TaskTemplate)}
}

func (m *memTemplateRepo) Create(_ context.Context, t *entity.TaskTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

func (m *memTemplateRepo) Update(_ context.Context, t *entity.TaskTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

func (m *memTemplateRepo) GetByID(_ context.Context, id int64) (*entity.TaskTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memTemplateRepo) GetByCode(_ context.Context, code string) (*entity.TaskTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.templates {
		if t.Code == code {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memTemplateRepo) List(_ context.Context) ([]*entity.TaskTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.TaskTemplate, 0, len(m.templates))
	for _, t := range m.templates {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

type memInstanceRepo struct {
	mu        sync.Mutex
	nextID    int64
	instances map[int64]*entity.TaskInstance
}

func newMemInstanceRepo() *memInstanceRepo {
	return &memInstanceRepo{instances: make(map[int64]*entity.TaskInstance)}
}

func (m *memInstanceRepo) Create(_ context.Context, i *entity.TaskInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	i.ID = m.nextID
	cp := *i
	m.instances[i.ID] = &cp
	return nil
}

func (m *memInstanceRepo) GetByID(_ context.Context, id int64) (*entity.TaskInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.instances[id]
	if !ok {
		return nil, nil
	}
	cp := *i
	return &cp, nil
}

func (m *memInstanceRepo) Update(_ context.Context, i *entity.TaskInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *i
	m.instances[i.ID] = &cp
	return nil
}

func (m *memInstanceRepo) ListByDay(_ context.Context, day time.Time) ([]*entity.TaskInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.TaskInstance
	for _, i := range m.instances {
		if i.Day.Equal(day) {
			cp := *i
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memInstanceRepo) ListByStatus(_ context.Context, status string) ([]*entity.TaskInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.TaskInstance
	for _, i := range m.instances {
		if i.Status == status {
			cp := *i
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memInstanceRepo) ListOpenBefore(_ context.Context, day time.Time) ([]*entity.TaskInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.TaskInstance
	for _, i := range m.instances {
		if i.Status == string(workflow.StateOpen) && i.Day.Before(day) {
			cp := *i
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memInstanceRepo) CountForTemplateOnDay(_ context.Context, templateID int64, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, i := range m.instances {
		if i.TemplateID == templateID && i.Day.Equal(day) {
			n++
		}
	}
	return n, nil
}

type memReportRepo struct {
	mu      sync.Mutex
	nextID  int64
	reports map[int64]*entity.Report
}

func newMemReportRepo() *memReportRepo {
	return &memReportRepo{reports: make(map[int64]*entity.Report)}
}

func (m *memReportRepo) Create(_ context.Context, r *entity.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *memReportRepo) GetByID(_ context.Context, id int64) (*entity.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memReportRepo) GetActiveByInstance(_ context.Context, instanceID int64) (*entity.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.TaskInstanceID == instanceID && !r.Superseded {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memReportRepo) Supersede(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reports[id]; ok {
		r.Superseded = true
	}
	return nil
}

type memParticipantRepo struct {
	mu           sync.Mutex
	nextID       int64
	participants map[int64]*entity.Participant
}

func newMemParticipantRepo() *memParticipantRepo {
	return &memParticipantRepo{participants: make(map[int64]*entity.Participant)}
}

func (m *memParticipantRepo) Create(_ context.Context, p *entity.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	cp := *p
	m.participants[p.ID] = &cp
	return nil
}

func (m *memParticipantRepo) GetByID(_ context.Context, id int64) (*entity.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memParticipantRepo) ListActive(_ context.Context) ([]*entity.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.Participant, 0, len(m.participants))
	for id := int64(1); id <= m.nextID; id++ {
		if p, ok := m.participants[id]; ok && p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memDisputeRepo struct {
	mu       sync.Mutex
	nextID   int64
	disputes map[int64]*entity.Dispute
}

func newMemDisputeRepo() *memDisputeRepo {
	return &memDisputeRepo{disputes: make(map[int64]*entity.Dispute)}
}

func (m *memDisputeRepo) Create(_ context.Context, d *entity.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	d.ID = m.nextID
	cp := *d
	m.disputes[d.ID] = &cp
	return nil
}

func (m *memDisputeRepo) GetByID(_ context.Context, id int64) (*entity.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *memDisputeRepo) GetOpenByInstance(_ context.Context, instanceID int64) (*entity.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.disputes {
		if d.TaskInstanceID == instanceID && d.Status == entity.DisputeOpen {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memDisputeRepo) ListOpen(_ context.Context) ([]*entity.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Dispute
	for _, d := range m.disputes {
		if d.Status == entity.DisputeOpen {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memDisputeRepo) Resolve(_ context.Context, id int64, note, resolvedBy string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.disputes[id]; ok {
		d.Status = entity.DisputeResolved
		d.Note = note
		d.ResolvedBy = resolvedBy
		d.ResolvedAt = &at
	}
	return nil
}

type memTallyRepo struct {
	mu      sync.Mutex
	nextID  int64
	tallies map[int64]*entity.VoteTally
}

func newMemTallyRepo() *memTallyRepo {
	return &memTallyRepo{tallies: make(map[int64]*entity.VoteTally)}
}

func (m *memTallyRepo) Create(_ context.Context, t *entity.VoteTally) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.tallies[t.ID] = &cp
	return nil
}

func (m *memTallyRepo) GetByID(_ context.Context, id int64) (*entity.VoteTally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tallies[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	cp.Votes = append([]entity.Vote(nil), t.Votes...)
	return &cp, nil
}

func (m *memTallyRepo) GetByReportID(_ context.Context, reportID int64) (*entity.VoteTally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tallies {
		if t.ReportID == reportID {
			cp := *t
			cp.Votes = append([]entity.Vote(nil), t.Votes...)
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memTallyRepo) AddVote(_ context.Context, tallyID int64, v entity.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tallies[tallyID].Votes = append(m.tallies[tallyID].Votes, v)
	return nil
}

func (m *memTallyRepo) MarkFinalized(_ context.Context, tallyID int64, result entity.Verdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tallies[tallyID].Finalized = true
	m.tallies[tallyID].Result = result
	return nil
}

type memScoreRepo struct {
	mu     sync.Mutex
	nextID int64
	events []*entity.ScoreEvent
}

func (m *memScoreRepo) Append(_ context.Context, e *entity.ScoreEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	cp := *e
	m.events = append(m.events, &cp)
	return nil
}

func (m *memScoreRepo) SumSince(_ context.Context, participantID int64, since *time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, e := range m.events {
		if e.ParticipantID != participantID {
			continue
		}
		if since != nil && e.CreatedAt.Before(*since) {
			continue
		}
		sum += e.Delta
	}
	return sum, nil
}

func (m *memScoreRepo) ListSince(_ context.Context, since *time.Time) ([]*entity.ScoreEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ScoreEvent
	for _, e := range m.events {
		if since != nil && e.CreatedAt.Before(*since) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memScoreRepo) LatestMarkerAt(_ context.Context) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *time.Time
	for _, e := range m.events {
		if !e.Reason.IsMarker() {
			continue
		}
		if latest == nil || e.CreatedAt.After(*latest) {
			at := e.CreatedAt
			latest = &at
		}
	}
	return latest, nil
}

// byReason sums ledger deltas for one participant and reason
func (m *memScoreRepo) byReason(participantID int64, reason entity.ScoreReason) (count, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ParticipantID == participantID && e.Reason == reason {
			count++
			total += e.Delta
		}
	}
	return count, total
}

type fakeJob struct {
	owner string
	at    time.Time
	fn    func(ctx context.Context)
}

type fakeScheduler struct {
	mu   sync.Mutex
	jobs map[string]fakeJob
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[string]fakeJob)}
}

func (s *fakeScheduler) ScheduleAt(id, owner string, at time.Time, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = fakeJob{owner: owner, at: at, fn: fn}
}

func (s *fakeScheduler) ScheduleAfter(id, owner string, delay time.Duration, fn func(ctx context.Context)) {
	s.ScheduleAt(id, owner, time.Now().Add(delay), fn)
}

func (s *fakeScheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	return ok
}

func (s *fakeScheduler) CancelByOwner(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if j.owner == owner {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

func (s *fakeScheduler) fire(t *testing.T, id string) {
	t.Helper()
	s.mu.Lock()
	job, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()
	require.True(t, ok, "job %s not scheduled", id)
	job.fn(context.Background())
}

// fireStale runs a job callback without removing it, emulating a timer
// goroutine racing an action that already invalidated it
func (s *fakeScheduler) snapshot(id string) (fakeJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *fakeScheduler) has(id string) bool {
	_, ok := s.snapshot(id)
	return ok
}

func (s *fakeScheduler) at(t *testing.T, id string) time.Time {
	t.Helper()
	j, ok := s.snapshot(id)
	require.True(t, ok, "job %s not scheduled", id)
	return j.at
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine       *Engine
	voting       *voting.Engine
	ledger       *scoring.Ledger
	templates    *memTemplateRepo
	instances    *memInstanceRepo
	reports      *memReportRepo
	participants *memParticipantRepo
	disputes     *memDisputeRepo
	tallies      *memTallyRepo
	scores       *memScoreRepo
	sched        *fakeScheduler
	clock        *fakeClock
	dispatcher   dispatcher.Dispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		templates:    newMemTemplateRepo(),
		instances:    newMemInstanceRepo(),
		reports:      newMemReportRepo(),
		participants: newMemParticipantRepo(),
		disputes:     newMemDisputeRepo(),
		tallies:      newMemTallyRepo(),
		scores:       &memScoreRepo{},
		sched:        newFakeScheduler(),
		clock:        &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
	}
	env.dispatcher = dispatcher.New(zap.NewNop())
	env.ledger = scoring.NewLedger(env.scores, env.dispatcher, env.clock, zap.NewNop())
	env.voting = voting.NewEngine(env.tallies, env.reports, env.sched, env.clock, zap.NewNop())

	cfg := Config{
		ReannounceDelay:   2 * time.Hour,
		ReannounceCap:     0,
		ResubmitSLAFactor: 0.5,
		QuietWindow:       scheduler.QuietWindow{Start: 23 * 60, End: 8 * 60},
		Location:          time.UTC,
	}
	env.engine = NewEngine(cfg,
		env.templates, env.instances, env.reports, env.participants, env.disputes,
		env.voting, env.ledger, env.sched, env.dispatcher, env.clock, nil, zap.NewNop())

	ctx := context.Background()
	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, env.participants.Create(ctx, &entity.Participant{
			Handle: "@" + name,
			Name:   name,
			Active: true,
		}))
	}

	return env
}

// seedTemplate stores a template and returns it
func (e *testEnv) seedTemplate(t *testing.T, kind entity.TaskKind) *entity.TaskTemplate {
	t.Helper()
	tmpl := &entity.TaskTemplate{
		Code:         "dishes",
		Title:        "Wash the dishes",
		BasePoints:   10,
		Frequency:    entity.FrequencyDaily,
		MaxPerDay:    1,
		SLA:          60 * time.Minute,
		ClaimTimeout: 30 * time.Minute,
		Kind:         kind,
		Penalty:      3,
	}
	require.NoError(t, e.templates.Create(context.Background(), tmpl))
	return tmpl
}

// seedOpenInstance creates an announced open instance with a pending
// claim-timeout timer
func (e *testEnv) seedOpenInstance(t *testing.T, tmpl *entity.TaskTemplate) *entity.TaskInstance {
	t.Helper()
	ctx := context.Background()

	inst := &entity.TaskInstance{
		TemplateID:      tmpl.ID,
		Day:             e.clock.Now().Truncate(24 * time.Hour),
		Slot:            1,
		Status:          string(workflow.StateOpen),
		EffectivePoints: tmpl.BasePoints,
		CreatedAt:       e.clock.Now(),
	}
	require.NoError(t, e.instances.Create(ctx, inst))

	e.engine.ScheduleAnnouncement(ctx, inst, e.clock.Now())
	e.sched.fire(t, announceJobID(inst.ID))

	stored, err := e.instances.GetByID(ctx, inst.ID)
	require.NoError(t, err)
	return stored
}
