package orchestrator

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgefleet/fleetops/internal/analysis"
	"github.com/forgefleet/fleetops/internal/domain/healthrun"
	"github.com/forgefleet/fleetops/internal/domain/paging"
	"github.com/forgefleet/fleetops/internal/domain/workerresult"
	"github.com/forgefleet/fleetops/internal/repository/postgres"
)

type memRuns struct {
	mu   sync.Mutex
	byID map[string]*healthrun.Run
}

func newMemRuns() *memRuns { return &memRuns{byID: map[string]*healthrun.Run{}} }

func (m *memRuns) Create(_ context.Context, r *healthrun.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.byID[r.RunID] = &cp
	return nil
}

func (m *memRuns) GetByRunID(_ context.Context, runID string) (*healthrun.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[runID]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRuns) List(_ context.Context, f healthrun.Filter, p paging.Page) ([]*healthrun.Run, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*healthrun.Run
	for _, r := range m.byID {
		if f.TriggerKind != nil && r.TriggerKind != *f.TriggerKind {
			continue
		}
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		cp := *r
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt > all[j].StartedAt })
	total := len(all)
	lo := p.Offset
	if lo > total {
		lo = total
	}
	hi := lo + p.Limit
	if hi > total {
		hi = total
	}
	return all[lo:hi], total, nil
}

func (m *memRuns) Update(_ context.Context, runID string, u healthrun.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[runID]
	if !ok {
		return postgres.ErrNotFound
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.CompletedWorkers != nil {
		r.CompletedWorkers = *u.CompletedWorkers
	}
	if u.PassedWorkers != nil {
		r.PassedWorkers = *u.PassedWorkers
	}
	if u.FailedWorkers != nil {
		r.FailedWorkers = *u.FailedWorkers
	}
	if u.OverallScore != nil {
		r.OverallScore = u.OverallScore
	}
	if u.Analysis != nil {
		r.Analysis = u.Analysis
	}
	if u.Recommendation != nil {
		r.Recommendation = u.Recommendation
	}
	if u.CompletedAt != nil {
		r.CompletedAt = u.CompletedAt
	}
	return nil
}

type memResults struct {
	mu   sync.Mutex
	byID map[string]*workerresult.Result
	seq  []string
}

func newMemResults() *memResults { return &memResults{byID: map[string]*workerresult.Result{}} }

func (m *memResults) Create(_ context.Context, r *workerresult.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.byID[r.CheckID] = &cp
	m.seq = append(m.seq, r.CheckID)
	return nil
}

func (m *memResults) GetByCheckID(_ context.Context, checkID string) (*workerresult.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[checkID]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memResults) ListByRun(_ context.Context, runID string, p paging.Page) ([]*workerresult.Result, int, error) {
	all, _ := m.allByRun(runID)
	total := len(all)
	lo := p.Offset
	if lo > total {
		lo = total
	}
	hi := lo + p.Limit
	if hi > total {
		hi = total
	}
	return all[lo:hi], total, nil
}

func (m *memResults) ListAllByRun(_ context.Context, runID string) ([]*workerresult.Result, error) {
	all, _ := m.allByRun(runID)
	return all, nil
}

func (m *memResults) allByRun(runID string) ([]*workerresult.Result, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*workerresult.Result
	for _, id := range m.seq {
		r := m.byID[id]
		if r.RunID != runID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, len(out)
}

func (m *memResults) CompleteIfPending(_ context.Context, checkID string, c workerresult.Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[checkID]
	if !ok || r.Status != workerresult.StatusPending {
		return postgres.ErrNotFound
	}
	score := c.Score
	completedAt := c.CompletedAt
	r.Status = c.Status
	r.Classification = c.Classification
	r.Score = &score
	r.CompletedAt = &completedAt
	return nil
}

type nopTx struct{}

func (nopTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestUsecase() (*Usecase, *memRuns, *memResults) {
	runs := newMemRuns()
	results := newMemResults()
	uc := NewUsecase(runs, results, nopTx{}, analysis.New(), fixedClock{t: time.Unix(1700000000, 0)})
	return uc, runs, results
}

func mustStart(t *testing.T, uc *Usecase, workers int) *healthrun.Run {
	t.Helper()
	run, err := uc.StartRun(context.Background(), StartRunInput{
		Trigger:         healthrun.TriggerManual,
		ExpectedWorkers: workers,
	})
	require.NoError(t, err)
	return run
}

func mustRecord(t *testing.T, uc *Usecase, runID, name string) *workerresult.Result {
	t.Helper()
	res, err := uc.RecordWorkerResult(context.Background(), runID, name, "chat", nil)
	require.NoError(t, err)
	return res
}

func complete(t *testing.T, uc *Usecase, checkID string, score float64) {
	t.Helper()
	class := workerresult.ClassHealthy
	err := uc.CompleteWorkerResult(context.Background(), checkID,
		workerresult.StatusCompleted, &class, score, time.Now().UnixMilli())
	require.NoError(t, err)
}

func TestStartRun(t *testing.T) {
	uc, _, _ := newTestUsecase()

	run := mustStart(t, uc, 3)
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, healthrun.StatusRunning, run.Status)
	assert.Equal(t, 3, run.TotalWorkers)
	assert.Zero(t, run.CompletedWorkers)
	assert.Nil(t, run.OverallScore)

	_, err := uc.StartRun(context.Background(), StartRunInput{
		Trigger:         healthrun.TriggerManual,
		ExpectedWorkers: -1,
	})
	assert.ErrorIs(t, err, healthrun.ErrValidation)

	_, err = uc.StartRun(context.Background(), StartRunInput{Trigger: "cron"})
	assert.ErrorIs(t, err, healthrun.ErrValidation)
}

func TestRecordWorkerResult(t *testing.T) {
	uc, _, _ := newTestUsecase()
	run := mustStart(t, uc, 2)

	res := mustRecord(t, uc, run.RunID, "chat-1")
	assert.NotEmpty(t, res.CheckID)
	assert.Equal(t, workerresult.StatusPending, res.Status)
	assert.Nil(t, res.Score)

	_, err := uc.RecordWorkerResult(context.Background(), "no-such-run", "chat-1", "chat", nil)
	assert.ErrorIs(t, err, postgres.ErrNotFound)

	_, err = uc.RecordWorkerResult(context.Background(), run.RunID, "", "chat", nil)
	assert.ErrorIs(t, err, healthrun.ErrValidation)

	_, err = uc.FinalizeRun(context.Background(), run.RunID)
	require.NoError(t, err)
	_, err = uc.RecordWorkerResult(context.Background(), run.RunID, "chat-2", "chat", nil)
	assert.ErrorIs(t, err, postgres.ErrNotFound)
}

func TestCompleteWorkerResult(t *testing.T) {
	uc, _, results := newTestUsecase()
	run := mustStart(t, uc, 1)
	res := mustRecord(t, uc, run.RunID, "chat-1")

	err := uc.CompleteWorkerResult(context.Background(), res.CheckID, workerresult.StatusPending, nil, 0.5, 1)
	assert.ErrorIs(t, err, healthrun.ErrValidation)

	err = uc.CompleteWorkerResult(context.Background(), res.CheckID, workerresult.StatusCompleted, nil, 1.5, 1)
	assert.ErrorIs(t, err, healthrun.ErrValidation)

	complete(t, uc, res.CheckID, 0.9)
	got, err := results.GetByCheckID(context.Background(), res.CheckID)
	require.NoError(t, err)
	assert.Equal(t, workerresult.StatusCompleted, got.Status)
	require.NotNil(t, got.Score)
	assert.Equal(t, 0.9, *got.Score)

	// re-completion leaves the stored score unchanged
	class := workerresult.ClassUnhealthy
	err = uc.CompleteWorkerResult(context.Background(), res.CheckID, workerresult.StatusCompleted, &class, 0.1, 2)
	assert.ErrorIs(t, err, healthrun.ErrInvalidState)
	got, err = results.GetByCheckID(context.Background(), res.CheckID)
	require.NoError(t, err)
	assert.Equal(t, 0.9, *got.Score)
}

func TestFinalizeRun_MixedFleet(t *testing.T) {
	uc, _, results := newTestUsecase()
	run := mustStart(t, uc, 3)

	a := mustRecord(t, uc, run.RunID, "chat-1")
	b := mustRecord(t, uc, run.RunID, "vision-1")
	c := mustRecord(t, uc, run.RunID, "embed-1")

	complete(t, uc, a.CheckID, 1.0)
	complete(t, uc, b.CheckID, 0.5)
	// c never reports

	final, err := uc.FinalizeRun(context.Background(), run.RunID)
	require.NoError(t, err)

	assert.Equal(t, healthrun.StatusCompleted, final.Status)
	assert.Equal(t, 2, final.CompletedWorkers)
	assert.Equal(t, 1, final.PassedWorkers)
	assert.Equal(t, 1, final.FailedWorkers)
	require.NotNil(t, final.OverallScore)
	assert.InDelta(t, 0.5, *final.OverallScore, 1e-9)
	assert.NotNil(t, final.CompletedAt)
	assert.NotNil(t, final.Analysis)
	assert.NotNil(t, final.Recommendation)

	got, err := results.GetByCheckID(context.Background(), c.CheckID)
	require.NoError(t, err)
	assert.Equal(t, workerresult.StatusTimedOut, got.Status)
	require.NotNil(t, got.Score)
	assert.Zero(t, *got.Score)
}

func TestFinalizeRun_EmptyFleet(t *testing.T) {
	uc, _, _ := newTestUsecase()
	run := mustStart(t, uc, 0)

	final, err := uc.FinalizeRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, healthrun.StatusCompleted, final.Status)
	require.NotNil(t, final.OverallScore)
	assert.Equal(t, 1.0, *final.OverallScore)
}

func TestFinalizeRun_AllTimedOut(t *testing.T) {
	uc, _, _ := newTestUsecase()
	run := mustStart(t, uc, 2)
	mustRecord(t, uc, run.RunID, "chat-1")
	mustRecord(t, uc, run.RunID, "chat-2")

	final, err := uc.FinalizeRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Zero(t, final.CompletedWorkers)
	assert.Zero(t, final.PassedWorkers)
	assert.Equal(t, 2, final.FailedWorkers)
	require.NotNil(t, final.OverallScore)
	assert.Zero(t, *final.OverallScore)
}

func TestFinalizeRun_ScoreAtThresholdDoesNotPass(t *testing.T) {
	uc, _, _ := newTestUsecase()
	run := mustStart(t, uc, 1)
	res := mustRecord(t, uc, run.RunID, "chat-1")
	complete(t, uc, res.CheckID, 0.5)

	final, err := uc.FinalizeRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.CompletedWorkers)
	assert.Zero(t, final.PassedWorkers)
}

func TestFinalizeRun_Idempotence(t *testing.T) {
	uc, runs, _ := newTestUsecase()
	run := mustStart(t, uc, 1)
	res := mustRecord(t, uc, run.RunID, "chat-1")
	complete(t, uc, res.CheckID, 1.0)

	first, err := uc.FinalizeRun(context.Background(), run.RunID)
	require.NoError(t, err)

	_, err = uc.FinalizeRun(context.Background(), run.RunID)
	assert.ErrorIs(t, err, healthrun.ErrInvalidState)

	stored, err := runs.GetByRunID(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, first.CompletedWorkers, stored.CompletedWorkers)
	assert.Equal(t, *first.OverallScore, *stored.OverallScore)
}

func TestFailRun(t *testing.T) {
	uc, runs, _ := newTestUsecase()
	run := mustStart(t, uc, 1)

	require.NoError(t, uc.FailRun(context.Background(), run.RunID))
	stored, err := runs.GetByRunID(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, healthrun.StatusFailed, stored.Status)

	assert.ErrorIs(t, uc.FailRun(context.Background(), run.RunID), healthrun.ErrInvalidState)
}

func TestRecordWorkerResult_CapAtTotalWorkers(t *testing.T) {
	uc, _, _ := newTestUsecase()
	run := mustStart(t, uc, 1)
	mustRecord(t, uc, run.RunID, "chat-1")

	_, err := uc.RecordWorkerResult(context.Background(), run.RunID, "chat-2", "chat", nil)
	assert.ErrorIs(t, err, healthrun.ErrInvalidState)

	// the run is still finalizable
	final, err := uc.FinalizeRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, healthrun.StatusCompleted, final.Status)
}

func TestFinalizeRun_LateCompletionLoses(t *testing.T) {
	uc, _, results := newTestUsecase()
	run := mustStart(t, uc, 1)
	res := mustRecord(t, uc, run.RunID, "chat-1")

	final, err := uc.FinalizeRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 0, final.CompletedWorkers)
	assert.Equal(t, 1, final.FailedWorkers)

	class := workerresult.ClassHealthy
	err = uc.CompleteWorkerResult(context.Background(), res.CheckID,
		workerresult.StatusCompleted, &class, 1.0, time.Now().UnixMilli())
	assert.ErrorIs(t, err, healthrun.ErrInvalidState)

	stored, err := results.GetByCheckID(context.Background(), res.CheckID)
	require.NoError(t, err)
	assert.Equal(t, workerresult.StatusTimedOut, stored.Status)
	require.NotNil(t, stored.Score)
	assert.Zero(t, *stored.Score)
}

// snapshotRaceResults completes the pending row right after finalize
// takes its snapshot, before the timed-out conversion is written.
type snapshotRaceResults struct {
	*memResults
	once sync.Once
}

func (r *snapshotRaceResults) ListAllByRun(ctx context.Context, runID string) ([]*workerresult.Result, error) {
	out, err := r.memResults.ListAllByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	hasPending := false
	for _, res := range out {
		if res.Status == workerresult.StatusPending {
			hasPending = true
		}
	}
	if hasPending {
		r.once.Do(func() {
			class := workerresult.ClassHealthy
			for _, res := range out {
				if res.Status == workerresult.StatusPending {
					_ = r.memResults.CompleteIfPending(ctx, res.CheckID, workerresult.Completion{
						Status:         workerresult.StatusCompleted,
						Classification: &class,
						Score:          1.0,
						CompletedAt:    time.Now().UnixMilli(),
					})
				}
			}
		})
	}
	return out, nil
}

func TestFinalizeRun_CompletionDuringFinalizeIsCounted(t *testing.T) {
	runs := newMemRuns()
	results := &snapshotRaceResults{memResults: newMemResults()}
	uc := NewUsecase(runs, results, nopTx{}, analysis.New(), fixedClock{t: time.Unix(1700000000, 0)})

	run := mustStart(t, uc, 1)
	res := mustRecord(t, uc, run.RunID, "chat-1")

	final, err := uc.FinalizeRun(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.CompletedWorkers)
	assert.Equal(t, 0, final.FailedWorkers)
	require.NotNil(t, final.OverallScore)
	assert.Equal(t, 1.0, *final.OverallScore)

	stored, err := results.GetByCheckID(context.Background(), res.CheckID)
	require.NoError(t, err)
	assert.Equal(t, workerresult.StatusCompleted, stored.Status)
}
