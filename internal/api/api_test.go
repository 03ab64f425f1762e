package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgefleet/fleetops/internal/analysis"
	"github.com/forgefleet/fleetops/internal/domain/healthrun"
	"github.com/forgefleet/fleetops/internal/domain/order"
	"github.com/forgefleet/fleetops/internal/domain/paging"
	remdomain "github.com/forgefleet/fleetops/internal/domain/remediation"
	"github.com/forgefleet/fleetops/internal/domain/workerresult"
	"github.com/forgefleet/fleetops/internal/repository/postgres"
	"github.com/forgefleet/fleetops/internal/services/opsflow"
	"github.com/forgefleet/fleetops/internal/services/orchestrator"
	"github.com/forgefleet/fleetops/internal/services/remediation"
)

func init() { gin.SetMode(gin.TestMode) }

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
	lo := min(p.Offset, total)
	hi := min(lo+p.Limit, total)
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
	all, _ := m.ListAllByRun(context.Background(), runID)
	total := len(all)
	lo := min(p.Offset, total)
	hi := min(lo+p.Limit, total)
	return all[lo:hi], total, nil
}

func (m *memResults) ListAllByRun(_ context.Context, runID string) ([]*workerresult.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*workerresult.Result
	for _, id := range m.seq {
		if m.byID[id].RunID == runID {
			cp := *m.byID[id]
			out = append(out, &cp)
		}
	}
	return out, nil
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

type memFollowups struct {
	mu    sync.Mutex
	items []*order.Followup
}

func (m *memFollowups) Create(_ context.Context, f *order.Followup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	cp.ID = int64(len(m.items) + 1)
	m.items = append(m.items, &cp)
	return nil
}

func (m *memFollowups) ListByOrder(_ context.Context, orderID string) ([]*order.Followup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*order.Followup
	for _, f := range m.items {
		if f.OrderID == orderID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Impact < out[j].Impact })
	return out, nil
}

type memOplogs struct {
	mu    sync.Mutex
	items []*order.OperationLog
}

func (m *memOplogs) Append(_ context.Context, e *order.OperationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.ID = int64(len(m.items) + 1)
	m.items = append(m.items, &cp)
	return nil
}

func (m *memOplogs) ListByOrder(_ context.Context, orderID string) ([]*order.OperationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*order.OperationLog
	for _, e := range m.items {
		if e.OrderID == orderID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeEvents struct {
	mu       sync.Mutex
	triggers []healthrun.TriggerKind
	sources  []string
}

func (f *fakeEvents) PublishRunRequested(_ context.Context, trigger healthrun.TriggerKind, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, trigger)
	f.sources = append(f.sources, source)
	return nil
}

type capturingTracker struct {
	mu     sync.Mutex
	issues []remdomain.IssueContext
}

func (c *capturingTracker) CreateIssue(_ context.Context, issue remdomain.IssueContext, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issues = append(c.issues, issue)
	return nil
}

type testServer struct {
	router  *gin.Engine
	events  *fakeEvents
	tracker *capturingTracker
	uc      *orchestrator.Usecase
}

func newTestServer() *testServer {
	log := zap.NewNop()
	runs := newMemRuns()
	results := newMemResults()
	uc := orchestrator.NewUsecase(runs, results, nopTx{}, analysis.New(), nil)
	ev := &fakeEvents{}

	fups := &memFollowups{}
	ops := &memOplogs{}
	tracker := &capturingTracker{}
	engine := opsflow.NewEngine(
		opsflow.NewReportBuilder(fups, ops),
		remediation.NewDispatcher(tracker, log),
		fups, ops, log,
	)

	router := NewRouter(
		NewRunsController(uc, runs, results, ev, log),
		NewOrdersController(engine, log),
		log,
	)
	return &testServer{router: router, events: ev, tracker: tracker, uc: uc}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCreateRun(t *testing.T) {
	s := newTestServer()

	w := s.do(t, http.MethodPost, "/v1/health-runs", gin.H{
		"triggerKind":     "manual",
		"expectedWorkers": 2,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	run := decode[runDTO](t, w)
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, "running", run.Status)
	assert.Equal(t, 2, run.TotalWorkers)
	assert.Nil(t, run.OverallScore)
	// absent optionals serialize as explicit null
	assert.Contains(t, w.Body.String(), `"overallScore":null`)

	w = s.do(t, http.MethodPost, "/v1/health-runs", gin.H{
		"triggerKind":     "manual",
		"expectedWorkers": -3,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestServer()
	w := s.do(t, http.MethodGet, "/v1/health-runs/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunLifecycleOverHTTP(t *testing.T) {
	s := newTestServer()

	w := s.do(t, http.MethodPost, "/v1/health-runs", gin.H{
		"triggerKind":     "manual",
		"expectedWorkers": 2,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	run := decode[runDTO](t, w)

	w = s.do(t, http.MethodPost, "/v1/health-runs/"+run.RunID+"/results", gin.H{
		"workerName": "chat-1",
		"workerType": "chat",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	res := decode[resultDTO](t, w)
	assert.Equal(t, "pending", res.Status)

	w = s.do(t, http.MethodPatch, "/v1/health-checks/"+res.CheckID, gin.H{
		"status":         "completed",
		"classification": "healthy",
		"score":          1.0,
	})
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[resultDTO](t, w)
	assert.Equal(t, "completed", res.Status)
	require.NotNil(t, res.Score)
	assert.Equal(t, 1.0, *res.Score)

	// re-completion is a conflict
	w = s.do(t, http.MethodPatch, "/v1/health-checks/"+res.CheckID, gin.H{
		"status": "completed",
		"score":  0.1,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/v1/health-runs/"+run.RunID+"/finalize", nil)
	require.Equal(t, http.StatusOK, w.Code)
	final := decode[runDTO](t, w)
	assert.Equal(t, "completed", final.Status)
	assert.Equal(t, 1, final.CompletedWorkers)
	assert.Equal(t, 1, final.PassedWorkers)
	assert.Equal(t, 1, final.FailedWorkers)
	require.NotNil(t, final.OverallScore)
	assert.InDelta(t, 0.5, *final.OverallScore, 1e-9)

	w = s.do(t, http.MethodPost, "/v1/health-runs/"+run.RunID+"/finalize", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListResults_Pagination(t *testing.T) {
	s := newTestServer()

	run, err := s.uc.StartRun(context.Background(), orchestrator.StartRunInput{
		Trigger:         healthrun.TriggerManual,
		ExpectedWorkers: 5,
	})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := s.uc.RecordWorkerResult(context.Background(), run.RunID, "w", "chat", nil)
		require.NoError(t, err)
	}

	w := s.do(t, http.MethodGet, "/v1/health-runs/"+run.RunID+"/results?limit=2&offset=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[pagedResponse[resultDTO]](t, w)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 5, page.Pagination.Total)
	assert.True(t, page.Pagination.HasMore)

	w = s.do(t, http.MethodGet, "/v1/health-runs/"+run.RunID+"/results?limit=2&offset=4", nil)
	page = decode[pagedResponse[resultDTO]](t, w)
	assert.Len(t, page.Data, 1)
	assert.False(t, page.Pagination.HasMore)
}

func TestListRuns_Filter(t *testing.T) {
	s := newTestServer()
	for _, trigger := range []healthrun.TriggerKind{healthrun.TriggerManual, healthrun.TriggerScheduled, healthrun.TriggerScheduled} {
		_, err := s.uc.StartRun(context.Background(), orchestrator.StartRunInput{Trigger: trigger})
		require.NoError(t, err)
	}

	w := s.do(t, http.MethodGet, "/v1/health-runs?trigger_type=scheduled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[pagedResponse[runDTO]](t, w)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 2, page.Pagination.Total)

	w = s.do(t, http.MethodGet, "/v1/health-runs?trigger_type=cron", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTriggerRun(t *testing.T) {
	s := newTestServer()
	w := s.do(t, http.MethodPost, "/v1/health-runs/trigger", gin.H{"source": "ops-console"})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, s.events.triggers, 1)
	assert.Equal(t, healthrun.TriggerManual, s.events.triggers[0])
	assert.Equal(t, "ops-console", s.events.sources[0])
}

func TestTriggerRun_MalformedBody(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/health-runs/trigger", strings.NewReader(`{"source":`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, s.events.triggers)

	// empty body falls back to the default source
	w = s.do(t, http.MethodPost, "/v1/health-runs/trigger", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, s.events.sources, 1)
	assert.Equal(t, "api", s.events.sources[0])
}

func TestOrderOpsOverHTTP(t *testing.T) {
	s := newTestServer()

	w := s.do(t, http.MethodPost, "/v1/orders/ord-1/followups", gin.H{
		"type":     "blocked",
		"impact":   7,
		"filePath": "src/pay.ts",
		"message":  "payment flow broken",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/v1/orders/ord-1/followups", gin.H{
		"type":    "urgent",
		"message": "bad type",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/v1/orders/ord-1/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[opsflow.DeliveryReport](t, w)
	assert.Equal(t, 1, report.Summary.BlockedCount)

	w = s.do(t, http.MethodPost, "/v1/orders/ord-1/final-qa", nil)
	require.Equal(t, http.StatusOK, w.Code)
	qa := decode[opsflow.QAResult](t, w)
	assert.Equal(t, opsflow.VerdictFailed, qa.Verdict)
	require.Len(t, s.tracker.issues, 1)
	assert.Equal(t, "QA_BLOCKED", s.tracker.issues[0].ErrorCode)
}

func TestResolveConflictsOverHTTP(t *testing.T) {
	s := newTestServer()

	w := s.do(t, http.MethodPost, "/v1/orders/ord-1/conflicts", gin.H{
		"repo":   "acme/web",
		"branch": "release",
		"files":  []string{"a.ts", "b.ts"},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, s.tracker.issues, 1)
	assert.Equal(t, "a.ts", s.tracker.issues[0].FilePath)

	w = s.do(t, http.MethodPost, "/v1/orders/ord-1/conflicts", gin.H{
		"repo":   "acme/web",
		"branch": "release",
		"files":  []string{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateOrder(t *testing.T) {
	s := newTestServer()

	w := s.do(t, http.MethodPost, "/v1/orders/validate", gin.H{
		"id":      "ord-1",
		"factory": "web",
	})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[orderValidation](t, w)
	assert.True(t, res.OK)

	w = s.do(t, http.MethodPost, "/v1/orders/validate", gin.H{
		"placeholder_payload": gin.H{
			"hero":   gin.H{"mini_prompt": "a hero section"},
			"footer": gin.H{},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[orderValidation](t, w)
	assert.False(t, res.OK)
	assert.Len(t, res.Errors, 3)
	assert.Contains(t, res.Errors, "missing required field: id")
	assert.Contains(t, res.Errors, "missing required field: factory")
	assert.Contains(t, res.Errors, "placeholder_payload[footer] missing 'mini_prompt'")
}
