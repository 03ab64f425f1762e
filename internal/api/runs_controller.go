package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/forgefleet/fleetops/internal/domain/events"
	"github.com/forgefleet/fleetops/internal/domain/healthrun"
	"github.com/forgefleet/fleetops/internal/domain/paging"
	"github.com/forgefleet/fleetops/internal/domain/workerresult"
	"github.com/forgefleet/fleetops/internal/services/orchestrator"
)

// RunsController exposes the run and result surface. All writes go
// through the orchestrator usecase; reads hit the repos directly.
type RunsController struct {
	uc      *orchestrator.Usecase
	runs    healthrun.Repo
	results workerresult.Repo
	events  events.RunEvents
	log     *zap.Logger
}

func NewRunsController(uc *orchestrator.Usecase, runs healthrun.Repo, results workerresult.Repo, ev events.RunEvents, log *zap.Logger) *RunsController {
	return &RunsController{uc: uc, runs: runs, results: results, events: ev, log: log}
}

func (ct *RunsController) ListRuns(c *gin.Context) {
	var f healthrun.Filter
	if s := c.Query("trigger_type"); s != "" {
		kind := healthrun.TriggerKind(s)
		if !kind.Valid() {
			badRequest(c, fmt.Errorf("unknown trigger_type %q", s))
			return
		}
		f.TriggerKind = &kind
	}
	if s := c.Query("status"); s != "" {
		status := healthrun.Status(s)
		if !status.Valid() {
			badRequest(c, fmt.Errorf("unknown status %q", s))
			return
		}
		f.Status = &status
	}
	page := parsePage(c).Clamp(healthrun.DefaultListLimit)

	runs, total, err := ct.runs.List(c.Request.Context(), f, page)
	if err != nil {
		writeErr(c, ct.log, err)
		return
	}
	data := make([]runDTO, 0, len(runs))
	for _, r := range runs {
		data = append(data, toRunDTO(r))
	}
	c.JSON(http.StatusOK, newPagedResponse(data, paging.NewInfo(page, total)))
}

func (ct *RunsController) GetRun(c *gin.Context) {
	run, err := ct.runs.GetByRunID(c.Request.Context(), c.Param("runID"))
	if err != nil {
		writeErr(c, ct.log, err)
		return
	}
	c.JSON(http.StatusOK, toRunDTO(run))
}

func (ct *RunsController) CreateRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	run, err := ct.uc.StartRun(c.Request.Context(), orchestrator.StartRunInput{
		Trigger:         healthrun.TriggerKind(req.TriggerKind),
		Source:          req.TriggerSource,
		ExpectedWorkers: req.ExpectedWorkers,
		TimeoutAt:       req.TimeoutAt,
	})
	if err != nil {
		writeErr(c, ct.log, err)
		return
	}
	c.JSON(http.StatusCreated, toRunDTO(run))
}

func (ct *RunsController) RecordResult(c *gin.Context) {
	var req recordResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := ct.uc.RecordWorkerResult(c.Request.Context(), c.Param("runID"), req.WorkerName, req.WorkerType, req.Endpoint)
	if err != nil {
		writeErr(c, ct.log, err)
		return
	}
	c.JSON(http.StatusCreated, toResultDTO(res))
}

func (ct *RunsController) ListResults(c *gin.Context) {
	page := parsePage(c).Clamp(workerresult.DefaultListLimit)

	results, total, err := ct.results.ListByRun(c.Request.Context(), c.Param("runID"), page)
	if err != nil {
		writeErr(c, ct.log, err)
		return
	}
	data := make([]resultDTO, 0, len(results))
	for _, r := range results {
		data = append(data, toResultDTO(r))
	}
	c.JSON(http.StatusOK, newPagedResponse(data, paging.NewInfo(page, total)))
}

func (ct *RunsController) GetResult(c *gin.Context) {
	res, err := ct.results.GetByCheckID(c.Request.Context(), c.Param("checkID"))
	if err != nil {
		writeErr(c, ct.log, err)
		return
	}
	c.JSON(http.StatusOK, toResultDTO(res))
}

func (ct *RunsController) CompleteResult(c *gin.Context) {
	var req completeResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var class *workerresult.Classification
	if req.Classification != nil {
		cl := workerresult.Classification(*req.Classification)
		class = &cl
	}
	completedAt := time.Now().UnixMilli()
	if req.CompletedAt != nil {
		completedAt = *req.CompletedAt
	}
	checkID := c.Param("checkID")
	err := ct.uc.CompleteWorkerResult(c.Request.Context(), checkID, workerresult.Status(req.Status), class, *req.Score, completedAt)
	if err != nil {
		writeErr(c, ct.log, err)
		return
	}
	res, err := ct.results.GetByCheckID(c.Request.Context(), checkID)
	if err != nil {
		writeErr(c, ct.log, err)
		return
	}
	c.JSON(http.StatusOK, toResultDTO(res))
}

func (ct *RunsController) FinalizeRun(c *gin.Context) {
	run, err := ct.uc.FinalizeRun(c.Request.Context(), c.Param("runID"))
	if err != nil {
		writeErr(c, ct.log, err)
		return
	}
	c.JSON(http.StatusOK, toRunDTO(run))
}

// TriggerRun publishes a manual run request; the orchestrator service
// picks it up and performs the sweep asynchronously.
func (ct *RunsController) TriggerRun(c *gin.Context) {
	var req triggerRunRequest
	// an empty body means default source; anything else must parse
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}
	if err := ct.events.PublishRunRequested(c.Request.Context(), healthrun.TriggerManual, req.Source); err != nil {
		writeErr(c, ct.log, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "requested", "source": req.Source})
}

func parsePage(c *gin.Context) paging.Page {
	var p paging.Page
	if s := c.Query("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			p.Limit = v
		}
	}
	if s := c.Query("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			p.Offset = v
		}
	}
	return p
}
