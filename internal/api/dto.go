package api

import (
	"github.com/forgefleet/fleetops/internal/domain/healthrun"
	"github.com/forgefleet/fleetops/internal/domain/order"
	"github.com/forgefleet/fleetops/internal/domain/paging"
	"github.com/forgefleet/fleetops/internal/domain/workerresult"
)

// Absent optional fields serialize as explicit null, never disappear,
// so clients can distinguish "not yet set" without probing for keys.

type runDTO struct {
	RunID            string   `json:"runId"`
	TriggerKind      string   `json:"triggerKind"`
	TriggerSource    *string  `json:"triggerSource"`
	Status           string   `json:"status"`
	TotalWorkers     int      `json:"totalWorkers"`
	CompletedWorkers int      `json:"completedWorkers"`
	PassedWorkers    int      `json:"passedWorkers"`
	FailedWorkers    int      `json:"failedWorkers"`
	OverallScore     *float64 `json:"overallScore"`
	Analysis         *string  `json:"analysis"`
	Recommendation   *string  `json:"recommendation"`
	StartedAt        int64    `json:"startedAt"`
	CompletedAt      *int64   `json:"completedAt"`
	TimeoutAt        *int64   `json:"timeoutAt"`
}

func toRunDTO(r *healthrun.Run) runDTO {
	return runDTO{
		RunID:            r.RunID,
		TriggerKind:      string(r.TriggerKind),
		TriggerSource:    r.TriggerSource,
		Status:           string(r.Status),
		TotalWorkers:     r.TotalWorkers,
		CompletedWorkers: r.CompletedWorkers,
		PassedWorkers:    r.PassedWorkers,
		FailedWorkers:    r.FailedWorkers,
		OverallScore:     r.OverallScore,
		Analysis:         r.Analysis,
		Recommendation:   r.Recommendation,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		TimeoutAt:        r.TimeoutAt,
	}
}

type resultDTO struct {
	CheckID        string   `json:"checkId"`
	RunID          string   `json:"runId"`
	WorkerName     string   `json:"workerName"`
	WorkerType     string   `json:"workerType"`
	Endpoint       *string  `json:"endpoint"`
	Status         string   `json:"status"`
	Classification *string  `json:"classification"`
	Score          *float64 `json:"score"`
	CreatedAt      int64    `json:"createdAt"`
	CompletedAt    *int64   `json:"completedAt"`
}

func toResultDTO(r *workerresult.Result) resultDTO {
	var class *string
	if r.Classification != nil {
		s := string(*r.Classification)
		class = &s
	}
	return resultDTO{
		CheckID:        r.CheckID,
		RunID:          r.RunID,
		WorkerName:     r.WorkerName,
		WorkerType:     r.WorkerType,
		Endpoint:       r.Endpoint,
		Status:         string(r.Status),
		Classification: class,
		Score:          r.Score,
		CreatedAt:      r.CreatedAt,
		CompletedAt:    r.CompletedAt,
	}
}

type paginationDTO struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

type pagedResponse[T any] struct {
	Data       []T           `json:"data"`
	Pagination paginationDTO `json:"pagination"`
}

func newPagedResponse[T any](data []T, info paging.Info) pagedResponse[T] {
	if data == nil {
		data = []T{}
	}
	return pagedResponse[T]{
		Data: data,
		Pagination: paginationDTO{
			Limit:   info.Limit,
			Offset:  info.Offset,
			Total:   info.Total,
			HasMore: info.HasMore,
		},
	}
}

type createRunRequest struct {
	TriggerKind     string  `json:"triggerKind" binding:"required"`
	TriggerSource   *string `json:"triggerSource"`
	ExpectedWorkers int     `json:"expectedWorkers"`
	TimeoutAt       *int64  `json:"timeoutAt"`
}

type recordResultRequest struct {
	WorkerName string  `json:"workerName" binding:"required"`
	WorkerType string  `json:"workerType" binding:"required"`
	Endpoint   *string `json:"endpoint"`
}

type completeResultRequest struct {
	Status         string   `json:"status" binding:"required"`
	Classification *string  `json:"classification"`
	Score          *float64 `json:"score" binding:"required"`
	CompletedAt    *int64   `json:"completedAt"`
}

type triggerRunRequest struct {
	Source string `json:"source"`
}

type followupRequest struct {
	Type     string `json:"type" binding:"required"`
	Impact   int    `json:"impact"`
	FilePath string `json:"filePath"`
	Message  string `json:"message" binding:"required"`
}

type followupDTO struct {
	ID        int64  `json:"id"`
	OrderID   string `json:"orderId"`
	Type      string `json:"type"`
	Impact    int    `json:"impact"`
	FilePath  string `json:"filePath"`
	Message   string `json:"message"`
	CreatedAt int64  `json:"createdAt"`
}

func toFollowupDTO(f *order.Followup) followupDTO {
	return followupDTO{
		ID:        f.ID,
		OrderID:   f.OrderID,
		Type:      string(f.Type),
		Impact:    f.Impact,
		FilePath:  f.FilePath,
		Message:   f.Message,
		CreatedAt: f.CreatedAt,
	}
}

type conflictsRequest struct {
	Repo   string   `json:"repo" binding:"required"`
	Branch string   `json:"branch" binding:"required"`
	Files  []string `json:"files" binding:"required,min=1"`
}
