package remediation

import "errors"

// ErrRemediation marks a failed issue-tracker call. Workflows log it and
// move on; it must never fail the workflow that triggered it.
var ErrRemediation = errors.New("remediation failed")

// IssueContext is the structured payload sent to the issue tracker.
type IssueContext struct {
	ErrorCode string  `json:"errorCode"`
	FilePath  string  `json:"filePath"`
	Message   string  `json:"message"`
	OrderID   *string `json:"orderId"`
}
