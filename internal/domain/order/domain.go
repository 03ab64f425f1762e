package order

import "errors"

var ErrValidation = errors.New("validation failed")

// FollowupType classifies an order-scoped remediation item.
type FollowupType string

const (
	FollowupBlocked  FollowupType = "blocked"
	FollowupAdvisory FollowupType = "advisory"
)

func (t FollowupType) Valid() bool {
	switch t {
	case FollowupBlocked, FollowupAdvisory:
		return true
	}
	return false
}

// Followup is a remediation item attached to a delivery order.
// Impact is an ordered severity: higher means worse.
type Followup struct {
	ID        int64
	OrderID   string
	Type      FollowupType
	Impact    int
	FilePath  string
	Message   string
	CreatedAt int64
}

// OperationLog is an append-only record of an action taken for an order.
type OperationLog struct {
	ID        int64
	OrderID   string
	Action    string
	Detail    string
	CreatedAt int64
}
