package remediation

import "context"

// IssueTracker opens tracking issues in an external issue system.
type IssueTracker interface {
	CreateIssue(ctx context.Context, ic IssueContext, note string) error
}
