package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/blasbase/blasbase/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerAudit scans the assignment ledger for malformed date ranges.
	TaskLedgerAudit = "ledger:audit"
)

// LedgerAuditPayload configures a ledger audit run. A nil AsOf means today.
type LedgerAuditPayload struct {
	AsOf *shared.Date `json:"as_of,omitempty"`
}

// NewLedgerAuditTask constructs an Asynq task.
func NewLedgerAuditTask(asOf *shared.Date) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerAuditPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerAudit, data, asynq.Queue(QueueDefault)), nil
}
