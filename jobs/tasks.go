package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGLReconcile replays pending reconciliation gaps into the ledger.
	TaskGLReconcile = "gl:reconcile"
	// TaskGLIntegrity re-checks posted entries for balance and dense numbering.
	TaskGLIntegrity = "gl:integrity"
)

// ReconcilePayload bounds one reconciliation sweep.
type ReconcilePayload struct {
	Batch int `json:"batch"`
}

// IntegrityPayload scopes an integrity check. Zero values mean all.
type IntegrityPayload struct {
	CompanyCode string `json:"company_code"`
	FiscalYear  int    `json:"fiscal_year"`
}

// NewReconcileTask constructs a reconciliation task.
func NewReconcileTask(batch int) (*asynq.Task, error) {
	data, err := json.Marshal(ReconcilePayload{Batch: batch})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLReconcile, data), nil
}

// NewIntegrityTask constructs an integrity check task.
func NewIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, data), nil
}

func decode(t *asynq.Task, target any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), target); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}
