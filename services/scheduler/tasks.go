package schedulersvc

import (
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
)

// Task types
const (
	TypeSyncState = "evaluation:sync-state"
	TypeReminder  = "evaluation:reminder"
)

type EvaluationPayload struct {
	EvaluationID string `json:"evaluation_id"`
}

func newEvaluationTask(typ, evalID string) (*asynq.Task, error) {
	payload, err := json.Marshal(EvaluationPayload{EvaluationID: evalID})
	if err != nil {
		return nil, errors.Wrap(err, "encoding task payload")
	}
	return asynq.NewTask(typ, payload), nil
}

// parsePayload decodes the payload of t; a malformed payload is never retried.
func parsePayload(t *asynq.Task) (EvaluationPayload, error) {
	var p EvaluationPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, errors.Wrapf(asynq.SkipRetry, "decoding %s payload: %v", t.Type(), err)
	}
	if p.EvaluationID == "" {
		return p, errors.Wrapf(asynq.SkipRetry, "%s payload without evaluation_id", t.Type())
	}
	return p, nil
}
