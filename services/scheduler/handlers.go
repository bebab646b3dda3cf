package schedulersvc

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/notification"
)

// Handlers process the tasks planned by the Scheduler.
type Handlers struct {
	Evals         evaluation.Service
	Notifications notification.Service
	Logger        core.Logger
}

func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeSyncState, h.HandleSyncState)
	mux.HandleFunc(TypeReminder, h.HandleReminder)
}

// HandleSyncState persists the current state of the evaluation and,
// when it just opened, notifies its students.
func (h *Handlers) HandleSyncState(ctx context.Context, t *asynq.Task) error {
	p, err := parsePayload(t)
	if err != nil {
		return err
	}
	return h.SyncState(ctx, p.EvaluationID)
}

// SyncState is HandleSyncState without the task envelope. Missing evaluations are skipped.
func (h *Handlers) SyncState(ctx context.Context, evalID string) error {
	prev, next, err := h.Evals.SyncState(ctx, evalID)
	if err != nil {
		if errors.Cause(err) == evaluation.ErrNotFound {
			h.Logger.Info("evaluation " + evalID + " not found; skipping state sync")
			return nil
		}
		return errors.Wrap(err, "syncing evaluation state")
	}
	if prev == next {
		return nil
	}
	h.Logger.Info(fmt.Sprintf("evaluation %s: %s -> %s", evalID, prev, next))

	if next == evaluation.StateActive && evaluation.IsBefore(prev, evaluation.StateActive) {
		// the state is already saved: a retry would not resend, so failures are only reported
		sent, err := h.Notifications.SendAvailable(ctx, evalID)
		if err != nil {
			h.Logger.Error("sending available notifications", err, map[string]interface{}{"evaluation": evalID})
			return nil
		}
		h.Logger.Info(fmt.Sprintf("evaluation %s: %d available notifications sent", evalID, sent))
	}
	return nil
}

// HandleReminder reminds the students who did not complete an open evaluation.
func (h *Handlers) HandleReminder(ctx context.Context, t *asynq.Task) error {
	p, err := parsePayload(t)
	if err != nil {
		return err
	}

	e, err := h.Evals.GetByID(ctx, p.EvaluationID)
	if err != nil {
		if errors.Cause(err) == evaluation.ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "getting evaluation")
	}
	if !evaluation.IsOpen(e.State) || e.ReminderDays == 0 {
		return nil
	}

	sent, err := h.Notifications.SendReminders(ctx, e.ID)
	if err != nil {
		return errors.Wrap(err, "sending reminders")
	}
	h.Logger.Info(fmt.Sprintf("evaluation %s: %d reminders sent", e.ID, sent))
	return nil
}
