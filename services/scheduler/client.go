package schedulersvc

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
)

// maxOpenReminders bounds the reminders planned for an evaluation without a due date.
const maxOpenReminders = 10

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler plans the lifecycle tasks of evaluations on the asynq queue.
type Scheduler struct {
	client enqueuer
	close  func() error
	logger core.Logger
	now    func() time.Time
}

var _ evaluation.Scheduler = (*Scheduler)(nil)

// RedisOpt returns the asynq connection options of the configured redis.
func RedisOpt(conf *core.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	}
}

func NewScheduler(conf *core.Config, logger core.Logger) *Scheduler {
	client := asynq.NewClient(RedisOpt(conf))
	return &Scheduler{client: client, close: client.Close, logger: logger, now: core.Now}
}

func (s *Scheduler) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Schedule enqueues a state sync at every future date of e, and its reminders.
// Tasks already planned for the same evaluation and time are left untouched.
func (s *Scheduler) Schedule(ctx context.Context, e evaluation.Evaluation) error {
	if e.State == evaluation.StatePartial || e.State == evaluation.StateDeleted {
		return nil
	}
	now := s.now()

	for _, at := range syncTimes(e) {
		if !at.After(now) {
			// a stored inqueue evaluation past its start is opened right away
			if !at.Equal(e.StartDate) || e.State != evaluation.StateInQueue {
				continue
			}
			at = now
		}
		if err := s.enqueue(ctx, TypeSyncState, e.ID, at); err != nil {
			return err
		}
	}
	for _, at := range reminderTimes(e, now) {
		if err := s.enqueue(ctx, TypeReminder, e.ID, at); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) enqueue(ctx context.Context, typ, evalID string, at time.Time) error {
	task, err := newEvaluationTask(typ, evalID)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task, asynq.ProcessAt(at), asynq.TaskID(taskID(typ, evalID, at)))
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return errors.Wrapf(err, "enqueuing %s task", typ)
	}
	if err == nil && s.logger != nil {
		s.logger.Debug(fmt.Sprintf("scheduled %s of evaluation %s at %s", typ, evalID, at.Format(time.RFC3339)))
	}
	return nil
}

func taskID(typ, evalID string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%d", typ, evalID, at.Unix())
}

// syncTimes returns the distinct lifecycle dates of e in chronological order.
func syncTimes(e evaluation.Evaluation) []time.Time {
	seen := make(map[int64]struct{}, 4)
	times := make([]time.Time, 0, 4)
	for _, t := range []*time.Time{&e.StartDate, e.DueDate, e.StopDate, e.ViewDate} {
		if t == nil || t.IsZero() {
			continue
		}
		if _, ok := seen[t.Unix()]; ok {
			continue
		}
		seen[t.Unix()] = struct{}{}
		times = append(times, *t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}

// reminderTimes returns the future reminders of e: every ReminderDays from the start, before the due date.
func reminderTimes(e evaluation.Evaluation, now time.Time) []time.Time {
	if e.ReminderDays <= 0 || e.StartDate.IsZero() {
		return nil
	}
	every := time.Duration(e.ReminderDays) * 24 * time.Hour
	var times []time.Time
	for at := e.StartDate.Add(every); ; at = at.Add(every) {
		if e.DueDate != nil && !at.Before(*e.DueDate) {
			break
		}
		if e.DueDate == nil && len(times) == maxOpenReminders {
			break
		}
		if at.After(now) {
			times = append(times, at)
		}
	}
	return times
}
