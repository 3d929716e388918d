package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/holyloy/komarce/internal/models"
)

// taskQueue collects cascade tasks written inside one database transaction.
// Tasks only become runnable once that transaction commits.
type taskQueue struct {
	tx       *gorm.DB
	root     string
	created  []models.CascadeTask
	unlocked []models.InfinityCycle
}

func newTaskQueue(tx *gorm.DB, root string) *taskQueue {
	return &taskQueue{tx: tx, root: root}
}

func (q *taskQueue) push(task models.CascadeTask) error {
	task.Status = models.TaskPending
	task.RootReference = q.root
	if err := q.tx.Create(&task).Error; err != nil {
		return fmt.Errorf("enqueue %s task: %w", task.Kind, err)
	}
	q.created = append(q.created, task)
	return nil
}

// stage orders task kinds inside a cascade: affiliate, allocation driven
// StepUp, Ripple on StepUp payouts, Infinity, then vouchers and cashback.
var stage = map[models.CascadeTaskKind]int{
	models.TaskAffiliate: 0,
	models.TaskStepUp:    1,
	models.TaskRipple:    2,
	models.TaskInfinity:  3,
	models.TaskVoucher:   4,
	models.TaskCashback:  5,
}

// pendingTasks is the in-memory work list of one cascade. pop returns the
// oldest task of the earliest stage.
type pendingTasks struct {
	items []models.CascadeTask
}

func (p *pendingTasks) push(tasks ...models.CascadeTask) {
	p.items = append(p.items, tasks...)
}

func (p *pendingTasks) pop() (models.CascadeTask, bool) {
	if len(p.items) == 0 {
		return models.CascadeTask{}, false
	}
	best := 0
	for i := 1; i < len(p.items); i++ {
		if stage[p.items[i].Kind] < stage[p.items[best].Kind] {
			best = i
		}
	}
	task := p.items[best]
	p.items = append(p.items[:best], p.items[best+1:]...)
	return task, true
}

type taskHandler func(q *taskQueue, task *models.CascadeTask) error

func (e *Engine) handlerFor(kind models.CascadeTaskKind) (taskHandler, bool) {
	switch kind {
	case models.TaskAffiliate:
		return e.evaluateAffiliate, true
	case models.TaskStepUp:
		return e.evaluateStepUp, true
	case models.TaskRipple:
		return e.evaluateRipple, true
	case models.TaskInfinity:
		return e.evaluateInfinity, true
	case models.TaskVoucher:
		return e.convertVouchers, true
	case models.TaskCashback:
		return e.evaluateCashback, true
	}
	return nil, false
}

// drain processes seeds and everything they spawn until nothing is pending.
// The first failing task aborts the cascade; work committed before it stays,
// and the failed task remains pending for Redrive.
func (e *Engine) drain(ctx context.Context, seeds []models.CascadeTask) error {
	if len(seeds) == 0 {
		return nil
	}
	started := time.Now()
	defer func() {
		e.metrics.ObserveCascadeSeconds(time.Since(started).Seconds())
	}()

	work := &pendingTasks{}
	work.push(seeds...)
	for {
		task, ok := work.pop()
		if !ok {
			return nil
		}
		spawned, err := e.runTask(ctx, task)
		if err != nil {
			return fmt.Errorf("%s task %s: %w", task.Kind, task.ID, err)
		}
		work.push(spawned...)
	}
}

// runTask claims the task and runs its evaluator in a single transaction, so
// the task's effects and its completion commit together.
func (e *Engine) runTask(ctx context.Context, task models.CascadeTask) ([]models.CascadeTask, error) {
	handler, ok := e.handlerFor(task.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown cascade task kind %q", task.Kind)
	}

	var (
		spawned  []models.CascadeTask
		unlocked []models.InfinityCycle
	)
	claimed := false
	err := withRetry(ctx, func() error {
		spawned, unlocked, claimed = nil, nil, false
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.CascadeTask{}).
				Where("id = ? AND status = ?", task.ID, models.TaskPending).
				Updates(map[string]any{
					"status":   models.TaskDone,
					"attempts": gorm.Expr("attempts + ?", 1),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			claimed = true

			q := newTaskQueue(tx, task.RootReference)
			if err := handler(q, &task); err != nil {
				return err
			}
			spawned = q.created
			unlocked = q.unlocked
			return nil
		})
	})
	if err != nil {
		e.metrics.ObserveTask(string(task.Kind), "error")
		e.recordTaskFailure(ctx, task, err)
		return nil, err
	}
	if claimed {
		e.metrics.ObserveTask(string(task.Kind), "done")
	}
	for _, cycle := range unlocked {
		e.notify(ctx, "infinity_cycle", func(n AdminNotifier) error {
			return n.InfinityCycleUnlocked(ctx, cycle)
		})
	}
	return spawned, nil
}

func (e *Engine) recordTaskFailure(ctx context.Context, task models.CascadeTask, cause error) {
	status := models.TaskPending
	if task.Attempts+1 >= e.opts.MaxTaskAttempts {
		status = models.TaskFailed
	}
	msg := cause.Error()
	if len(msg) > 1024 {
		msg = msg[:1024]
	}
	if err := e.db.WithContext(ctx).Model(&models.CascadeTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]any{
			"status":     status,
			"attempts":   gorm.Expr("attempts + ?", 1),
			"last_error": msg,
		}).Error; err != nil {
		e.log.Error("failed to record cascade task failure",
			zap.String("task_id", task.ID.String()), zap.Error(err))
	}
	e.log.Warn("cascade task failed",
		zap.String("task_id", task.ID.String()),
		zap.String("kind", string(task.Kind)),
		zap.String("root", task.RootReference),
		zap.Int("attempts", task.Attempts+1),
		zap.Error(cause))
}

// Redrive runs pending tasks older than minAge, oldest first, each as the
// seed of its own cascade. It returns how many seeds were attempted.
func (e *Engine) Redrive(ctx context.Context, minAge time.Duration, limit int) (int, error) {
	ctx = context.WithoutCancel(ctx)
	if limit <= 0 {
		limit = 100
	}

	var tasks []models.CascadeTask
	if err := e.db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", models.TaskPending, e.now().Add(-minAge)).
		Order("created_at asc").
		Limit(limit).
		Find(&tasks).Error; err != nil {
		return 0, err
	}

	var firstErr error
	for _, task := range tasks {
		if err := e.drain(ctx, []models.CascadeTask{task}); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
	}
	if len(tasks) > 0 {
		e.log.Info("re-drove pending cascade tasks", zap.Int("count", len(tasks)))
	}
	return len(tasks), firstErr
}
