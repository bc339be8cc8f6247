package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const TaskExecuteRun = "workflow:execute_run"

type runTaskPayload struct {
	RunID string `json:"run_id"`
}

// AsynqDispatcher queues runs in Redis for any worker replica to execute.
type AsynqDispatcher struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

func NewAsynqDispatcher(client *asynq.Client, queue string) *AsynqDispatcher {
	if queue == "" {
		queue = "default"
	}
	return &AsynqDispatcher{client: client, queue: queue, maxRetry: 5}
}

func NewRunTask(runID string) (*asynq.Task, error) {
	b, err := json.Marshal(runTaskPayload{RunID: runID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExecuteRun, b), nil
}

// Dispatch enqueues the run once; a run that is already queued is not
// queued again.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, runID string) error {
	task, err := NewRunTask(runID)
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(d.queue),
		asynq.TaskID(runID),
		asynq.MaxRetry(d.maxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue run %s: %w", runID, err)
	}
	return nil
}

func NewTaskHandler(exec Executor, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p runTaskPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.Error("invalid workflow task payload", "err", err)
			return fmt.Errorf("decode run task: %v: %w", err, asynq.SkipRetry)
		}
		if p.RunID == "" {
			return fmt.Errorf("run task without run id: %w", asynq.SkipRetry)
		}
		return exec.Execute(ctx, p.RunID)
	}
}

type WorkerConfig struct {
	Concurrency int
	Queue       string
}

// Worker consumes queued runs.
type Worker struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

func NewWorker(redisOpt asynq.RedisClientOpt, cfg WorkerConfig, exec Executor, logger *slog.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 1},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskExecuteRun, NewTaskHandler(exec, logger))
	return &Worker{srv: srv, mux: mux}
}

func (w *Worker) Start() error {
	return w.srv.Start(w.mux)
}

func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}
