package relay

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"time"

	"github.com/dsbridge/dsbridge/internal/envelope"
	"github.com/dsbridge/dsbridge/internal/queue"
	"github.com/dsbridge/dsbridge/internal/session"
)

// Opener creates a directory session for one task. Workers default to
// session.Open; tests substitute a fake.
type Opener func(cfg session.Config, log session.Logger) (session.Directory, error)

// Worker drains the task queue: it claims waiting rows, unseals their
// parameters, runs the named operation against the directory and writes
// the outcome back.
type Worker struct {
	store *queue.Store
	log   session.Logger
	open  Opener

	privateKey *rsa.PrivateKey

	interval  time.Duration
	retention time.Duration
}

// WorkerOptions configures a queue worker. PrivateKey is the
// transport-form key matching the producers' public half.
type WorkerOptions struct {
	PrivateKey string

	// Interval is the gap between queue sweeps; zero means 1 minute.
	Interval time.Duration
	// Retention is how long finished or abandoned rows survive before
	// the janitor removes them; zero means 1 hour.
	Retention time.Duration

	// Open overrides how directory sessions are created.
	Open Opener
}

// NewWorker builds a worker over an open store.
func NewWorker(store *queue.Store, opts WorkerOptions, log session.Logger) (*Worker, error) {
	if log == nil {
		log = session.NopLogger{}
	}
	priv, err := envelope.LoadPrivateKey(opts.PrivateKey)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		store:      store,
		log:        log,
		open:       opts.Open,
		privateKey: priv,
		interval:   opts.Interval,
		retention:  opts.Retention,
	}
	if w.open == nil {
		w.open = func(cfg session.Config, log session.Logger) (session.Directory, error) {
			return session.Open(cfg, log)
		}
	}
	if w.interval <= 0 {
		w.interval = time.Minute
	}
	if w.retention <= 0 {
		w.retention = time.Hour
	}
	return w, nil
}

// RunOnce claims and finishes waiting tasks until the queue is empty.
// Task failures are written back as error results, not returned; only
// store access problems stop the sweep.
func (w *Worker) RunOnce(ctx context.Context) error {
	for {
		task, err := w.store.ClaimOldestWaiting(ctx)
		if err != nil {
			return err
		}
		if task == nil {
			return nil
		}

		status := queue.StatusComplete
		body, err := w.process(task)
		if err != nil {
			status = queue.StatusError
			raw, _ := json.Marshal(errorResult{Error: err.Error()})
			body = string(raw)
			w.log.Warn("task failed", map[string]any{
				"id":        task.ID,
				"operation": task.TypeQuery,
				"error":     err.Error(),
			})
		} else {
			w.log.Debug("task finished", map[string]any{"id": task.ID, "operation": task.TypeQuery})
		}
		if err := w.store.Complete(ctx, task.ID, status, body); err != nil {
			return err
		}
	}
}

func (w *Worker) process(task *queue.Task) (string, error) {
	var conn map[string]any
	if err := envelope.Decode(w.privateKey, task.ParamConn, &conn); err != nil {
		return "", err
	}
	var params Params
	if err := envelope.Decode(w.privateKey, task.ParamQuery, &params); err != nil {
		return "", err
	}

	cfg, err := ConnFromParams(conn)
	if err != nil {
		return "", err
	}
	dir, err := w.open(cfg, w.log)
	if err != nil {
		return "", err
	}
	defer dir.Close()

	result, err := Dispatch(dir, task.TypeQuery, params)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Run sweeps the queue on the worker interval and runs the janitor
// hourly until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	sweep := time.NewTicker(w.interval)
	defer sweep.Stop()
	janitor := time.NewTicker(time.Hour)
	defer janitor.Stop()

	if err := w.RunOnce(ctx); err != nil {
		w.log.Error("queue sweep failed", map[string]any{"error": err.Error()})
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sweep.C:
			if err := w.RunOnce(ctx); err != nil {
				w.log.Error("queue sweep failed", map[string]any{"error": err.Error()})
			}
		case <-janitor.C:
			w.clean(ctx)
		}
	}
}

func (w *Worker) clean(ctx context.Context) {
	if n, err := w.store.ReleaseStale(ctx, w.retention); err != nil {
		w.log.Error("stale claim release failed", map[string]any{"error": err.Error()})
	} else if n > 0 {
		w.log.Info("stale claims released", map[string]any{"count": n})
	}
	if n, err := w.store.ReapExpired(ctx, w.retention); err != nil {
		w.log.Error("task cleanup failed", map[string]any{"error": err.Error()})
	} else if n > 0 {
		w.log.Info("expired tasks removed", map[string]any{"count": n})
	}
}
