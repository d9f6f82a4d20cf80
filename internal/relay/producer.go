package relay

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"time"

	"github.com/dsbridge/dsbridge/internal/dserr"
	"github.com/dsbridge/dsbridge/internal/envelope"
	"github.com/dsbridge/dsbridge/internal/queue"
	"github.com/dsbridge/dsbridge/internal/session"
)

// errorResult is the body a worker writes for a failed task.
type errorResult struct {
	Error string `json:"error"`
}

// Producer submits encrypted tasks to the queue and waits for a worker
// to finish them.
type Producer struct {
	store *queue.Store
	log   session.Logger

	paramConn string

	timeout      time.Duration
	warmupDelay  time.Duration
	pollInterval time.Duration

	publicKey *rsa.PublicKey
}

// ProducerOptions configures a queued producer. PublicKey is the
// transport-form key the worker holds the private half of.
type ProducerOptions struct {
	PublicKey string
	Conn      session.Config

	// Timeout bounds the whole wait for one task; zero means 5 minutes.
	Timeout time.Duration
	// WarmupDelay is how long to wait before the first poll; zero means
	// 10 seconds.
	WarmupDelay time.Duration
	// PollInterval is the gap between polls; zero means 10 seconds.
	PollInterval time.Duration
}

// NewProducer builds a producer over an open store. The connection
// parameters are sealed once and reused for every task.
func NewProducer(store *queue.Store, opts ProducerOptions, log session.Logger) (*Producer, error) {
	if log == nil {
		log = session.NopLogger{}
	}
	pub, err := envelope.LoadPublicKey(opts.PublicKey)
	if err != nil {
		return nil, err
	}
	paramConn, err := envelope.Encode(pub, connParams(opts.Conn))
	if err != nil {
		return nil, err
	}

	p := &Producer{
		store:        store,
		log:          log,
		paramConn:    paramConn,
		timeout:      opts.Timeout,
		warmupDelay:  opts.WarmupDelay,
		pollInterval: opts.PollInterval,
		publicKey:    pub,
	}
	if p.timeout <= 0 {
		p.timeout = 5 * time.Minute
	}
	if p.warmupDelay <= 0 {
		p.warmupDelay = 10 * time.Second
	}
	if p.pollInterval <= 0 {
		p.pollInterval = 10 * time.Second
	}
	return p, nil
}

// Invoke seals the operation parameters, enqueues the task and polls
// until a worker finishes it or the timeout passes. A timed-out row is
// left for the janitor.
func (p *Producer) Invoke(ctx context.Context, op string, params Params) (any, error) {
	if _, ok := handlers[op]; !ok {
		return nil, dserr.New("relay", dserr.KindValidation, "unknown operation %q", op)
	}

	paramQuery, err := envelope.Encode(p.publicKey, map[string]any(params))
	if err != nil {
		return nil, err
	}

	id, err := p.store.Enqueue(ctx, op, p.paramConn, paramQuery)
	if err != nil {
		return nil, err
	}
	p.log.Debug("task enqueued", map[string]any{"id": id, "operation": op})

	deadline := time.Now().Add(p.timeout)
	if err := sleepCtx(ctx, p.warmupDelay); err != nil {
		return nil, err
	}

	for {
		res, err := p.store.Poll(ctx, id)
		if err != nil {
			return nil, err
		}
		if res.Done {
			if err := p.store.Delete(ctx, id); err != nil {
				p.log.Warn("finished task not deleted", map[string]any{"id": id, "error": err.Error()})
			}
			return p.finish(op, res)
		}
		if time.Now().After(deadline) {
			return nil, dserr.New(op, dserr.KindTimeout, "no worker finished task %d within %s", id, p.timeout)
		}
		if err := sleepCtx(ctx, p.pollInterval); err != nil {
			return nil, err
		}
	}
}

func (p *Producer) finish(op string, res queue.Result) (any, error) {
	if res.Status == queue.StatusError {
		var carried errorResult
		if err := json.Unmarshal([]byte(res.Body), &carried); err != nil || carried.Error == "" {
			carried.Error = res.Body
		}
		return nil, dserr.New(op, dserr.KindDirectoryRejected, "%s", carried.Error)
	}
	if res.Body == "" {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal([]byte(res.Body), &out); err != nil {
		return nil, dserr.Wrap(op, dserr.KindValidation, err, "malformed task result")
	}
	return ReviveTimes(out), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
