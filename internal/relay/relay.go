package relay

import (
	"context"

	"github.com/dsbridge/dsbridge/internal/dserr"
	"github.com/dsbridge/dsbridge/internal/queue"
	"github.com/dsbridge/dsbridge/internal/session"
)

// Invoker runs one named directory operation.
type Invoker interface {
	Invoke(ctx context.Context, op string, params Params) (any, error)
}

// Options selects exactly one transport for a relay.
type Options struct {
	// Direct opens a directory session in-process.
	Direct *session.Config

	// Queued submits tasks through the SQLite queue.
	Queued *QueuedOptions

	// HTTP sends operations to a relay peer.
	HTTP *HTTPOptions

	Logger session.Logger
}

// QueuedOptions is the queued-transport configuration.
type QueuedOptions struct {
	DatabasePath string
	ProducerOptions
}

// Relay is an Invoker over whichever transport Options selected.
type Relay struct {
	invoker Invoker
	closers []func() error
}

// New validates that exactly one transport is configured and builds it.
func New(opts Options) (*Relay, error) {
	const op = "relay.new"

	log := opts.Logger
	if log == nil {
		log = session.NopLogger{}
	}

	modes := 0
	for _, set := range []bool{opts.Direct != nil, opts.Queued != nil, opts.HTTP != nil} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return nil, dserr.New(op, dserr.KindValidation, "exactly one of direct, queued or http must be configured, got %d", modes)
	}

	switch {
	case opts.Direct != nil:
		dir, err := session.Open(*opts.Direct, log)
		if err != nil {
			return nil, err
		}
		return &Relay{
			invoker: directInvoker{dir: dir},
			closers: []func() error{dir.Close},
		}, nil

	case opts.Queued != nil:
		store, err := queue.Open(opts.Queued.DatabasePath)
		if err != nil {
			return nil, err
		}
		producer, err := NewProducer(store, opts.Queued.ProducerOptions, log)
		if err != nil {
			store.Close()
			return nil, err
		}
		return &Relay{
			invoker: producer,
			closers: []func() error{store.Close},
		}, nil

	default:
		client, err := NewHTTPClient(*opts.HTTP, log)
		if err != nil {
			return nil, err
		}
		return &Relay{invoker: client}, nil
	}
}

// Invoke runs the operation over the configured transport.
func (r *Relay) Invoke(ctx context.Context, op string, params Params) (any, error) {
	return r.invoker.Invoke(ctx, op, params)
}

// Close releases whatever the transport holds open.
func (r *Relay) Close() error {
	var first error
	for _, close := range r.closers {
		if err := close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type directInvoker struct {
	dir session.Directory
}

func (d directInvoker) Invoke(_ context.Context, op string, params Params) (any, error) {
	return Dispatch(d.dir, op, params)
}
