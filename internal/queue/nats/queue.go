// Package nats carries scrape requests over a NATS JetStream work queue.
package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/JakeFAU/pulseflow/internal/logging"
	"github.com/JakeFAU/pulseflow/internal/queue"
)

// Defaults for Config.
const (
	DefaultStream    = "PULSEFLOW_SCRAPES"
	DefaultSubject   = "pulseflow.scrape.request"
	DefaultDurable   = "pulseflow-workers"
	DefaultFetchWait = 5 * time.Second
)

// Config controls the JetStream connection.
type Config struct {
	URL       string
	Stream    string
	Subject   string
	Durable   string
	FetchWait time.Duration
}

func (c *Config) applyDefaults() {
	if c.Stream == "" {
		c.Stream = DefaultStream
	}
	if c.Subject == "" {
		c.Subject = DefaultSubject
	}
	if c.Durable == "" {
		c.Durable = DefaultDurable
	}
	if c.FetchWait <= 0 {
		c.FetchWait = DefaultFetchWait
	}
}

type publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type fetcher interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
}

// Queue publishes and pulls requests on a work-queue stream.
type Queue struct {
	cfg    Config
	conn   *nats.Conn
	pub    publisher
	sub    fetcher
	logger *zap.Logger

	closeOnce sync.Once
}

var _ queue.Queue = (*Queue)(nil)

// Connect dials NATS, ensures the stream exists and binds a durable pull consumer.
func Connect(cfg Config, logger *zap.Logger) (*Queue, error) {
	cfg.applyDefaults()
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	logger = logging.OrNop(logger).Named("queue.nats")

	nc, err := nats.Connect(cfg.URL,
		nats.Name("pulseflow"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to nats", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected from nats", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, fmt.Errorf("add stream %s: %w", cfg.Stream, err)
	}
	sub, err := js.PullSubscribe(cfg.Subject, cfg.Durable, nats.ManualAck())
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("pull subscribe: %w", err)
	}
	q := newQueue(cfg, js, sub, logger)
	q.conn = nc
	return q, nil
}

func newQueue(cfg Config, pub publisher, sub fetcher, logger *zap.Logger) *Queue {
	cfg.applyDefaults()
	return &Queue{cfg: cfg, pub: pub, sub: sub, logger: logging.OrNop(logger)}
}

// Enqueue publishes req to the stream subject.
func (q *Queue) Enqueue(ctx context.Context, req queue.Request) error {
	data, err := queue.Encode(req)
	if err != nil {
		return err
	}
	if _, err := q.pub.Publish(q.cfg.Subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish request: %w", err)
	}
	return nil
}

// Dequeue blocks until a request arrives or ctx ends. Messages are acked on
// receipt; a malformed message is terminated and skipped.
func (q *Queue) Dequeue(ctx context.Context) (queue.Request, error) {
	for {
		if err := ctx.Err(); err != nil {
			return queue.Request{}, fmt.Errorf("dequeue canceled: %w", err)
		}
		fetchCtx, cancel := context.WithTimeout(ctx, q.cfg.FetchWait)
		msgs, err := q.sub.Fetch(1, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return queue.Request{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
			}
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return queue.Request{}, queue.ErrClosed
			}
			return queue.Request{}, fmt.Errorf("fetch request: %w", err)
		}
		for _, msg := range msgs {
			req, err := queue.Decode(msg.Data)
			if err != nil {
				q.logger.Warn("dropping malformed request", zap.Error(err))
				if termErr := msg.Term(); termErr != nil {
					q.logger.Debug("term failed", zap.Error(termErr))
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				q.logger.Debug("ack failed", zap.Error(ackErr))
			}
			return req, nil
		}
	}
}

// Close drains the connection.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		if q.conn == nil {
			return
		}
		if err := q.conn.Drain(); err != nil {
			q.logger.Warn("drain nats connection", zap.Error(err))
			q.conn.Close()
		}
	})
}
