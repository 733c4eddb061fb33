package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/showjihyun/agentrag-v1-sub018/internal/core/domain"
	"github.com/showjihyun/agentrag-v1-sub018/internal/core/ports"
	"github.com/showjihyun/agentrag-v1-sub018/internal/infrastructure/resilience"
)

// Queue moves routing outcomes from api instances to the persisting
// worker and carries operator notices on a separate subject.
type Queue struct {
	conn        *nats.Conn
	outcomeSubj string
	adminSubj   string
	executor    *resilience.Executor
}

func New(url, outcomeSubject, adminSubject string) (*Queue, error) {
	return NewWithOptions(url, outcomeSubject, adminSubject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, outcomeSubject, adminSubject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("adaptive-query-router"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:        conn,
		outcomeSubj: outcomeSubject,
		adminSubj:   adminSubject,
		executor:    options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

var _ ports.OutcomeQueue = (*Queue)(nil)

func (q *Queue) PublishOutcome(ctx context.Context, outcome domain.RoutingOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	return q.publish(ctx, "nats.publish_outcome", q.outcomeSubj, payload)
}

// adminNotice is the wire shape of operator notifications.
type adminNotice struct {
	Subject string    `json:"subject"`
	Detail  string    `json:"detail"`
	At      time.Time `json:"at"`
}

func (q *Queue) PublishAdminNotice(ctx context.Context, subject, detail string) error {
	payload, err := json.Marshal(adminNotice{Subject: subject, Detail: detail, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal admin notice: %w", err)
	}
	return q.publish(ctx, "nats.publish_notice", q.adminSubj, payload)
}

func (q *Queue) publish(ctx context.Context, operation, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(operation, err)
	}
	return nil
}

// SubscribeOutcomes consumes outcomes in the "tuning-workers" queue group
// so multiple worker replicas share the stream. Blocks until ctx ends,
// then drains in-flight deliveries.
func (q *Queue) SubscribeOutcomes(ctx context.Context, handler func(context.Context, domain.RoutingOutcome) error) error {
	sub, err := q.conn.QueueSubscribe(q.outcomeSubj, "tuning-workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		var outcome domain.RoutingOutcome
		if err := json.Unmarshal(msg.Data, &outcome); err != nil {
			log.Printf("worker outcome decode error: %v", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, outcome); err != nil {
			log.Printf("worker handler error for outcome=%s: %v", outcome.ID, err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
