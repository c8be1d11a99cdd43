package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/infrastructure/resilience"
)

const DefaultCaseCreatedSubject = "case.created"

// CaseEvents publishes case lifecycle events to NATS and lets workers consume
// them through a queue group.
type CaseEvents struct {
	conn     *nats.Conn
	subject  string
	group    string
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	ResilienceExecutor   *resilience.Executor
}

func New(url, subject string) (*CaseEvents, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*CaseEvents, error) {
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
	if subject == "" {
		subject = DefaultCaseCreatedSubject
	}
	group := options.QueueGroup
	if group == "" {
		group = "support-workers"
	}
	executor := options.ResilienceExecutor
	if executor == nil {
		executor = resilience.NewExecutor(resilience.StoreConfig(3 * time.Second))
	}

	conn, err := nats.Connect(
		url,
		nats.Name("support-assistant"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &CaseEvents{
		conn:     conn,
		subject:  subject,
		group:    group,
		executor: executor,
	}, nil
}

func (q *CaseEvents) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *CaseEvents) PublishCaseCreated(ctx context.Context, event domain.CaseCreatedEvent) error {
	payload, err := encodeCaseCreated(event)
	if err != nil {
		return err
	}
	err = q.executor.Execute(ctx, "nats.publish", func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}, classifyNATSError)
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeCaseCreated blocks until ctx is done, then drains the subscription.
func (q *CaseEvents) SubscribeCaseCreated(ctx context.Context, handler func(context.Context, domain.CaseCreatedEvent) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.group, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handleMessage(handlerCtx, msg.Data, handler); err != nil {
			slog.Error("case_event_handler_failed", "subject", msg.Subject, "error", err)
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

func encodeCaseCreated(event domain.CaseCreatedEvent) ([]byte, error) {
	if event.TicketID == "" && event.Case.ID != "" {
		event.TicketID = domain.TicketID(event.Case.ID)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal case event: %w", err)
	}
	return payload, nil
}

func handleMessage(ctx context.Context, data []byte, handler func(context.Context, domain.CaseCreatedEvent) error) error {
	var event domain.CaseCreatedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode case event", err)
	}
	if event.TicketID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "decode case event", errors.New("missing ticket id"))
	}
	return handler(ctx, event)
}
