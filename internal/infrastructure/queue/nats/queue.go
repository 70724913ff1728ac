package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
	"github.com/nreshetnikov/image-recognition-service/internal/infrastructure/resilience"
)

// EventBus carries two subjects: blob-stored events for the orchestrator
// and task-change notifications for the callback dispatcher. Both are
// consumed through queue groups, so horizontally scaled workers split the
// stream instead of duplicating it.
type EventBus struct {
	conn           *nats.Conn
	storageSubject string
	tasksSubject   string
	executor       *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url, storageSubject, tasksSubject string) (*EventBus, error) {
	return NewWithOptions(url, storageSubject, tasksSubject, Options{})
}

func NewWithOptions(url, storageSubject, tasksSubject string, options Options) (*EventBus, error) {
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
		nats.Name("image-recognition-service"),
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
	return &EventBus{
		conn:           conn,
		storageSubject: storageSubject,
		tasksSubject:   tasksSubject,
		executor:       options.ResilienceExecutor,
	}, nil
}

func (b *EventBus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *EventBus) PublishBlobStored(ctx context.Context, event domain.StorageEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal storage event: %w", err)
	}
	return b.publish(ctx, "nats.publish_blob_stored", b.storageSubject, payload)
}

func (b *EventBus) PublishTaskChanged(ctx context.Context, taskID string) error {
	return b.publish(ctx, "nats.publish_task_changed", b.tasksSubject, []byte(taskID))
}

func (b *EventBus) publish(ctx context.Context, operation, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := b.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if b.executor != nil {
		err = b.executor.Execute(ctx, operation, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(operation, err)
	}
	return nil
}

func (b *EventBus) SubscribeBlobStored(ctx context.Context, handler func(context.Context, domain.StorageEvent) error) error {
	return b.subscribe(ctx, b.storageSubject, "recognition-workers", func(handlerCtx context.Context, data []byte) error {
		var event domain.StorageEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return fmt.Errorf("unmarshal storage event: %w", err)
		}
		return handler(handlerCtx, event)
	})
}

func (b *EventBus) SubscribeTaskChanged(ctx context.Context, handler func(context.Context, string) error) error {
	return b.subscribe(ctx, b.tasksSubject, "callback-dispatchers", func(handlerCtx context.Context, data []byte) error {
		return handler(handlerCtx, string(data))
	})
}

func (b *EventBus) subscribe(ctx context.Context, subject, group string, handler func(context.Context, []byte) error) error {
	sub, err := b.conn.QueueSubscribe(subject, group, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, msg.Data); err != nil {
			log.Printf("handler error on %s: %v", subject, err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
