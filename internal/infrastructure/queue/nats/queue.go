package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
	"github.com/kirillkom/medscript-analyzer/internal/core/ports"
	"github.com/kirillkom/medscript-analyzer/internal/infrastructure/resilience"
)

const (
	workerQueueGroup    = "analysis-workers"
	publishFlushTimeout = 5 * time.Second
)

// Queue publishes analysis tasks to a subject and consumes them in a queue
// group. Task text travels by object storage key.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

var _ ports.JobDispatcher = (*Queue)(nil)

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
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
		nats.Name("medscript-analyzer"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "connect nats", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Dispatch publishes the task. The returned handle is finished once the
// publish has been flushed to the server; completion of the analysis is
// observed through the record store.
func (q *Queue) Dispatch(ctx context.Context, task domain.AnalysisTask) (*domain.JobHandle, error) {
	payload, err := encodeTask(task)
	if err != nil {
		return nil, err
	}

	call := func(context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		if err := q.conn.FlushTimeout(publishFlushTimeout); err != nil {
			return fmt.Errorf("nats flush: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats_publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded(err)
	}

	handle := domain.NewJobHandle(task.DocumentID)
	handle.Finish(nil)
	return handle, nil
}

// Subscribe runs the runner for every task received in the worker queue group
// until ctx is cancelled, then drains the subscription.
func (q *Queue) Subscribe(ctx context.Context, runner ports.AnalysisRunner, observer ports.JobObserver) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		task, err := decodeTask(msg.Data)
		if err != nil {
			q.logger.Error("analysis_task_rejected", "error", err, "payload_bytes", len(msg.Data))
			return
		}
		runTask(ctx, runner, observer, task)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	q.logger.Info("nats_subscribed", "subject", q.subject, "queue_group", workerQueueGroup)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(publishFlushTimeout); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func runTask(ctx context.Context, runner ports.AnalysisRunner, observer ports.JobObserver, task domain.AnalysisTask) {
	if observer != nil {
		if !task.EnqueuedAt.IsZero() {
			observer.ObserveQueueLag(time.Since(task.EnqueuedAt))
		}
		observer.JobStarted()
	}
	start := time.Now()
	err := runner.Run(ctx, task)
	if observer != nil {
		observer.JobFinished(err, time.Since(start))
	}
}

type taskMessage struct {
	DocumentID string    `json:"document_id"`
	TextKey    string    `json:"text_key"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func encodeTask(task domain.AnalysisTask) ([]byte, error) {
	if strings.TrimSpace(task.DocumentID) == "" || strings.TrimSpace(task.TextKey) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode analysis task", errors.New("document_id and text_key are required"))
	}
	return json.Marshal(taskMessage{DocumentID: task.DocumentID, TextKey: task.TextKey, EnqueuedAt: task.EnqueuedAt.UTC()})
}

func decodeTask(data []byte) (domain.AnalysisTask, error) {
	var msg taskMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.AnalysisTask{}, domain.WrapError(domain.ErrInvalidInput, "decode analysis task", err)
	}
	if strings.TrimSpace(msg.DocumentID) == "" || strings.TrimSpace(msg.TextKey) == "" {
		return domain.AnalysisTask{}, domain.WrapError(domain.ErrInvalidInput, "decode analysis task", errors.New("document_id and text_key are required"))
	}
	return domain.AnalysisTask{DocumentID: msg.DocumentID, TextKey: msg.TextKey, EnqueuedAt: msg.EnqueuedAt}, nil
}
