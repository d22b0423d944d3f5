package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/scrapeq/scrapeq/internal/domain"
)

const (
	RoutingKeyResult = "result"
	RoutingKeyFailed = "failed"

	tasksQueueTTL   = 24 * 60 * 60 * 1000          // ms
	historyQueueTTL = 7 * 24 * 60 * 60 * 1000      // ms
	queueMaxLength  = 1000
)

// Names holds the broker-side identifiers the manager owns.
type Names struct {
	Tasks      string
	Results    string
	Failed     string
	Exchange   string
	RoutingKey string
}

func DefaultNames() Names {
	return Names{
		Tasks:      "scraping_queue",
		Results:    "scraping_results",
		Failed:     "scraping_failed",
		Exchange:   "scraping_exchange",
		RoutingKey: "scraping",
	}
}

// Stats are per-queue message counts read via passive declarations.
type Stats struct {
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// Manager owns three durable queues bound to one direct exchange: tasks,
// results and failed. It publishes new jobs, advances job state by
// read-modify-republish, and reports aggregate counts.
//
// One Manager owns one channel; the channel is not safe for sharing with
// another consumer loop, so each logical owner constructs its own Manager.
type Manager struct {
	conn   *amqp.Connection
	ch     Channel
	open   OpenChannel
	names  Names
	logger *slog.Logger
}

// Dial connects to the broker at url and declares the exchange, queues and
// bindings. Startup is idempotent against pre-existing infrastructure: each
// queue is first checked with a passive declaration and only declared with
// retention arguments if the check fails.
func Dial(url string, names Names, logger *slog.Logger) (*Manager, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	open := func() (Channel, error) { return conn.Channel() }

	m, err := NewManager(ch, open, names, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	m.conn = conn
	return m, nil
}

// NewManager builds a manager over an already-open channel and declares the
// topology on it.
func NewManager(ch Channel, open OpenChannel, names Names, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		ch:     ch,
		open:   open,
		names:  names,
		logger: logger.With("component", "queue_manager"),
	}
	if err := m.declareTopology(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) declareTopology() error {
	if err := m.ch.ExchangeDeclare(m.names.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", m.names.Exchange, err)
	}

	queues := []struct {
		name string
		key  string
		args amqp.Table
	}{
		{m.names.Tasks, m.names.RoutingKey, amqp.Table{"x-message-ttl": int32(tasksQueueTTL), "x-max-length": int32(queueMaxLength)}},
		{m.names.Results, RoutingKeyResult, amqp.Table{"x-message-ttl": int32(historyQueueTTL), "x-max-length": int32(queueMaxLength)}},
		{m.names.Failed, RoutingKeyFailed, amqp.Table{"x-message-ttl": int32(historyQueueTTL), "x-max-length": int32(queueMaxLength)}},
	}

	for _, q := range queues {
		if err := m.declareQueue(q.name, q.args); err != nil {
			return err
		}
		if err := m.ch.QueueBind(q.name, q.key, m.names.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q.name, err)
		}
	}

	m.logger.Info("broker topology declared", "exchange", m.names.Exchange)
	return nil
}

// declareQueue probes for an existing queue on a sacrificial channel (a failed
// passive declaration closes the channel it ran on), falling back to an active
// declaration with retention arguments on the manager's own channel.
func (m *Manager) declareQueue(name string, args amqp.Table) error {
	probe, err := m.open()
	if err != nil {
		return fmt.Errorf("open probe channel: %w", err)
	}

	if _, err := probe.QueueDeclarePassive(name, true, false, false, false, nil); err == nil {
		probe.Close()
		m.logger.Info("queue exists", "queue", name)
		return nil
	}

	if _, err := m.ch.QueueDeclare(name, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	m.logger.Info("queue created", "queue", name)
	return nil
}

// AddTask publishes job to the tasks queue with persistent delivery mode and
// introspection headers. It returns an error rather than panicking so callers
// can degrade gracefully.
func (m *Manager) AddTask(ctx context.Context, job *domain.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	err = m.ch.PublishWithContext(ctx, m.names.Exchange, m.names.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    time.Now(),
		Headers: amqp.Table{
			"task_type": "scraping",
			"category":  job.Request.Category,
			"page":      int32(job.Request.Page),
		},
		Body: body,
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "publish task", "job_id", job.ID, "error", err)
		return fmt.Errorf("publish task %s: %w", job.ID, err)
	}

	m.logger.InfoContext(ctx, "task queued", "job_id", job.ID,
		"category", job.Request.Category, "page", job.Request.Page)
	return nil
}

// GetTask scans the results and failed queues for the job with the given id,
// acking the match and requeuing everything else. This is a deliberately
// simple peek-until-found strategy sized for control-plane volume.
func (m *Manager) GetTask(ctx context.Context, taskID string) (*domain.Job, error) {
	for _, queue := range []string{m.names.Results, m.names.Failed} {
		job, err := m.findInQueue(queue, taskID)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
	}
	return nil, domain.ErrJobNotFound
}

func (m *Manager) findInQueue(queue, taskID string) (*domain.Job, error) {
	// Bound the scan by the queue depth at entry so requeued messages are
	// not revisited forever.
	depth, err := m.queueDepth(queue)
	if err != nil {
		return nil, err
	}

	for i := 0; i < depth; i++ {
		d, ok, err := m.ch.Get(queue, false)
		if err != nil {
			return nil, fmt.Errorf("get from %s: %w", queue, err)
		}
		if !ok {
			return nil, nil
		}

		var job domain.Job
		if err := json.Unmarshal(d.Body, &job); err != nil {
			m.logger.Warn("unparseable message dropped", "queue", queue, "error", err)
			_ = m.ch.Nack(d.DeliveryTag, false, false)
			continue
		}

		if job.ID == taskID {
			if err := m.ch.Ack(d.DeliveryTag, false); err != nil {
				return nil, fmt.Errorf("ack %s: %w", taskID, err)
			}
			return &job, nil
		}
		if err := m.ch.Nack(d.DeliveryTag, false, true); err != nil {
			return nil, fmt.Errorf("requeue from %s: %w", queue, err)
		}
	}
	return nil, nil
}

// ListTasks returns up to limit finished jobs, skipping offset. Reads are
// non-destructive: every parseable message is requeued after inspection.
func (m *Manager) ListTasks(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	var jobs []*domain.Job

	for _, queue := range []string{m.names.Results, m.names.Failed} {
		depth, err := m.queueDepth(queue)
		if err != nil {
			return nil, err
		}
		for i := 0; i < depth && len(jobs) < offset+limit; i++ {
			d, ok, err := m.ch.Get(queue, false)
			if err != nil {
				return nil, fmt.Errorf("get from %s: %w", queue, err)
			}
			if !ok {
				break
			}

			var job domain.Job
			if err := json.Unmarshal(d.Body, &job); err != nil {
				m.logger.Warn("unparseable message dropped", "queue", queue, "error", err)
				_ = m.ch.Nack(d.DeliveryTag, false, false)
				continue
			}
			if err := m.ch.Nack(d.DeliveryTag, false, true); err != nil {
				return nil, fmt.Errorf("requeue from %s: %w", queue, err)
			}
			jobs = append(jobs, &job)
		}
	}

	if offset >= len(jobs) {
		return nil, nil
	}
	return jobs[offset:], nil
}

// UpdateTaskStarted marks the job as processing.
func (m *Manager) UpdateTaskStarted(ctx context.Context, taskID string) error {
	return m.republish(ctx, taskID, func(job *domain.Job) string {
		job.Status = domain.StatusProcessing
		now := domain.Timestamp(time.Now())
		job.StartedAt = &now
		return m.names.RoutingKey
	})
}

// UpdateTaskCompleted republishes the job to the results queue with the
// extraction result attached.
func (m *Manager) UpdateTaskCompleted(ctx context.Context, taskID string, result *domain.Result) error {
	return m.republish(ctx, taskID, func(job *domain.Job) string {
		job.Status = domain.StatusCompleted
		now := domain.Timestamp(time.Now())
		job.CompletedAt = &now
		if result != nil && result.OutputFile != "" {
			job.ResultFile = &result.OutputFile
		}
		return RoutingKeyResult
	})
}

// UpdateTaskFailed republishes the job to the failed queue with the error
// message attached.
func (m *Manager) UpdateTaskFailed(ctx context.Context, taskID string, errMsg string) error {
	return m.republish(ctx, taskID, func(job *domain.Job) string {
		job.Status = domain.StatusFailed
		now := domain.Timestamp(time.Now())
		job.CompletedAt = &now
		job.ErrorMessage = &errMsg
		return RoutingKeyFailed
	})
}

func (m *Manager) republish(ctx context.Context, taskID string, mutate func(*domain.Job) string) error {
	job, err := m.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	routingKey := mutate(job)
	if err := m.publishJob(ctx, job, routingKey); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "task status updated", "job_id", taskID, "status", string(job.Status))
	return nil
}

// PublishStatus publishes job to the queue matching its current status:
// completed jobs go to results, failed jobs to the failed queue, anything
// else back to the tasks queue. The listener uses this to record a terminal
// outcome for a job it already holds, without the peek-until-found scan.
func (m *Manager) PublishStatus(ctx context.Context, job *domain.Job) error {
	key := m.names.RoutingKey
	switch job.Status {
	case domain.StatusCompleted:
		key = RoutingKeyResult
	case domain.StatusFailed:
		key = RoutingKeyFailed
	}
	return m.publishJob(ctx, job, key)
}

func (m *Manager) publishJob(ctx context.Context, job *domain.Job, routingKey string) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	err = m.ch.PublishWithContext(ctx, m.names.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish job %s: %w", job.ID, err)
	}
	return nil
}

// QueueStats reports message counts without consuming anything.
func (m *Manager) QueueStats(ctx context.Context) (Stats, error) {
	var s Stats
	var err error

	if s.Pending, err = m.queueDepth(m.names.Tasks); err != nil {
		return s, err
	}
	if s.Completed, err = m.queueDepth(m.names.Results); err != nil {
		return s, err
	}
	if s.Failed, err = m.queueDepth(m.names.Failed); err != nil {
		return s, err
	}
	s.Total = s.Pending + s.Completed + s.Failed
	return s, nil
}

func (m *Manager) queueDepth(name string) (int, error) {
	q, err := m.ch.QueueDeclarePassive(name, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("inspect queue %s: %w", name, err)
	}
	return q.Messages, nil
}

// Consume opens a delivery stream from the tasks queue with a prefetch of one
// unacknowledged message, making each consumer strictly sequential.
func (m *Manager) Consume() (<-chan amqp.Delivery, error) {
	if err := m.ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := m.ch.Consume(m.names.Tasks, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", m.names.Tasks, err)
	}

	m.logger.Info("consuming", "queue", m.names.Tasks)
	return deliveries, nil
}

// Ack confirms a delivery.
func (m *Manager) Ack(tag uint64) error {
	return m.ch.Ack(tag, false)
}

// Nack rejects a delivery, optionally requeuing it for redelivery.
func (m *Manager) Nack(tag uint64, requeue bool) error {
	return m.ch.Nack(tag, false, requeue)
}

// Ping verifies the broker connection is still usable.
func (m *Manager) Ping(ctx context.Context) error {
	_, err := m.queueDepth(m.names.Tasks)
	return err
}

func (m *Manager) Close() error {
	if err := m.ch.Close(); err != nil {
		m.logger.Warn("close channel", "error", err)
	}
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}
