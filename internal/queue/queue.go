// Package queue carries campaign dispatch jobs over RabbitMQ. The scheduler
// and the API publish jobs; the worker consumes them and runs the pipeline.
package queue

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

const DispatchQueue = "campaign.dispatch"

// DispatchJob asks the worker to run one dispatch for one campaign.
type DispatchJob struct {
	CampaignID int64 `json:"campaign_id"`
}

// Publisher is the fire-and-forget side used by the scheduler and the API.
type Publisher interface {
	PublishDispatch(ctx context.Context, campaignID int64) error
}

type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  zerolog.Logger
}

func Connect(url string, log zerolog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		DispatchQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPQueue{conn: conn, ch: ch, log: log}, nil
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

func (q *AMQPQueue) PublishDispatch(ctx context.Context, campaignID int64) error {
	return q.publish(DispatchJob{CampaignID: campaignID}, 0)
}

func (q *AMQPQueue) publish(job DispatchJob, retryCount int) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"", // default exchange
		DispatchQueue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Headers:      amqp.Table{"x-retry-count": int32(retryCount)},
		},
	)
}

// Consume delivers jobs to handler one at a time. A handler error requeues
// the job with an incremented retry header, up to maxRetries attempts;
// beyond that the job is dropped with an error log. Blocks until the
// channel closes or ctx is canceled.
func (q *AMQPQueue) Consume(ctx context.Context, handler func(context.Context, DispatchJob) error, maxRetries int) error {
	if err := q.ch.Qos(1, 0, false); err != nil {
		return err
	}

	deliveries, err := q.ch.Consume(
		DispatchQueue,
		"",    // consumer tag
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			q.handleDelivery(ctx, d, handler, maxRetries)
		}
	}
}

func (q *AMQPQueue) handleDelivery(ctx context.Context, d amqp.Delivery, handler func(context.Context, DispatchJob) error, maxRetries int) {
	var job DispatchJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		q.log.Error().Err(err).Msg("dropping malformed dispatch job")
		_ = d.Ack(false)
		return
	}

	err := handler(ctx, job)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	retries := headerRetryCount(d.Headers)
	if retries+1 < maxRetries {
		// Republish with an incremented counter instead of Nack so the
		// attempt count survives the round trip.
		if pubErr := q.publish(job, retries+1); pubErr != nil {
			q.log.Error().Err(pubErr).
				Int64("campaign_id", job.CampaignID).
				Msg("failed to requeue dispatch job")
			_ = d.Nack(false, true)
			return
		}
		q.log.Warn().Err(err).
			Int64("campaign_id", job.CampaignID).
			Int("attempt", retries+1).
			Int("max_attempts", maxRetries).
			Msg("dispatch run failed, requeued")
		_ = d.Ack(false)
		return
	}

	q.log.Error().Err(err).
		Int64("campaign_id", job.CampaignID).
		Int("attempts", retries+1).
		Msg("dispatch job failed permanently")
	_ = d.Ack(false)
}

func headerRetryCount(headers amqp.Table) int {
	v, ok := headers["x-retry-count"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	}
	return 0
}
