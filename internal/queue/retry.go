package queue

import (
	"errors"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/expand"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// MaxRetries is the number of retries before a message is dead-lettered.
const MaxRetries = 10

const retriesHeader = "x-retries"

// Permanent reports whether err can never succeed on retry.
func Permanent(err error) bool {
	return errors.Is(err, ErrInvalidMessage) ||
		errors.Is(err, graph.ErrMalformedPartialGraph) ||
		errors.Is(err, graph.ErrUnknownAnchor) ||
		errors.Is(err, expand.ErrNoQuery)
}

// HandleProcessingError routes a failed message to queueName's retry queue
// or, after MaxRetries or for permanent errors, to its dead-letter queue.
// The message is acked once republished and requeued if that fails.
func HandleProcessingError(ch Publisher, msg amqp091.Delivery, queueName string, procErr error) {
	retries := retryCount(msg.Headers)

	body := msg.Body
	var resume *ResumeError
	if errors.As(procErr, &resume) && len(resume.Body) > 0 {
		body = resume.Body
	}

	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}

	target := queueName + "_retry"
	if retries >= MaxRetries || Permanent(procErr) {
		target = queueName + "_dlq"
		if procErr != nil {
			headers["x-error"] = procErr.Error()
		}
		logger.Info("[Queue] Sending message to DLQ", "dlq", target, "retries", retries)
	} else {
		headers[retriesHeader] = int32(retries + 1)
	}

	pubErr := ch.Publish(
		"",
		target,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Body:         body,
			Headers:      headers,
		},
	)
	if pubErr != nil {
		logger.Error("[Queue] Failed to republish message", "queue", target, "err", pubErr)
		_ = msg.Nack(false, true)
		return
	}
	if err := msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
}

func retryCount(h amqp091.Table) int {
	switch v := h[retriesHeader].(type) {
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
