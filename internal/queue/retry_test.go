package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/graph"

	"github.com/rabbitmq/amqp091-go"
)

type fakeAck struct {
	acked   int
	nacked  int
	requeue bool
}

func (f *fakeAck) Ack(tag uint64, multiple bool) error {
	f.acked++
	return nil
}

func (f *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked++
	f.requeue = requeue
	return nil
}

func (f *fakeAck) Reject(tag uint64, requeue bool) error {
	return nil
}

func delivery(ack *fakeAck, retries any) amqp091.Delivery {
	headers := amqp091.Table{"trace": "abc"}
	if retries != nil {
		headers[retriesHeader] = retries
	}
	return amqp091.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Headers:      headers,
		Body:         []byte(`{"graph_id":"g1"}`),
	}
}

func TestHandleProcessingError(t *testing.T) {
	transient := errors.New("store timeout")

	tests := []struct {
		name        string
		retries     any
		err         error
		wantQueue   string
		wantRetries any
		wantBody    string
	}{
		{
			name:        "first failure goes to retry",
			err:         transient,
			wantQueue:   "merge_queue_retry",
			wantRetries: int32(1),
			wantBody:    `{"graph_id":"g1"}`,
		},
		{
			name:        "counter increments",
			retries:     int32(4),
			err:         transient,
			wantQueue:   "merge_queue_retry",
			wantRetries: int32(5),
			wantBody:    `{"graph_id":"g1"}`,
		},
		{
			name:        "int64 header",
			retries:     int64(2),
			err:         transient,
			wantQueue:   "merge_queue_retry",
			wantRetries: int32(3),
			wantBody:    `{"graph_id":"g1"}`,
		},
		{
			name:        "exhausted retries go to dlq",
			retries:     int32(MaxRetries),
			err:         transient,
			wantQueue:   "merge_queue_dlq",
			wantRetries: int32(MaxRetries),
			wantBody:    `{"graph_id":"g1"}`,
		},
		{
			name:      "permanent errors skip retries",
			err:       fmt.Errorf("apply: %w", graph.ErrMalformedPartialGraph),
			wantQueue: "merge_queue_dlq",
			wantBody:  `{"graph_id":"g1"}`,
		},
		{
			name:        "resume replaces the body",
			err:         &ResumeError{Body: []byte(`{"graph_id":"g1","segments":["b"]}`), Err: transient},
			wantQueue:   "merge_queue_retry",
			wantRetries: int32(1),
			wantBody:    `{"graph_id":"g1","segments":["b"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAck{}
			pub := &fakePublisher{}
			msg := delivery(ack, tt.retries)

			HandleProcessingError(pub, msg, MergeQueue, tt.err)

			if len(pub.sent) != 1 {
				t.Fatalf("published %d messages, want 1", len(pub.sent))
			}
			sent := pub.sent[0]
			if sent.exchange != "" || sent.key != tt.wantQueue {
				t.Fatalf("published to %q/%q, want %q", sent.exchange, sent.key, tt.wantQueue)
			}
			if got := sent.msg.Headers[retriesHeader]; got != tt.wantRetries {
				t.Fatalf("retries header = %#v, want %#v", got, tt.wantRetries)
			}
			if string(sent.msg.Body) != tt.wantBody {
				t.Fatalf("body = %s, want %s", sent.msg.Body, tt.wantBody)
			}
			if sent.msg.Headers["trace"] != "abc" {
				t.Fatal("original headers must be kept")
			}
			if ack.acked != 1 || ack.nacked != 0 {
				t.Fatalf("acked = %d nacked = %d", ack.acked, ack.nacked)
			}
		})
	}
}

func TestHandleProcessingErrorRequeuesWhenPublishFails(t *testing.T) {
	ack := &fakeAck{}
	pub := &fakePublisher{err: errors.New("channel closed")}

	HandleProcessingError(pub, delivery(ack, nil), MergeQueue, errors.New("boom"))

	if ack.acked != 0 || ack.nacked != 1 || !ack.requeue {
		t.Fatalf("acked = %d nacked = %d requeue = %v", ack.acked, ack.nacked, ack.requeue)
	}
}

func TestRetryCountIgnoresForeignTypes(t *testing.T) {
	if n := retryCount(amqp091.Table{retriesHeader: "3"}); n != 0 {
		t.Fatalf("retryCount = %d, want 0", n)
	}
	if n := retryCount(nil); n != 0 {
		t.Fatalf("retryCount(nil) = %d, want 0", n)
	}
}
