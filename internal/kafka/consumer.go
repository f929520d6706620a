package kafka

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler returns nil only when the message is done and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

const (
	HeaderDeadTopic     = "x-dead-topic"
	HeaderDeadPartition = "x-dead-partition"
	HeaderDeadOffset    = "x-dead-offset"
	HeaderDeadError     = "x-dead-error"
)

// Consumer processes each partition in order on a fixed worker. A failed
// message is retried with backoff and blocks its partition until it succeeds,
// is handed to the dead-letter writer, or ctx ends.
type Consumer struct {
	r       reader
	workers int

	backoff    time.Duration
	maxBackoff time.Duration

	deadLetter  MessageWriter
	maxAttempts int
}

func NewConsumer(brokers []string, group string, topics []string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     group,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newConsumer(r, workers)
}

func newConsumer(r reader, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, backoff: 200 * time.Millisecond, maxBackoff: 10 * time.Second}
}

// NewDeadLetterWriter returns a synchronous writer for the dead-letter topic.
func NewDeadLetterWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// WithDeadLetter moves a message to w after maxAttempts failed deliveries so
// its partition can advance. Without it, failures are retried indefinitely.
func (c *Consumer) WithDeadLetter(w MessageWriter, maxAttempts int) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	c.deadLetter, c.maxAttempts = w, maxAttempts
	return c
}

// Start fetches until ctx is cancelled. Offsets are committed per message,
// in partition order, only once h succeeded or the message was dead-lettered.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 4)
		wg.Add(1)
		go func(lane <-chan kafka.Message) {
			defer wg.Done()
			for m := range lane {
				if ctx.Err() != nil || !c.process(ctx, h, m) {
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					log.Printf("commit topic=%s partition=%d offset=%d: %v", m.Topic, m.Partition, m.Offset, err)
				}
			}
		}(lanes[i])
	}
	defer wg.Wait()
	defer func() {
		for _, l := range lanes {
			close(l)
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case lanes[c.laneOf(m)] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) laneOf(m kafka.Message) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(m.Topic))
	return int((h.Sum32() + uint32(m.Partition)) % uint32(c.workers))
}

// process reports whether m may be committed.
func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) bool {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		log.Printf("consumer topic=%s partition=%d offset=%d attempt=%d: %v", m.Topic, m.Partition, m.Offset, attempt, err)

		if c.deadLetter != nil && attempt >= c.maxAttempts {
			dlErr := c.deadLetter.WriteMessages(ctx, deadLetterMessage(m, err))
			if dlErr == nil {
				log.Printf("dead-lettered topic=%s partition=%d offset=%d", m.Topic, m.Partition, m.Offset)
				return true
			}
			log.Printf("dead-letter write topic=%s offset=%d: %v", m.Topic, m.Offset, dlErr)
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return false
		}
		if wait *= 2; wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
}

func deadLetterMessage(m kafka.Message, cause error) kafka.Message {
	headers := append([]kafka.Header(nil), m.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderDeadTopic, Value: []byte(m.Topic)},
		kafka.Header{Key: HeaderDeadPartition, Value: []byte(strconv.Itoa(m.Partition))},
		kafka.Header{Key: HeaderDeadOffset, Value: []byte(strconv.FormatInt(m.Offset, 10))},
		kafka.Header{Key: HeaderDeadError, Value: []byte(cause.Error())},
	)
	return kafka.Message{Key: m.Key, Value: m.Value, Headers: headers, Time: time.Now()}
}
