package kafka

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher is the fire-and-forget side of a Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafka.Header)
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages in memory and writes them from a single goroutine.
// Publish never blocks: when the buffer is full or the producer is closed the
// message is dropped and logged.
type Producer struct {
	w            writer
	topic        string
	inbox        chan kafka.Message
	closeCh      chan struct{}
	once         sync.Once
	writeTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}, topic, buf)
}

func newProducer(w writer, topic string, buf int) *Producer {
	return &Producer{
		w:            w,
		topic:        topic,
		inbox:        make(chan kafka.Message, buf),
		closeCh:      make(chan struct{}),
		writeTimeout: 10 * time.Second,
	}
}

func (p *Producer) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
			if err := p.w.WriteMessages(ctx, m); err != nil {
				log.Printf("kafka publish topic=%s key=%s: %v", p.topic, m.Key, err)
			}
			cancel()
		}
		if err := p.w.Close(); err != nil {
			log.Printf("kafka writer close topic=%s: %v", p.topic, err)
		}
	}()
}

func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	m := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		log.Printf("kafka drop topic=%s key=%s: producer closed", p.topic, key)
		return
	}
	select {
	case p.inbox <- m:
	default:
		p.dropped.Add(1)
		log.Printf("kafka drop topic=%s key=%s: buffer full", p.topic, key)
	}
}

// Dropped reports how many messages Publish discarded.
func (p *Producer) Dropped() int64 { return p.dropped.Load() }

// Close stops accepting messages; the loop flushes what is buffered and exits.
func (p *Producer) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
	})
}

func (p *Producer) WaitClosed() { <-p.closeCh }
