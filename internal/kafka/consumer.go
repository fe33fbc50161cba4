package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler must return nil only when the message is fully processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	handlerAttempts = 3
	commitTimeout   = 5 * time.Second
)

type Consumer struct {
	r       MessageReader
	workers int
	backoff time.Duration
	log     *slog.Logger

	commitMu  sync.Mutex
	committed map[int]int64 // partition -> last committed offset
}

func NewConsumer(brokers []string, group, topic string, workers int, log *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if log == nil {
		log = slog.Default()
	}
	return newConsumer(r, workers, log.With("topic", topic, "group", group))
}

func newConsumer(r MessageReader, workers int, log *slog.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		r:         r,
		workers:   workers,
		backoff:   200 * time.Millisecond,
		log:       log,
		committed: map[int]int64{},
	}
}

// ErrGaveUp is returned by Start when a handler kept failing on a message.
// Nothing at or after that message's offset is committed for its partition,
// so a new consumer in the same group picks up from there.
var ErrGaveUp = errors.New("kafka: handler gave up on message")

// Start fetches until ctx ends or the reader fails. Messages with the same key
// always go to the same worker, so events of one order are handled in order.
// Offsets are committed per partition only up to the last message with every
// earlier message handled too.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	runCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)
	trk := newOffsetTracker()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 64)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if runCtx.Err() != nil {
					continue // left uncommitted, redelivered later
				}
				if err := c.handle(runCtx, h, m); err != nil {
					if errors.Is(err, ErrGaveUp) {
						abort(err)
					}
					continue
				}
				c.commit(runCtx, trk, m)
			}
		}(lanes[i])
	}
	stop := func() error {
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
		if err := context.Cause(runCtx); errors.Is(err, ErrGaveUp) {
			return err
		}
		return nil
	}

	for {
		m, err := c.r.FetchMessage(runCtx)
		if err != nil {
			if runCtx.Err() != nil || errors.Is(err, context.Canceled) {
				return stop()
			}
			_ = stop()
			return err
		}
		trk.track(m)
		select {
		case lanes[c.lane(m)] <- m:
		case <-runCtx.Done():
			return stop()
		}
	}
}

func (c *Consumer) lane(m kafka.Message) int {
	if len(m.Key) == 0 {
		return m.Partition % c.workers
	}
	h := fnv.New32a()
	_, _ = h.Write(m.Key)
	return int(h.Sum32() % uint32(c.workers))
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) error {
	var err error
	for attempt := 1; attempt <= handlerAttempts; attempt++ {
		if err = h(ctx, m); err == nil {
			return nil
		}
		c.log.Warn("handler failed", "offset", m.Offset, "partition", m.Partition, "attempt", attempt, "error", err)
		if attempt == handlerAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	c.log.Error("giving up on message, stopping partition", "offset", m.Offset, "partition", m.Partition, "error", err)
	return fmt.Errorf("%w: partition %d offset %d: %v", ErrGaveUp, m.Partition, m.Offset, err)
}

// commit acks m and commits its partition as far as the handled prefix reaches.
func (c *Consumer) commit(ctx context.Context, trk *offsetTracker, m kafka.Message) {
	upto, ok := trk.ack(m)
	if !ok {
		return
	}
	c.commitMu.Lock()
	defer c.commitMu.Unlock()
	if last, seen := c.committed[upto.Partition]; seen && last >= upto.Offset {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := c.r.CommitMessages(cctx, upto); err != nil {
		c.log.Error("commit failed", "offset", upto.Offset, "partition", upto.Partition, "error", err)
		return
	}
	c.committed[upto.Partition] = upto.Offset
}

// offsetTracker remembers fetched offsets per partition in fetch order.
type offsetTracker struct {
	mu    sync.Mutex
	parts map[int]*partitionOffsets
}

type partitionOffsets struct {
	inflight []kafka.Message
	done     map[int64]bool
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{parts: map[int]*partitionOffsets{}}
}

func (t *offsetTracker) track(m kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.parts[m.Partition]
	if p == nil {
		p = &partitionOffsets{done: map[int64]bool{}}
		t.parts[m.Partition] = p
	}
	p.inflight = append(p.inflight, m)
}

// ack marks m handled and returns the newest message whose predecessors on the
// partition are all handled, if that moved forward.
func (t *offsetTracker) ack(m kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.parts[m.Partition]
	if p == nil {
		return kafka.Message{}, false
	}
	p.done[m.Offset] = true
	var upto kafka.Message
	moved := false
	for len(p.inflight) > 0 && p.done[p.inflight[0].Offset] {
		upto = p.inflight[0]
		delete(p.done, upto.Offset)
		p.inflight = p.inflight[1:]
		moved = true
	}
	return upto, moved
}
