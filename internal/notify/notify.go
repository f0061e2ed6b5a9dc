package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"marketplace/internal/logger"
)

// QueueName is the list the email worker consumes.
const QueueName = "vendor_notifications"

const sendTimeout = 2 * time.Second

// Event names carried on queued notifications.
const (
	EventPayoutRequested  = "payout.requested"
	EventPayoutApproved   = "payout.approved"
	EventPayoutProcessing = "payout.processing"
	EventPayoutCompleted  = "payout.completed"
	EventPayoutFailed     = "payout.failed"
	EventPayoutCancelled  = "payout.cancelled"
	EventWalletFrozen     = "wallet.frozen"
	EventWalletUnfrozen   = "wallet.unfrozen"
	EventVendorExited     = "vendor.exited"
)

type Message struct {
	Event     string    `json:"event"`
	ShopID    string    `json:"shop_id"`
	To        string    `json:"to,omitempty"`
	PayoutID  string    `json:"payout_id,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Tries     int       `json:"tries"`
	CreatedAt time.Time `json:"created_at"`
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

type enqueuer interface {
	Enqueue(ctx context.Context, queue string, payload []byte) error
}

// QueueNotifier pushes messages onto a Redis list for the email worker.
type QueueNotifier struct {
	queue enqueuer
	now   func() time.Time
}

func NewQueueNotifier(queue enqueuer) *QueueNotifier {
	return &QueueNotifier{queue: queue, now: time.Now}
}

func (n *QueueNotifier) Notify(ctx context.Context, msg Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = n.now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.queue.Enqueue(ctx, QueueName, data); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }

// queueSize bounds the messages waiting for the background sender.
const queueSize = 256

var (
	errQueueFull = errors.New("notification queue full")
	errClosed    = errors.New("notifier closed")
)

type delivery struct {
	ctx context.Context
	msg Message
}

// BestEffort wraps a Notifier so that sends happen off the request path and
// failures are logged and dropped. A single sender goroutine keeps messages
// in the order they were queued. Each send is bounded by sendTimeout and
// detached from the caller's cancellation.
type BestEffort struct {
	next Notifier
	logg *logger.Logger

	mu      sync.RWMutex
	closed  bool
	pending chan delivery
	done    chan struct{}
}

func NewBestEffort(next Notifier, logg *logger.Logger) *BestEffort {
	if next == nil {
		next = Nop{}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	b := &BestEffort{
		next:    next,
		logg:    logg,
		pending: make(chan delivery, queueSize),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

// Notify queues msg and returns at once. It never reports an error.
func (b *BestEffort) Notify(ctx context.Context, msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.drop(ctx, msg, errClosed)
		return nil
	}
	select {
	case b.pending <- delivery{ctx: context.WithoutCancel(ctx), msg: msg}:
	default:
		b.drop(ctx, msg, errQueueFull)
	}
	return nil
}

// Close stops accepting messages and waits until the queued ones are sent.
func (b *BestEffort) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.pending)
	}
	b.mu.Unlock()
	<-b.done
}

func (b *BestEffort) run() {
	defer close(b.done)
	for d := range b.pending {
		sendCtx, cancel := context.WithTimeout(d.ctx, sendTimeout)
		err := b.next.Notify(sendCtx, d.msg)
		cancel()
		if err != nil {
			b.drop(d.ctx, d.msg, err)
		}
	}
}

func (b *BestEffort) drop(ctx context.Context, msg Message, err error) {
	logCtx := b.logg.WithFields(ctx, map[string]any{
		"event":     msg.Event,
		"shop_id":   msg.ShopID,
		"payout_id": msg.PayoutID,
		"error":     err.Error(),
	})
	b.logg.Warn(logCtx, "vendor notification dropped")
}
