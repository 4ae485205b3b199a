package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/taskjournal/tasks"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "taskjournal"

// NATSBus publishes change events as JSON on <prefix>.tasks.<kind>.
type NATSBus struct {
	conn   *nats.Conn
	prefix string
	owned  bool
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*nats.Subscription]struct{}
	closed bool
}

// NATSOption configures a NATSBus.
type NATSOption func(*NATSBus)

// WithNATSLogger sets the logger used for undecodable messages.
func WithNATSLogger(logger *slog.Logger) NATSOption {
	return func(b *NATSBus) {
		b.logger = logger
	}
}

// NewNATSBus wraps an existing connection. The caller keeps ownership of conn.
func NewNATSBus(conn *nats.Conn, prefix string, opts ...NATSOption) *NATSBus {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	b := &NATSBus{
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: slog.Default(),
		subs:   make(map[*nats.Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ConnectNATS dials url and returns a bus that closes the connection on Close.
func ConnectNATS(url, prefix string, opts ...NATSOption) (*NATSBus, error) {
	conn, err := nats.Connect(url, nats.Name("taskjournal"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	b := NewNATSBus(conn, prefix, opts...)
	b.owned = true
	return b, nil
}

// Subject returns the subject events of kind are published on.
func (b *NATSBus) Subject(kind tasks.ChangeKind) string {
	return b.prefix + ".tasks." + string(kind)
}

// Publish implements Bus.
func (b *NATSBus) Publish(ctx context.Context, ev tasks.ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ev.Kind.Valid() {
		return fmt.Errorf("publish change: unknown kind %q", ev.Kind)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if err := b.conn.Publish(b.Subject(ev.Kind), data); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Subscribe implements Bus. Handlers run on the NATS client's delivery goroutine.
func (b *NATSBus) Subscribe(h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub, err := b.conn.Subscribe(b.prefix+".tasks.*", func(msg *nats.Msg) {
		var ev tasks.ChangeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.logger.Warn("Dropping undecodable change event", "subject", msg.Subject, "error", err)
			return
		}
		if !ev.Kind.Valid() {
			b.logger.Warn("Dropping change event with unknown kind", "subject", msg.Subject, "kind", ev.Kind)
			return
		}
		h(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}
	b.subs[sub] = struct{}{}

	var once sync.Once
	return cancelFunc(func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			_ = sub.Unsubscribe()
		})
	}), nil
}

// Flush round-trips to the server so that every prior publish has been
// processed by it.
func (b *NATSBus) Flush() error {
	return b.conn.Flush()
}

// Close unsubscribes all handlers and, for buses created by ConnectNATS,
// drains the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*nats.Subscription]struct{})
	b.mu.Unlock()

	for sub := range subs {
		_ = sub.Unsubscribe()
	}
	if b.owned {
		return b.conn.Drain()
	}
	return nil
}
