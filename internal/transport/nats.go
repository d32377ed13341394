package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/eldtechnologies/sendmessage/internal/metrics"
	"github.com/eldtechnologies/sendmessage/internal/models"
)

const (
	// PresenceBucket is the JetStream key/value bucket holding component
	// registrations.
	PresenceBucket = "sendmessage_presence"

	headerFrom      = "From"
	headerTo        = "To"
	headerMessageID = "Message-Id"
)

// NATSTransport publishes messages on a NATS subject. Registration writes the
// service address into a JetStream key/value bucket that presence consumers
// watch.
type NATSTransport struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
	address string

	mu sync.Mutex
	kv jetstream.KeyValue
}

// ConnectNATS opens a connection that keeps reconnecting in the background.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

// NewNATSTransport creates a transport publishing to subject.
func NewNATSTransport(nc *nats.Conn, subject, address string) (*NATSTransport, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return &NATSTransport{nc: nc, js: js, subject: subject, address: address}, nil
}

// Name returns "nats".
func (t *NATSTransport) Name() string { return "nats" }

// Address returns the service address the transport registers under.
func (t *NATSTransport) Address() string { return t.address }

// Register publishes the service address to the presence bucket.
func (t *NATSTransport) Register(ctx context.Context) error {
	kv, err := t.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      PresenceBucket,
		Description: "Registered message relay components",
	})
	if err != nil {
		return fmt.Errorf("open presence bucket: %w", err)
	}

	data, err := json.Marshal(registration{Address: t.address, RegisteredAt: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	if _, err := kv.Put(ctx, t.address, data); err != nil {
		return fmt.Errorf("register %s: %w", t.address, err)
	}

	t.mu.Lock()
	t.kv = kv
	t.mu.Unlock()
	return nil
}

// Deregister removes the service address from the presence bucket.
func (t *NATSTransport) Deregister(ctx context.Context) error {
	t.mu.Lock()
	kv := t.kv
	t.kv = nil
	t.mu.Unlock()

	if kv == nil {
		return nil
	}
	if err := kv.Delete(ctx, t.address); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("deregister %s: %w", t.address, err)
	}
	return nil
}

func (t *NATSTransport) registered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kv != nil
}

// Dispatch publishes msg. Delivery to the recipient's sessions happens
// asynchronously on the subscriber side.
func (t *NATSTransport) Dispatch(ctx context.Context, msg *models.Message) error {
	if !t.registered() {
		return ErrNotRegistered
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	m := nats.NewMsg(t.subject)
	m.Header.Set(headerFrom, msg.From.String())
	m.Header.Set(headerTo, msg.To.String())
	m.Header.Set(headerMessageID, msg.ID)
	m.Data = data

	if err := t.nc.PublishMsg(m); err != nil {
		metrics.DispatchFailures.WithLabelValues(t.Name()).Inc()
		return fmt.Errorf("publish to %s: %w", t.subject, err)
	}
	metrics.MessagesDispatched.WithLabelValues(t.Name()).Inc()
	return nil
}

// Ping reports whether the connection is up.
func (t *NATSTransport) Ping(ctx context.Context) error {
	if !t.nc.IsConnected() {
		return fmt.Errorf("nats connection %s", t.nc.Status())
	}
	if !t.registered() {
		return ErrNotRegistered
	}
	return nil
}
