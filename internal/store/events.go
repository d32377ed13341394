package store

import (
	"encoding/json"
	"sync"

	"github.com/eldtechnologies/sendmessage/internal/metrics"
)

const (
	opSet    = "set"
	opDelete = "delete"
)

// propertyEvent is the wire form of a change notification for backends that
// fan events out through the server (Redis pub/sub, PostgreSQL NOTIFY).
type propertyEvent struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// listeners fans property events out to registered PropertyListeners.
type listeners struct {
	mu   sync.RWMutex
	list []PropertyListener
}

// AddListener registers l. Registering the same listener twice is a no-op.
func (d *listeners) AddListener(l PropertyListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.list {
		if existing == l {
			return
		}
	}
	d.list = append(d.list, l)
}

// RemoveListener unregisters l.
func (d *listeners) RemoveListener(l PropertyListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.list {
		if existing == l {
			d.list = append(d.list[:i:i], d.list[i+1:]...)
			return
		}
	}
}

func (d *listeners) snapshot() []PropertyListener {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]PropertyListener(nil), d.list...)
}

func (d *listeners) fireSet(key, value string) {
	metrics.PropertyEvents.WithLabelValues(opSet).Inc()
	for _, l := range d.snapshot() {
		l.PropertySet(key, value)
	}
}

func (d *listeners) fireDeleted(key string) {
	metrics.PropertyEvents.WithLabelValues(opDelete).Inc()
	for _, l := range d.snapshot() {
		l.PropertyDeleted(key)
	}
}

// fire delivers ev. Events with an unknown op or no key are dropped.
func (d *listeners) fire(ev propertyEvent) bool {
	if ev.Key == "" {
		return false
	}
	switch ev.Op {
	case opSet:
		d.fireSet(ev.Key, ev.Value)
	case opDelete:
		d.fireDeleted(ev.Key)
	default:
		return false
	}
	return true
}

// firePayload decodes a wire event and delivers it. It reports whether the
// payload was a valid event.
func (d *listeners) firePayload(payload string) bool {
	var ev propertyEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return false
	}
	return d.fire(ev)
}
