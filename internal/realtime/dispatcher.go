package realtime

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Event is an order notification. It is never stored: the Dispatcher encodes
// it, enqueues it on the room's current members, and forgets it.
type Event struct {
	OrderID   string
	Kind      string
	Payload   any
	EmittedAt time.Time
}

// DeliveryReport summarises one Publish call.
type DeliveryReport struct {
	OrderID    string
	Recipients int // members the event was enqueued on
	Dropped    int // members that had to evict an older event to make room
	Skipped    int // members that closed between the snapshot and the enqueue
}

// DispatchStats are cumulative counters since start.
type DispatchStats struct {
	Published uint64
	Delivered uint64
	Dropped   uint64
}

// Dispatcher is the publish entry point for order services. Publish never
// blocks on a client: a slow member loses its oldest queued event instead.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	now      func() time.Time

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher creates a Dispatcher over registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// Publish stamps and sends an event of the given kind to the order's room.
func (d *Dispatcher) Publish(orderID, kind string, payload any) (DeliveryReport, error) {
	return d.PublishEvent(Event{
		OrderID:   orderID,
		Kind:      kind,
		Payload:   payload,
		EmittedAt: d.now(),
	})
}

// PublishEvent enqueues ev on every connection in its room at the moment of
// the call. An empty room is a silent no-op. Successive calls from the same
// goroutine reach each member in call order.
func (d *Dispatcher) PublishEvent(ev Event) (DeliveryReport, error) {
	report := DeliveryReport{OrderID: ev.OrderID}
	if ev.OrderID == "" {
		return report, ErrInvalidOrderID
	}
	if ev.EmittedAt.IsZero() {
		ev.EmittedAt = d.now()
	}

	data, err := encodeEvent(ev)
	if err != nil {
		return report, fmt.Errorf("publish %s to order %s: %w", ev.Kind, ev.OrderID, err)
	}
	d.published.Add(1)

	for _, c := range d.registry.Members(ev.OrderID) {
		evicted, ok := c.enqueue(data)
		if !ok {
			report.Skipped++
			continue
		}
		report.Recipients++
		if evicted {
			report.Dropped++
			c.logger.Warn("outbound queue full, dropped oldest event", slog.String("order_id", ev.OrderID))
		}
	}

	d.delivered.Add(uint64(report.Recipients))
	d.dropped.Add(uint64(report.Dropped))
	d.logger.Debug("event published",
		slog.String("order_id", ev.OrderID),
		slog.String("kind", ev.Kind),
		slog.Int("recipients", report.Recipients),
		slog.Int("dropped", report.Dropped),
	)
	return report, nil
}

// Stats returns the cumulative counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Published: d.published.Load(),
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
	}
}
