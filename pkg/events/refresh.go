// Package events listens for snapshot-refresh notices and recalculates the
// calendars of the affected location.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"cropcal/entities"
	"cropcal/pkg/metrics"
)

// Refresh is the message body. Snapshot is optional; when present it is
// stored as the location's fallback before recalculating.
type Refresh struct {
	LocationHash string                          `json:"location_hash"`
	AsOf         string                          `json:"as_of,omitempty"`
	Snapshot     *entities.EnvironmentalSnapshot `json:"snapshot,omitempty"`
}

type snapshotStore interface {
	Store(s *entities.EnvironmentalSnapshot) error
}

type locationRefresher interface {
	RefreshLocation(ctx context.Context, locationHash string, asOf time.Time) (int, error)
}

type Handler struct {
	store   snapshotStore
	refresh locationRefresher
	timeout time.Duration
	logger  *slog.Logger
}

// NewHandler builds the message handler. store may be nil.
func NewHandler(store snapshotStore, refresh locationRefresher, timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Handler{store: store, refresh: refresh, timeout: timeout, logger: logger}
}

// Handle processes one message body and returns how many calendars were
// recalculated.
func (h *Handler) Handle(ctx context.Context, data []byte) (int, error) {
	var msg Refresh
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.RefreshEvents.WithLabelValues("bad_payload").Inc()
		return 0, fmt.Errorf("decode refresh: %w", err)
	}
	if msg.LocationHash == "" && msg.Snapshot != nil {
		msg.LocationHash = msg.Snapshot.LocationHash
	}
	if msg.LocationHash == "" {
		metrics.RefreshEvents.WithLabelValues("bad_payload").Inc()
		return 0, errors.New("refresh without location_hash")
	}
	var asOf time.Time
	if msg.AsOf != "" {
		t, err := time.Parse(entities.DateLayout, msg.AsOf)
		if err != nil {
			metrics.RefreshEvents.WithLabelValues("bad_payload").Inc()
			return 0, fmt.Errorf("refresh as_of %q: %w", msg.AsOf, err)
		}
		asOf = t
	}

	if msg.Snapshot != nil && h.store != nil {
		msg.Snapshot.LocationHash = msg.LocationHash
		if err := h.store.Store(msg.Snapshot); err != nil {
			h.logger.Warn("[events] snapshot not stored", "location", msg.LocationHash, "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	n, err := h.refresh.RefreshLocation(ctx, msg.LocationHash, asOf)
	if err != nil {
		metrics.RefreshEvents.WithLabelValues("error").Inc()
		return n, err
	}
	metrics.RefreshEvents.WithLabelValues("ok").Inc()
	return n, nil
}

// Subscriber binds a Handler to a NATS subject.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	handler *Handler
	logger  *slog.Logger
}

// Subscribe connects to url and starts consuming subject. Messages are
// handled one at a time in the subscription goroutine.
func Subscribe(url, subject string, h *Handler, logger *slog.Logger) (*Subscriber, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("cropcal"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("[events] disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("[events] reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	s := &Subscriber{nc: nc, handler: h, logger: logger}
	sub, err := nc.Subscribe(subject, s.onMessage)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	s.sub = sub
	logger.Info("[events] subscribed", "subject", subject)
	return s, nil
}

func (s *Subscriber) onMessage(m *nats.Msg) {
	n, err := s.handler.Handle(context.Background(), m.Data)
	if err != nil {
		s.logger.Error("[events] refresh failed", "subject", m.Subject, "error", err)
		return
	}
	s.logger.Info("[events] refresh handled", "subject", m.Subject, "calendars", n)
}

// Close drains pending messages and closes the connection.
func (s *Subscriber) Close() error {
	if s == nil || s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}
