// Package audit records who changed what. Recording is fire-and-forget: the
// entry travels over the event bus and is persisted by a subscriber.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/core/events"
	"github.com/go-chi/chi/middleware"
)

const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionDeactivate = "deactivate"
	ActionActivate   = "activate"
	ActionDelete     = "delete"
	ActionAssign     = "assign"
	ActionRemove     = "remove"
	ActionLogin      = "login"

	DefaultLimit = 50
	MaxLimit     = 200
)

type Entry struct {
	ID           int64           `json:"id"`
	ActorID      *int64          `json:"actor_id"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Details      json.RawMessage `json:"details,omitempty"`
	IPAddress    string          `json:"ip_address,omitempty"`
	RequestID    string          `json:"request_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Store interface {
	Insert(ctx context.Context, entry *Entry) error
	Latest(ctx context.Context, limit int) ([]Entry, error)
}

// Publisher is the part of the event bus the recorder needs.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
	Subscribe(eventType string, handler events.Handler)
}

type Recorder struct {
	bus    Publisher
	store  Store
	logger *slog.Logger
}

func NewRecorder(bus Publisher, store Store, logger *slog.Logger) *Recorder {
	return &Recorder{bus: bus, store: store, logger: logger}
}

// Subscribe wires the store to audit events. Call once at startup.
func (r *Recorder) Subscribe() {
	r.bus.Subscribe(events.EventTypeAuditRecorded, r.persist)
}

func (r *Recorder) persist(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.AuditRecordedEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}
	entry, ok := ev.Entry.(*Entry)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", ev.Entry)
	}
	if err := r.store.Insert(ctx, entry); err != nil {
		return fmt.Errorf("persist audit entry: %w", err)
	}
	return nil
}

// Record never fails the caller; problems are logged.
func (r *Recorder) Record(ctx context.Context, entry *Entry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.ActorID == nil {
		entry.ActorID = internal.ActorID(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = middleware.GetReqID(ctx)
	}
	if err := r.bus.Publish(ctx, events.NewAuditRecordedEvent(entry)); err != nil {
		r.logger.Error("failed to publish audit entry", "error", err, "action", entry.Action)
	}
}

// RecordRequest builds an entry from the request and records it. details is
// marshalled to JSON; nil means none.
func (r *Recorder) RecordRequest(req *http.Request, action, resourceType string, resourceID int64, details interface{}) {
	entry := &Entry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   strconv.FormatInt(resourceID, 10),
		IPAddress:    clientIP(req),
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			r.logger.Warn("failed to marshal audit details", "error", err, "action", action)
		} else {
			entry.Details = raw
		}
	}
	r.Record(req.Context(), entry)
}

func (r *Recorder) Latest(ctx context.Context, limit int) ([]Entry, error) {
	entries, err := r.store.Latest(ctx, ClampLimit(limit))
	if err != nil {
		r.logger.Error("failed to load audit entries", "error", err)
		return nil, internal.NewInternalError("failed to load audit entries", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
