// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/ordercast/recgate/internal/logging"
)

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool `json:"enabled"`

	// RetentionDays is how long to keep audit events.
	RetentionDays int `json:"retention_days"`

	// BufferSize is the size of the async write buffer.
	BufferSize int `json:"buffer_size"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		RetentionDays: 90,
		BufferSize:    1000,
	}
}

// Logger is the audit logging service. Writes are asynchronous: Log
// never blocks the request path, and a full buffer drops the event
// rather than stalling the caller.
type Logger struct {
	config    *Config
	store     Store
	eventChan chan *Event
	mu        sync.RWMutex
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewLogger creates a new audit logger and starts its async writer.
func NewLogger(store Store, config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	l := &Logger{
		config:    config,
		store:     store,
		eventChan: make(chan *Event, config.BufferSize),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

// asyncWriter processes events from the buffer.
func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			// Drain remaining events
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

// writeEvent persists an event to the store.
func (l *Logger) writeEvent(event *Event) {
	if l.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.Save(ctx, event); err != nil {
		logging.Error().Err(err).Str("event_id", event.ID).Msg("Failed to save audit event")
	}
}

// Log records an audit event.
func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	enabled := l.config.Enabled
	l.mu.RUnlock()

	if !enabled {
		return
	}

	if event.ID == "" {
		event.ID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case l.eventChan <- event:
	default:
		logging.Warn().Str("event_id", event.ID).Msg("Audit event buffer full, dropping event")
	}
}

// Close shuts down the logger after draining buffered events.
func (l *Logger) Close() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
	return nil
}

// RetentionPass deletes events older than the configured retention and
// returns the number removed. The supervisor runs this on a schedule.
func (l *Logger) RetentionPass(ctx context.Context) (int64, error) {
	l.mu.RLock()
	retention := l.config.RetentionDays
	l.mu.RUnlock()

	cutoff := time.Now().AddDate(0, 0, -retention)
	count, err := l.store.Delete(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logging.Info().Int64("count", count).Time("older_than", cutoff).Msg("Cleaned up old audit events")
	}
	return count, nil
}

// Query retrieves events matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of events matching the filter.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// Stats summarizes the store contents, or returns nil if the store
// cannot report statistics.
func (l *Logger) Stats(ctx context.Context) (*Stats, error) {
	if sp, ok := l.store.(StatsProvider); ok {
		return sp.GetStats(ctx)
	}
	return nil, nil
}

// SetEnabled enables or disables audit logging.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Enabled = enabled
}

// Enabled returns whether audit logging is enabled.
func (l *Logger) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Enabled
}

// generateEventID generates a unique event ID.
func generateEventID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}

// Helper methods for common audit events

// LogOrderSubmitted records an accepted order submission and the pool
// rewrite it triggered.
func (l *Logger) LogOrderSubmitted(ctx context.Context, actor Actor, source Source, orderID, userID string, itemCount int) {
	l.Log(&Event{
		Type:     EventTypeOrderSubmitted,
		Severity: SeverityInfo,
		Outcome:  OutcomeSuccess,
		Actor:    actor,
		Source:   source,
		Target: &Target{
			ID:   orderID,
			Type: "order",
		},
		Action:      "submit_order",
		Description: "Order recorded and owner pools rewritten",
		Metadata: mustJSON(map[string]interface{}{
			"user_id":    userID,
			"item_count": itemCount,
		}),
		RequestID: getRequestID(ctx),
	})
}

// LogOrderInvalidated records a completed order invalidation cascade.
func (l *Logger) LogOrderInvalidated(ctx context.Context, actor Actor, source Source, orderID, userID string, affected int) {
	l.Log(&Event{
		Type:     EventTypeOrderInvalidated,
		Severity: SeverityInfo,
		Outcome:  OutcomeSuccess,
		Actor:    actor,
		Source:   source,
		Target: &Target{
			ID:   orderID,
			Type: "order",
		},
		Action:      "invalidate_order",
		Description: "Order deleted and owner pools invalidated",
		Metadata: mustJSON(map[string]interface{}{
			"user_id":        userID,
			"affected_users": affected,
		}),
		RequestID: getRequestID(ctx),
	})
}

// LogUserInvalidated records a direct user pool invalidation.
func (l *Logger) LogUserInvalidated(ctx context.Context, actor Actor, source Source, userID string) {
	l.Log(&Event{
		Type:     EventTypeUserInvalidated,
		Severity: SeverityInfo,
		Outcome:  OutcomeSuccess,
		Actor:    actor,
		Source:   source,
		Target: &Target{
			ID:   userID,
			Type: "user",
		},
		Action:      "invalidate_user",
		Description: "Recommendation pools dropped for user",
		RequestID:   getRequestID(ctx),
	})
}

// LogOpsLogin records an ops API login attempt.
func (l *Logger) LogOpsLogin(ctx context.Context, username string, source Source, success bool, reason string) {
	event := &Event{
		Type:     EventTypeOpsLogin,
		Severity: SeverityInfo,
		Outcome:  OutcomeSuccess,
		Actor: Actor{
			ID:         username,
			Type:       "operator",
			AuthMethod: "jwt",
		},
		Source:      source,
		Action:      "login",
		Description: "Operator logged in",
		RequestID:   getRequestID(ctx),
	}
	if !success {
		event.Type = EventTypeOpsLoginFailed
		event.Severity = SeverityWarning
		event.Outcome = OutcomeFailure
		event.Description = "Operator login failed: " + reason
		event.Metadata = mustJSON(map[string]string{"reason": reason})
	}
	l.Log(event)
}

// LogAuthzDenied records an authorization denial on the ops API.
func (l *Logger) LogAuthzDenied(ctx context.Context, actor Actor, source Source, resource, action string) {
	l.Log(&Event{
		Type:     EventTypeAuthzDenied,
		Severity: SeverityWarning,
		Outcome:  OutcomeFailure,
		Actor:    actor,
		Source:   source,
		Target: &Target{
			ID:   resource,
			Type: "resource",
		},
		Action:      "authorize",
		Description: "Authorization denied for " + action + " on " + resource,
		Metadata: mustJSON(map[string]string{
			"resource":         resource,
			"requested_action": action,
		}),
		RequestID: getRequestID(ctx),
	})
}

// mustJSON converts a value to JSON, returning empty object on error.
func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// getRequestID extracts the request ID from context.
func getRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return logging.RequestIDFromContext(ctx)
}

// SourceFromRequest creates a Source from an HTTP request.
func SourceFromRequest(r *http.Request) Source {
	ip := r.RemoteAddr
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip = xff
	} else if xri := r.Header.Get("X-Real-IP"); xri != "" {
		ip = xri
	}

	return Source{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
		Hostname:  r.Host,
	}
}

// CallerActor creates an Actor for an authenticated backend caller.
func CallerActor(callerID string) Actor {
	return Actor{
		ID:         callerID,
		Type:       "caller",
		AuthMethod: "envelope",
	}
}

// OperatorActor builds the actor for a logged-in operator.
func OperatorActor(username string) Actor {
	return Actor{
		ID:         username,
		Type:       "operator",
		AuthMethod: "jwt",
	}
}

// SystemActor returns an Actor representing the service itself.
func SystemActor() Actor {
	return Actor{
		ID:   "system",
		Type: "system",
	}
}
