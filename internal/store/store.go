// ABOUTME: Event journal types and interfaces for coven-wrapper persistence
// ABOUTME: Defines Event, EventKind and the Journal interface consumed by other packages

package store

import (
	"context"
	"time"
)

// EventKind categorizes a journal entry.
type EventKind string

const (
	EventGatewayStarted     EventKind = "gateway_started"
	EventGatewayExited      EventKind = "gateway_exited"
	EventGatewayStartFailed EventKind = "gateway_start_failed"
	EventGatewayRestarted   EventKind = "gateway_restarted"
	EventTokenDrift         EventKind = "token_drift"
	EventOnboardRun         EventKind = "onboard_run"
	EventConfigReset        EventKind = "config_reset"
	EventConfigReplaced     EventKind = "config_replaced"
	EventPairingApproved    EventKind = "pairing_approved"
)

// Event is a single journal entry.
type Event struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Journal records events. Implementations must not fail the caller.
type Journal interface {
	Record(ctx context.Context, kind EventKind, detail map[string]any)
}

// Discard is a Journal that drops every event.
var Discard Journal = discard{}

type discard struct{}

func (discard) Record(context.Context, EventKind, map[string]any) {}
