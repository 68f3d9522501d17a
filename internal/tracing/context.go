package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	TraceIDKey    ContextKey = "trace_id"
	EventIDKey    ContextKey = "event_id"
	SessionKeyKey ContextKey = "session_key"
	ChannelIDKey  ContextKey = "channel_id"
)

// TraceContext holds tracing information carried through one inbound event.
type TraceContext struct {
	TraceID    string
	EventID    string
	SessionKey string
	ChannelID  string
}

func NewTraceID() string {
	return uuid.New().String()
}

func NewEventID() string {
	return uuid.New().String()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, EventIDKey, eventID)
}

func WithSessionKey(ctx context.Context, sessionKey string) context.Context {
	return context.WithValue(ctx, SessionKeyKey, sessionKey)
}

func WithChannelID(ctx context.Context, channelID string) context.Context {
	return context.WithValue(ctx, ChannelIDKey, channelID)
}

func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

func GetEventID(ctx context.Context) string {
	return stringValue(ctx, EventIDKey)
}

func GetSessionKey(ctx context.Context) string {
	return stringValue(ctx, SessionKeyKey)
}

func GetChannelID(ctx context.Context) string {
	return stringValue(ctx, ChannelIDKey)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// FromContext extracts all tracing values from ctx.
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:    GetTraceID(ctx),
		EventID:    GetEventID(ctx),
		SessionKey: GetSessionKey(ctx),
		ChannelID:  GetChannelID(ctx),
	}
}

// NewContext stores the non-empty fields of tc in ctx.
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.EventID != "" {
		ctx = WithEventID(ctx, tc.EventID)
	}
	if tc.SessionKey != "" {
		ctx = WithSessionKey(ctx, tc.SessionKey)
	}
	if tc.ChannelID != "" {
		ctx = WithChannelID(ctx, tc.ChannelID)
	}
	return ctx
}

// NewEventContext prepares ctx for handling one inbound event. An existing
// trace id is kept; the event id is always fresh.
func NewEventContext(ctx context.Context, sessionKey, channelID string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	ctx = WithEventID(ctx, NewEventID())
	return NewContext(ctx, &TraceContext{SessionKey: sessionKey, ChannelID: channelID})
}
