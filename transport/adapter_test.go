package transport

import (
	"context"
	"errors"
	"testing"
)

// TestMessageFields checks that Message carries both kind and payload.
func TestMessageFields(t *testing.T) {
	msg := Message{
		Kind:    KindText,
		Payload: []byte("keep-alive"),
	}

	if msg.Kind != KindText {
		t.Errorf("expected KindText, got %v", msg.Kind)
	}
	if string(msg.Payload) != "keep-alive" {
		t.Errorf("expected payload 'keep-alive', got '%s'", msg.Payload)
	}
}

// TestDisconnectReasonConstants checks all reasons are distinct.
// iota bugs (accidentally reordering constants) would break this.
func TestDisconnectReasonConstants(t *testing.T) {
	reasons := []DisconnectReason{
		ReasonUnknown,
		ReasonNetworkError,
		ReasonTimeout,
		ReasonClosedClean,
		ReasonDialFailed,
	}

	seen := make(map[DisconnectReason]bool)
	names := make(map[string]bool)
	for _, r := range reasons {
		if seen[r] {
			t.Errorf("duplicate DisconnectReason value: %d", r)
		}
		seen[r] = true
		if names[r.String()] {
			t.Errorf("duplicate DisconnectReason name: %s", r)
		}
		names[r.String()] = true
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindBinary, "binary"},
		{KindText, "text"},
		{Kind(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

// TestDisconnectEvent checks the event struct carries reason and error together.
func TestDisconnectEvent(t *testing.T) {
	event := DisconnectEvent{
		Reason: ReasonNetworkError,
		Err:    ErrTransportClosed,
	}

	if event.Reason != ReasonNetworkError {
		t.Errorf("expected ReasonNetworkError, got %d", event.Reason)
	}
	if !errors.Is(event.Err, ErrTransportClosed) {
		t.Errorf("expected ErrTransportClosed, got %v", event.Err)
	}
}

func TestDialerFunc(t *testing.T) {
	var gotURL string
	d := DialerFunc(func(ctx context.Context, url string) (Adapter, error) {
		gotURL = url
		return nil, ErrTransportClosed
	})

	_, err := d.Dial(context.Background(), "ws://host/ws/events?token=t")
	if !errors.Is(err, ErrTransportClosed) {
		t.Errorf("expected ErrTransportClosed, got %v", err)
	}
	if gotURL != "ws://host/ws/events?token=t" {
		t.Errorf("dialer got url %q", gotURL)
	}
}
