package events

import (
	"context"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

func TestSubject(t *testing.T) {
	cases := []struct {
		group string
		want  string
	}{
		{"12345", "mudae.12345.exchange.settled"},
		{"", "mudae.global.exchange.settled"},
		{"a.b c", "mudae.a_b_c.exchange.settled"},
	}
	for _, tc := range cases {
		got := Subject("mudae", Event{Type: ExchangeSettled, Group: tc.group})
		if got != tc.want {
			t.Fatalf("Subject(%q) = %q, want %q", tc.group, got, tc.want)
		}
	}
}

func TestEventEncodesWithMsgpack(t *testing.T) {
	in := Event{
		Type:       CharacterGranted,
		Group:      "g",
		Users:      []string{"u1"},
		Characters: []string{"101"},
		At:         time.Unix(1700000000, 0),
	}
	raw, err := msgpack.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Event
	if err := msgpack.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Type != in.Type || out.Users[0] != "u1" || !out.At.Equal(in.At) {
		t.Fatalf("decoded event mismatch: %+v", out)
	}
}

func TestNewNATSPublisher_Errors(t *testing.T) {
	if _, err := NewNATSPublisher(NATSConfig{}); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := NewNATSPublisher(NATSConfig{URL: "nats://127.0.0.1:1", Timeout: 200 * time.Millisecond}); err == nil {
		t.Fatalf("expected connect error for closed port")
	}
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	if err := p.Publish(context.Background(), Event{Type: GroupReset}); err != nil {
		t.Fatalf("noop publish: %v", err)
	}
}

var _ Publisher = (*NATSPublisher)(nil)
