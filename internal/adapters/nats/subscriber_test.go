package natsadapter

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/geodash/internal/core/domain"
)

type fakeMsg struct {
	acked, termed bool
	nakDelay      time.Duration
}

func (m *fakeMsg) Ack(...nats.AckOpt) error  { m.acked = true; return nil }
func (m *fakeMsg) Term(...nats.AckOpt) error { m.termed = true; return nil }
func (m *fakeMsg) NakWithDelay(d time.Duration, _ ...nats.AckOpt) error {
	m.nakDelay = d
	return nil
}

var _ jobMsg = (*nats.Msg)(nil)

func TestSettle(t *testing.T) {
	tests := []struct {
		name                 string
		err                  error
		ack, term, redeliver bool
	}{
		{"ok", nil, true, false, false},
		{"media gone", fmt.Errorf("load m1: %w", domain.ErrNotFound), false, true, false},
		{"undecodable", fmt.Errorf("decode: %w", domain.ErrUnsupportedMedia), false, true, false},
		{"bad derivative", domain.ErrInvalidInput, false, true, false},
		{"too large", domain.ErrTooLarge, false, true, false},
		{"storage down", errors.New("connection refused"), false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &fakeMsg{}
			settle(msg, "m1", tt.err)
			if msg.acked != tt.ack || msg.termed != tt.term || (msg.nakDelay > 0) != tt.redeliver {
				t.Errorf("acked=%v termed=%v nak=%v", msg.acked, msg.termed, msg.nakDelay)
			}
		})
	}
}
