package message_test

import (
	"context"
	"errors"
	"testing"

	"github.com/slackmgr/sqsrecovery/async"
	"github.com/slackmgr/sqsrecovery/message"
)

type stubVisibility struct{}

func (stubVisibility) ChangeTo(context.Context, int32) *async.Future { return async.Completed() }

type receiptStub struct {
	receipt string
}

func (*receiptStub) ChangeTo(context.Context, int32) *async.Future { return async.Completed() }

func (r *receiptStub) Bound() bool { return r != nil && r.receipt != "" }

func TestVisibilityOf(t *testing.T) {
	tests := []struct {
		name    string
		msg     *message.Message
		wantErr bool
	}{
		{"nil message", nil, true},
		{"nil headers", &message.Message{ID: "m1"}, true},
		{"missing header", message.New("m1", "q", ""), true},
		{"wrong type", withHeader(message.VisibilityHeader, "not a handle"), true},
		{"nil interface", withHeader(message.VisibilityHeader, message.Visibility(nil)), true},
		{"nil pointer handle", withHeader(message.VisibilityHeader, (*receiptStub)(nil)), true},
		{"unbound handle", withHeader(message.VisibilityHeader, &receiptStub{}), true},
		{"bound handle", withHeader(message.VisibilityHeader, &receiptStub{receipt: "rh-1"}), false},
		{"valid", withHeader(message.VisibilityHeader, stubVisibility{}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := message.VisibilityOf(tt.msg)

			if tt.wantErr {
				if !errors.Is(err, message.ErrInvalidVisibilityHeader) {
					t.Fatalf("expected ErrInvalidVisibilityHeader, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if v == nil {
				t.Fatal("expected non-nil visibility")
			}
		})
	}
}

func TestReceiveCount(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int
	}{
		{"missing", nil, 1},
		{"numeric string", "7", 7},
		{"one", "1", 1},
		{"zero", "0", 1},
		{"negative", "-3", 1},
		{"not a number", "abc", 1},
		{"empty", "", 1},
		{"wrong type", 5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := message.New("m1", "q", "")
			if tt.value != nil {
				msg.Headers[message.ApproximateReceiveCountHeader] = tt.value
			}

			if got := message.ReceiveCount(msg); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestReceiveCount_NilMessage(t *testing.T) {
	if got := message.ReceiveCount(nil); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
}

func withHeader(key string, value any) *message.Message {
	msg := message.New("m1", "queue", "body")
	msg.Headers[key] = value

	return msg
}
