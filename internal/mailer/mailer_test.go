package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"testing"

	"flowdesk/internal/config"
	"flowdesk/pkg/logx"
)

func TestLogChannelSend(t *testing.T) {
	t.Parallel()
	ch := &LogChannel{log: logx.Nop()}

	id, err := ch.Send(context.Background(), "dev@example.com", "hi", "body")
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a message id")
	}
}

func TestLogChannelRejectsBadAddress(t *testing.T) {
	t.Parallel()
	ch := &LogChannel{log: logx.Nop()}

	_, err := ch.Send(context.Background(), "not an address", "hi", "body")
	if err == nil {
		t.Fatal("expected error for invalid recipient")
	}
	if !IsPermanent(err) {
		t.Fatalf("bad address must be permanent, got %v", err)
	}
}

func TestNewChannelModes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mode    string
		wantErr bool
		wantLog bool
	}{
		{mode: "", wantLog: true},
		{mode: "log", wantLog: true},
		{mode: "LOG", wantLog: true},
		{mode: "smtp"},
		{mode: "carrier-pigeon", wantErr: true},
	}
	for _, tt := range tests {
		ch, err := New(config.MailerConfig{Mode: tt.mode, Host: "relay.example.com"}, logx.Nop())
		if tt.wantErr {
			if err == nil {
				t.Fatalf("mode %q: expected error", tt.mode)
			}
			continue
		}
		if err != nil {
			t.Fatalf("mode %q: %v", tt.mode, err)
		}
		_, isLog := ch.(*LogChannel)
		if isLog != tt.wantLog {
			t.Fatalf("mode %q: channel type %T", tt.mode, ch)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	perm := classify(fmt.Errorf("rcpt to: %w", &textproto.Error{Code: 550, Msg: "no such user"}))
	if !IsPermanent(perm) {
		t.Fatalf("550 should be permanent, got %v", perm)
	}
	trans := classify(fmt.Errorf("rcpt to: %w", &textproto.Error{Code: 451, Msg: "try again later"}))
	if IsPermanent(trans) {
		t.Fatalf("451 should be transient, got %v", trans)
	}
	network := classify(errors.New("connection reset"))
	if IsPermanent(network) {
		t.Fatalf("network error should be transient, got %v", network)
	}
}

func TestSendErrorUnwrap(t *testing.T) {
	t.Parallel()
	inner := &textproto.Error{Code: 550, Msg: "nope"}
	err := classify(fmt.Errorf("rcpt to: %w", inner))
	var tp *textproto.Error
	if !errors.As(err, &tp) || tp.Code != 550 {
		t.Fatalf("SendError must unwrap to the smtp reply, got %v", err)
	}
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()
	raw, err := buildMessage("Flowdesk <no-reply@flowdesk.example>", "u1@example.com",
		"Weekly report due", "<abc@flowdesk.example>", "Your weekly report is due Friday 17:00.")
	if err != nil {
		t.Fatalf("buildMessage error: %v", err)
	}
	for _, want := range [][]byte{
		[]byte("Subject: Weekly report due"),
		[]byte("To: "),
		[]byte("From: "),
		[]byte("Message-Id: <abc@flowdesk.example>"),
	} {
		if !bytes.Contains(raw, want) {
			t.Fatalf("message missing %q:\n%s", want, raw)
		}
	}
}

func TestBuildMessageBadFrom(t *testing.T) {
	t.Parallel()
	if _, err := buildMessage("garbage", "u1@example.com", "s", "<id@x>", "b"); err == nil {
		t.Fatal("expected error for unparseable from address")
	}
}

func TestTrimBrackets(t *testing.T) {
	t.Parallel()
	if got := trimBrackets("<id@host>"); got != "id@host" {
		t.Fatalf("trimBrackets = %q", got)
	}
	if got := trimBrackets("id@host"); got != "id@host" {
		t.Fatalf("trimBrackets = %q", got)
	}
}
