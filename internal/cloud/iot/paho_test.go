package iot

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/auth"
)

func newTestPahoTransport(t *testing.T) *PahoTransport {
	t.Helper()
	tr, err := NewPahoTransport(context.Background(), PahoOptions{
		Endpoint:       "127.0.0.1:1",
		Region:         "ap-northeast-1",
		ConnectTimeout: time.Second,
	}, auth.Credentials{AccessKeyID: "A", SecretKey: "S"}, auth.Identity{IdentityID: "id"})
	if err != nil {
		t.Fatalf("NewPahoTransport() error: %v", err)
	}
	return tr
}

func drain(t *testing.T, events <-chan Event) []EventType {
	t.Helper()
	var got []EventType
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev.Type)
		case <-timeout:
			t.Fatalf("event channel not closed, got %v", got)
		}
	}
}

func TestPahoTransport_StopNeverStarted(t *testing.T) {
	tr := newTestPahoTransport(t)

	if err := tr.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	got := drain(t, tr.Events())
	if len(got) != 1 || got[0] != EventStopped {
		t.Errorf("events = %v, want [stopped]", got)
	}
	if err := tr.Stop(); err != nil {
		t.Errorf("second Stop() error: %v", err)
	}
	if !tr.isStopping() {
		t.Error("isStopping() = false after Stop")
	}
}

func TestPahoTransport_StopAfterFailedConnect(t *testing.T) {
	tr := newTestPahoTransport(t)

	if err := tr.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := tr.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	drain(t, tr.Events())

	if tr.client.IsConnected() {
		t.Error("client still connected after Stop")
	}
	if err := tr.Publish(context.Background(), "t", 1, nil); err == nil {
		t.Error("Publish() after Stop should fail")
	}
}
