package iot

import (
	"context"
	"errors"
	"sync"
)

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeTransport is an in-memory Transport driven by the test.
type fakeTransport struct {
	events chan Event

	// connect controls what Start emits: "ok", "fail" or "hang".
	connect    string
	publishErr error

	mu           sync.Mutex
	subscribed   []string
	unsubscribed []string
	published    []published
	stopped      bool
	publishCh    chan published
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events:    make(chan Event, 64),
		connect:   "ok",
		publishCh: make(chan published, 64),
	}
}

func (f *fakeTransport) Events() <-chan Event { return f.events }

func (f *fakeTransport) Start() error {
	switch f.connect {
	case "ok":
		f.events <- Event{Type: EventAttemptingConnect}
		f.events <- Event{Type: EventConnectionSuccess}
	case "fail":
		f.events <- Event{Type: EventAttemptingConnect}
		f.events <- Event{Type: EventConnectionFailure, Err: errors.New("bad signature")}
	}
	return nil
}

func (f *fakeTransport) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return nil
	}
	f.stopped = true
	f.events <- Event{Type: EventDisconnection}
	f.events <- Event{Type: EventStopped}
	close(f.events)
	return nil
}

func (f *fakeTransport) Subscribe(_ context.Context, filter string, _ byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, filter)
	return nil
}

func (f *fakeTransport) Unsubscribe(_ context.Context, filter string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, filter)
	return nil
}

func (f *fakeTransport) Publish(_ context.Context, topic string, qos byte, payload []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	p := published{topic: topic, qos: qos, payload: payload}
	f.mu.Lock()
	f.published = append(f.published, p)
	f.mu.Unlock()
	f.publishCh <- p
	return nil
}

// inject delivers an inbound message.
func (f *fakeTransport) inject(topic, body string) {
	f.events <- Event{Type: EventMessage, Topic: topic, Payload: []byte(body)}
}

func (f *fakeTransport) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}
