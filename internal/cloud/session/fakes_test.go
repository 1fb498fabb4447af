package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/auth"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/iot"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/thing"
)

// fakePipeline is a scripted CredentialPipeline.
type fakePipeline struct {
	mu         sync.Mutex
	logins     []bool // useRefreshToken per call
	loginErr   error
	refreshErr error
	hostID     string
	identityID string
	records    []thing.Record

	// block, when set, holds Login until closed or ctx is done.
	block chan struct{}
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		hostID:     "host-1",
		identityID: "host-1",
		records: []thing.Record{
			{ThingName: "ac-1", CustomDeviceName: "Living", DeviceType: 1},
			{ThingName: "ac-2", CustomDeviceName: "Bedroom", DeviceType: 1},
		},
	}
}

func (p *fakePipeline) Login(ctx context.Context, useRefreshToken bool) (auth.Tokens, error) {
	p.mu.Lock()
	p.logins = append(p.logins, useRefreshToken)
	block, loginErr, refreshErr := p.block, p.loginErr, p.refreshErr
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return auth.Tokens{}, ctx.Err()
		}
	}
	if useRefreshToken && refreshErr != nil {
		return auth.Tokens{}, refreshErr
	}
	if loginErr != nil {
		return auth.Tokens{}, loginErr
	}
	return auth.Tokens{AccessToken: "a", IDToken: "i", RefreshToken: "r"}, nil
}

func (p *fakePipeline) FetchIdentity(context.Context, auth.Tokens) (auth.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return auth.Identity{IdentityID: p.identityID, HostIdentityID: p.hostID}, nil
}

func (p *fakePipeline) FetchCredentials(context.Context, auth.Tokens, auth.Identity) (auth.Credentials, error) {
	return auth.Credentials{AccessKeyID: "AK", SecretKey: "SK"}, nil
}

func (p *fakePipeline) ListDevices(context.Context, auth.Tokens) (*thing.Directory, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return thing.NewDirectory(p.records), nil
}

func (p *fakePipeline) loginCalls() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bool, len(p.logins))
	copy(out, p.logins)
	return out
}

type publishRecord struct {
	thing   string
	action  string
	payload any
}

// fakeMessenger is an in-memory Messenger.
type fakeMessenger struct {
	dir    *thing.Directory
	notify iot.NotifyFunc

	mu            sync.Mutex
	connected     bool
	connectErr    error
	disconnects   int
	disconnectErr error
	publishErr    error
	published     []publishRecord
}

func (m *fakeMessenger) Connect(context.Context, auth.Credentials, auth.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *fakeMessenger) Disconnect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	m.connected = false
	return m.disconnectErr
}

// Publish fails like iot.Session: a transport error drops the session and
// reports the nil sentinel.
func (m *fakeMessenger) Publish(_ context.Context, name, action string, payload any) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return iot.ErrNotConnected
	}
	if err := m.publishErr; err != nil {
		m.connected = false
		m.mu.Unlock()
		m.notify(nil)
		return fmt.Errorf("%w: %w", iot.ErrPublishFailed, err)
	}
	m.published = append(m.published, publishRecord{thing: name, action: action, payload: payload})
	m.mu.Unlock()
	return nil
}

func (m *fakeMessenger) failPublishes(err error) {
	m.mu.Lock()
	m.publishErr = err
	m.mu.Unlock()
}

func (m *fakeMessenger) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// lose simulates a transport failure: the session drops and reports the
// nil sentinel.
func (m *fakeMessenger) lose() {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	m.notify(nil)
}

// status simulates an inbound status response.
func (m *fakeMessenger) status(name string, p thing.Payload) {
	m.dir.ApplyStatus(name, p)
	th, _ := m.dir.Lookup(name)
	snap := th.Snapshot()
	m.notify(&snap)
}

func (m *fakeMessenger) publishes(action string) []publishRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publishRecord
	for _, p := range m.published {
		if action == "" || p.action == action {
			out = append(out, p)
		}
	}
	return out
}

func (m *fakeMessenger) disconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

// messengers collects every messenger the controller creates.
type messengers struct {
	mu         sync.Mutex
	list       []*fakeMessenger
	connectErr error
}

func (ms *messengers) factory(dir *thing.Directory, notify iot.NotifyFunc) Messenger {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	m := &fakeMessenger{dir: dir, notify: notify, connectErr: ms.connectErr}
	ms.list = append(ms.list, m)
	return m
}

func (ms *messengers) last(t *testing.T) *fakeMessenger {
	t.Helper()
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if len(ms.list) == 0 {
		t.Fatal("no messenger created")
	}
	return ms.list[len(ms.list)-1]
}

func (ms *messengers) count() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.list)
}

// fakeClock records scheduled callbacks; tests fire them explicitly.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) pending() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs the single pending timer on the calling goroutine.
func (c *fakeClock) fire(t *testing.T) {
	t.Helper()
	p := c.pending()
	if len(p) != 1 {
		t.Fatalf("pending timers = %d, want 1", len(p))
	}
	c.mu.Lock()
	p[0].fired = true
	c.mu.Unlock()
	p[0].f()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var errBadPassword = errors.New("NotAuthorizedException")
