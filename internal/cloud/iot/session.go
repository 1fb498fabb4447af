package iot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/auth"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/thing"
)

const (
	defaultConnectTimeout    = 30 * time.Second
	defaultDisconnectTimeout = 10 * time.Second
	defaultPublishTimeout    = 10 * time.Second
)

// Logger is the logging interface used by the session.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NotifyFunc receives a snapshot after every applied status payload, or nil
// when an established connection is lost.
type NotifyFunc func(snap *thing.Snapshot)

// Options configures a Session.
type Options struct {
	Directory      *thing.Directory
	Factory        TransportFactory
	Notify         NotifyFunc
	Logger         Logger
	QoS            byte
	ConnectTimeout time.Duration

	// Now is used for request timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Session is the messaging session for one login.
//
// Inbound dispatch runs on the session's event goroutine, concurrently with
// Publish calls from any goroutine.
type Session struct {
	dir            *thing.Directory
	factory        TransportFactory
	notify         NotifyFunc
	logger         Logger
	qos            byte
	connectTimeout time.Duration
	now            func() time.Time

	mu        sync.RWMutex
	state     State
	host      string
	transport Transport
	waiter    *connectWaiter
	stopped   chan struct{}
}

// connectWaiter collects the handshake signals for one Connect call.
type connectWaiter struct {
	attempted   chan struct{}
	established chan struct{}
	failed      chan error
	onceAttempt sync.Once
	onceSuccess sync.Once
	onceFail    sync.Once
}

func newConnectWaiter() *connectWaiter {
	return &connectWaiter{
		attempted:   make(chan struct{}),
		established: make(chan struct{}),
		failed:      make(chan error, 1),
	}
}

// NewSession creates a disconnected session over dir.
func NewSession(opts Options) *Session {
	s := &Session{
		dir:            opts.Directory,
		factory:        opts.Factory,
		notify:         opts.Notify,
		logger:         opts.Logger,
		qos:            opts.QoS,
		connectTimeout: opts.ConnectTimeout,
		now:            opts.Now,
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.connectTimeout <= 0 {
		s.connectTimeout = defaultConnectTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsConnected reports whether the session is Connected.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// Directory returns the directory the session feeds.
func (s *Session) Directory() *thing.Directory {
	return s.dir
}

// Connect opens the signed transport and waits, bounded by the connect
// timeout and ctx, for the attempting and established signals before
// subscribing to every device's responses.
func (s *Session) Connect(ctx context.Context, creds auth.Credentials, identity auth.Identity) error {
	if identity.HostIdentityID == "" {
		return fmt.Errorf("%w: identity has no host identity id", ErrConnectionFailed)
	}

	s.mu.Lock()
	if s.state != StateDisconnected || s.transport != nil {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	tr, err := s.factory(creds, identity)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	waiter := newConnectWaiter()
	s.transport = tr
	s.host = identity.HostIdentityID
	s.waiter = waiter
	s.stopped = make(chan struct{})
	stopped := s.stopped
	s.mu.Unlock()

	go s.run(tr, stopped)

	if err := tr.Start(); err != nil {
		s.abandon(tr)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := s.awaitHandshake(ctx, waiter); err != nil {
		s.abandon(tr)
		return err
	}

	filter := ResponseFilter(identity.HostIdentityID)
	subCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()
	if err := tr.Subscribe(subCtx, filter, s.qos); err != nil {
		s.abandon(tr)
		return fmt.Errorf("%w: subscribing %s: %w", ErrConnectionFailed, filter, err)
	}

	s.logger.Info("cloud messaging session connected", "filter", filter)
	return nil
}

func (s *Session) awaitHandshake(ctx context.Context, w *connectWaiter) error {
	timer := time.NewTimer(s.connectTimeout)
	defer timer.Stop()

	for _, signal := range []chan struct{}{w.attempted, w.established} {
		select {
		case <-signal:
		case err := <-w.failed:
			return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		case <-timer.C:
			return fmt.Errorf("%w: %w after %v", ErrConnectionFailed, ErrConnectTimeout, s.connectTimeout)
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
		}
	}
	return nil
}

// abandon stops a transport whose Connect failed and resets the session.
func (s *Session) abandon(tr Transport) {
	if err := tr.Stop(); err != nil {
		s.logger.Debug("stopping abandoned transport", "error", err)
	}
	s.mu.Lock()
	if s.transport == tr {
		s.transport = nil
		s.waiter = nil
		s.state = StateDisconnected
	}
	s.mu.Unlock()
}

// Disconnect unsubscribes, stops the transport and waits for it to report
// stopped. It is safe to call in any state.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	tr := s.transport
	host := s.host
	stopped := s.stopped
	if tr == nil {
		s.state = StateDisconnected
		s.mu.Unlock()
		return nil
	}
	s.state = transition(s.state, eventStopRequested)
	s.mu.Unlock()

	var errs []error

	unsubCtx, cancel := context.WithTimeout(ctx, defaultDisconnectTimeout)
	if err := tr.Unsubscribe(unsubCtx, ResponseFilter(host)); err != nil {
		errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
	}
	cancel()

	if err := tr.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop: %w", err))
	}

	timer := time.NewTimer(defaultDisconnectTimeout)
	defer timer.Stop()
	select {
	case <-stopped:
	case <-timer.C:
		errs = append(errs, fmt.Errorf("waiting for transport to stop: %w", context.DeadlineExceeded))
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	s.mu.Lock()
	if s.transport == tr {
		s.transport = nil
		s.waiter = nil
		s.state = StateDisconnected
	}
	s.mu.Unlock()

	return errors.Join(errs...)
}

// Publish sends payload to the request topic of thingName/action. A nil
// payload sends the timestamp-only envelope. Publishing requires a
// Connected session; nothing is queued. A transport failure, other than
// the caller's ctx ending, drops the session to Disconnected.
func (s *Session) Publish(ctx context.Context, thingName, action string, payload any) error {
	s.mu.RLock()
	state, tr, host := s.state, s.transport, s.host
	s.mu.RUnlock()

	if state != StateConnected || tr == nil {
		return ErrNotConnected
	}

	if payload == nil {
		payload = map[string]any{"Timestamp": Timestamp(s.now())}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrPublishFailed, err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	topic := RequestTopic(host, thingName, action)
	if err := tr.Publish(pubCtx, topic, s.qos, body); err != nil {
		if ctx.Err() == nil {
			s.publishFailed(tr, err)
		}
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	s.logger.Debug("cloud request published", "topic", topic)
	return nil
}

// publishFailed treats a transport publish error as a lost connection: a
// socket the transport has not noticed is dead yet fails every publish.
// Only the first failure of a connected session signals the loss.
func (s *Session) publishFailed(tr Transport, err error) {
	s.handleEvent(tr, Event{Type: EventDisconnection, Err: err})
}

// Timestamp returns t as whole Unix seconds rounded up, the form the cloud
// expects in request envelopes.
func Timestamp(t time.Time) int64 {
	return int64(math.Ceil(float64(t.UnixMilli()) / 1000))
}

// run drains transport events until the transport stops.
func (s *Session) run(tr Transport, stopped chan struct{}) {
	defer close(stopped)
	for ev := range tr.Events() {
		s.handleEvent(tr, ev)
		if ev.Type == EventStopped {
			return
		}
	}
}

func (s *Session) handleEvent(tr Transport, ev Event) {
	if ev.Type == EventMessage {
		s.dispatch(ev.Topic, ev.Payload)
		return
	}

	s.mu.Lock()
	if s.transport != tr {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = transition(prev, ev.Type)
	next := s.state
	waiter := s.waiter
	s.mu.Unlock()

	if waiter != nil {
		switch ev.Type {
		case EventAttemptingConnect:
			waiter.onceAttempt.Do(func() { close(waiter.attempted) })
		case EventConnectionSuccess:
			waiter.onceSuccess.Do(func() { close(waiter.established) })
		case EventConnectionFailure, EventDisconnection, EventStopped:
			err := ev.Err
			if err == nil {
				err = errors.New(ev.Type.String())
			}
			waiter.onceFail.Do(func() { waiter.failed <- err })
		}
	}

	if prev != next {
		s.logger.Debug("cloud session state changed", "from", prev, "to", next, "event", ev.Type)
	}

	if lostConnection(prev, ev.Type) {
		s.logger.Warn("cloud messaging session lost", "event", ev.Type, "error", ev.Err)
		if s.notify != nil {
			s.notify(nil)
		}
	}
}

// dispatch routes one inbound message. Malformed or foreign messages are
// logged and dropped.
func (s *Session) dispatch(topic string, body []byte) {
	t, err := ParseTopic(topic)
	if err != nil {
		s.logger.Warn("dropping cloud message", "topic", topic, "error", err)
		return
	}
	if t.Direction != DirectionResponse {
		return
	}
	th, ok := s.dir.Lookup(t.ThingName)
	if !ok {
		s.logger.Debug("cloud message for unknown device", "thing", t.ThingName)
		return
	}

	payload, err := thing.DecodePayload(body)
	if err != nil {
		s.logger.Warn("dropping cloud message", "topic", topic, "error", fmt.Errorf("%w: %w", ErrProtocol, err))
		return
	}

	switch t.Action {
	case ActionStatus:
		s.dir.ApplyStatus(t.ThingName, payload)
		if s.notify != nil {
			snap := th.Snapshot()
			s.notify(&snap)
		}
	case ActionRegistration:
		s.dir.ApplyRegistration(t.ThingName, payload)
	case ActionControl:
		// The acknowledgement is not authoritative; fetch the real state.
		go func() {
			if err := s.Publish(context.Background(), t.ThingName, ActionStatus, nil); err != nil {
				s.logger.Warn("status refresh after control failed", "thing", t.ThingName, "error", err)
			}
		}()
	default:
		s.logger.Warn("dropping cloud message", "topic", topic, "error", fmt.Errorf("%w: unknown action %q", ErrProtocol, t.Action))
	}
}
