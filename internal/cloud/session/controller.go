package session

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/auth"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/iot"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/thing"
)

const (
	defaultRetryDelay      = 360 * time.Second
	defaultMaxFailedLogins = 5
	logoutTimeout          = 15 * time.Second
)

// State is the controller state.
type State int

const (
	StateLoggedOut State = iota
	StateLoggingIn
	StateReady
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateLoggingIn:
		return "logging_in"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// CredentialPipeline is the subset of auth.Client the controller drives.
type CredentialPipeline interface {
	Login(ctx context.Context, useRefreshToken bool) (auth.Tokens, error)
	FetchIdentity(ctx context.Context, tokens auth.Tokens) (auth.Identity, error)
	FetchCredentials(ctx context.Context, tokens auth.Tokens, identity auth.Identity) (auth.Credentials, error)
	ListDevices(ctx context.Context, tokens auth.Tokens) (*thing.Directory, error)
}

// Messenger is the subset of iot.Session the controller drives.
type Messenger interface {
	Connect(ctx context.Context, creds auth.Credentials, identity auth.Identity) error
	Disconnect(ctx context.Context) error
	Publish(ctx context.Context, thingName, action string, payload any) error
	IsConnected() bool
}

// MessengerFactory creates the messaging session for one login.
type MessengerFactory func(dir *thing.Directory, notify iot.NotifyFunc) Messenger

// Logger is the logging interface used by the controller.
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

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. It matches time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options configures a Controller.
type Options struct {
	Pipeline     CredentialPipeline
	NewMessenger MessengerFactory

	// RetryDelay is the fixed wait before a retry or a re-login.
	RetryDelay time.Duration

	// MaxFailedLogins bounds consecutive failed supervised logins.
	MaxFailedLogins int

	// StatusRefreshInterval re-queries every device's status while Ready.
	// Zero disables it.
	StatusRefreshInterval time.Duration

	Logger Logger

	// Now and AfterFunc default to the time package.
	Now       func() time.Time
	AfterFunc AfterFunc
}

// Controller owns one account's cloud session. It is safe for concurrent use.
type Controller struct {
	pipeline        CredentialPipeline
	newMessenger    MessengerFactory
	retryDelay      time.Duration
	maxFailedLogins int
	refreshInterval time.Duration
	logger          Logger
	now             func() time.Time
	afterFunc       AfterFunc

	mu          sync.Mutex
	state       State
	generation  uint64
	baseCtx     context.Context
	loginCancel context.CancelFunc
	retryTimer  Timer
	retryToken  *int
	refreshStop chan struct{}
	failures    int
	terminal    bool
	dir         *thing.Directory
	identity    auth.Identity
	messenger   Messenger
	taskID      uint64

	cbMu       sync.RWMutex
	onChange   func(snap *thing.Snapshot)
	onTerminal func(err error)
}

// NewController creates a logged-out controller.
func NewController(opts Options) *Controller {
	c := &Controller{
		pipeline:        opts.Pipeline,
		newMessenger:    opts.NewMessenger,
		retryDelay:      opts.RetryDelay,
		maxFailedLogins: opts.MaxFailedLogins,
		refreshInterval: opts.StatusRefreshInterval,
		logger:          opts.Logger,
		now:             opts.Now,
		afterFunc:       opts.AfterFunc,
	}
	if c.retryDelay <= 0 {
		c.retryDelay = defaultRetryDelay
	}
	if c.maxFailedLogins <= 0 {
		c.maxFailedLogins = defaultMaxFailedLogins
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.afterFunc == nil {
		c.afterFunc = realAfterFunc
	}
	return c
}

// SetNotify registers the change callback. It receives a snapshot after
// every status update and nil when the cloud connection is lost.
func (c *Controller) SetNotify(fn func(snap *thing.Snapshot)) {
	c.cbMu.Lock()
	c.onChange = fn
	c.cbMu.Unlock()
}

// OnTerminal registers the callback for the terminal login failure.
func (c *Controller) OnTerminal(fn func(err error)) {
	c.cbMu.Lock()
	c.onTerminal = fn
	c.cbMu.Unlock()
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the controller is Ready with a live session.
func (c *Controller) IsConnected() bool {
	c.mu.Lock()
	state, m := c.state, c.messenger
	c.mu.Unlock()
	return state == StateReady && m != nil && m.IsConnected()
}

// IsHost reports whether the logged-in account owns the device family.
func (c *Controller) IsHost() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity.IsHost()
}

// Identity returns the identity of the current login.
func (c *Controller) Identity() auth.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Devices returns every device of the current directory in listing order.
func (c *Controller) Devices() []*thing.Thing {
	c.mu.Lock()
	dir := c.dir
	c.mu.Unlock()
	return dir.Things()
}

// Device returns one device of the current directory.
func (c *Controller) Device(name string) (*thing.Thing, bool) {
	c.mu.Lock()
	dir := c.dir
	c.mu.Unlock()
	return dir.Lookup(name)
}

// LookupByCustomName resolves a custom device name to its device name.
func (c *Controller) LookupByCustomName(customName string) (string, bool) {
	c.mu.Lock()
	dir := c.dir
	c.mu.Unlock()
	return dir.LookupByCustomName(customName)
}

// Failures returns the number of consecutive failed supervised logins.
func (c *Controller) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}
