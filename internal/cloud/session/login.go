package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/auth"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/iot"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/thing"
)

// Login runs one full login with the configured password. It is a no-op
// when already connected and fails with ErrLoginInProgress while another
// login runs. On success every device has been asked for its registration
// and status so the directory fills in shortly after.
//
// A failed Login is not retried; use Start for supervised logins.
func (c *Controller) Login(ctx context.Context) error {
	return c.login(ctx, false)
}

// Start begins a supervised login in the background. Failed attempts are
// retried after the retry delay until the failure limit is reached. Start
// resets the failure count, so it can be called again after the terminal
// error once the cause is fixed. ctx bounds every later retry and re-login.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	c.baseCtx = ctx
	c.failures = 0
	c.terminal = false
	c.cancelRetryLocked()
	c.mu.Unlock()

	go c.attempt(false)
}

// Logout tears down the session. It never fails: transport errors are
// logged, in-flight logins are cancelled, pending retries are dropped, and
// the controller always ends LoggedOut.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	c.generation++
	if c.loginCancel != nil {
		c.loginCancel()
		c.loginCancel = nil
	}
	c.cancelRetryLocked()
	c.stopRefreshLocked()
	m := c.messenger
	c.messenger = nil
	c.dir = nil
	c.identity = auth.Identity{}
	c.state = StateLoggedOut
	c.mu.Unlock()

	if m == nil {
		return
	}
	if err := m.Disconnect(ctx); err != nil {
		c.logger.Warn("cloud logout: disconnect failed", "error", err)
		return
	}
	c.logger.Info("cloud session logged out")
}

func (c *Controller) login(ctx context.Context, useRefreshToken bool) error {
	c.mu.Lock()
	if c.state == StateReady && c.messenger != nil && c.messenger.IsConnected() {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateLoggingIn {
		c.mu.Unlock()
		return ErrLoginInProgress
	}
	c.state = StateLoggingIn
	c.generation++
	gen := c.generation
	loginCtx, cancel := context.WithCancel(ctx)
	c.loginCancel = cancel
	stale := c.messenger
	c.messenger = nil
	c.stopRefreshLocked()
	c.mu.Unlock()
	defer cancel()

	if stale != nil {
		c.discard(stale)
	}

	c.logger.Info("cloud login starting", "refresh_token", useRefreshToken)
	m, dir, identity, err := c.handshake(loginCtx, gen, useRefreshToken)

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		if m != nil {
			c.discard(m)
		}
		return ErrLoggedOut
	}
	c.loginCancel = nil
	if err == nil && !m.IsConnected() {
		err = fmt.Errorf("%w: connection lost during login", iot.ErrConnectionFailed)
	}
	if err != nil {
		c.state = StateLoggedOut
		c.mu.Unlock()
		if m != nil {
			c.discard(m)
		}
		c.logger.Warn("cloud login failed", "error", err)
		return err
	}
	c.state = StateReady
	c.failures = 0
	c.terminal = false
	c.dir = dir
	c.identity = identity
	c.messenger = m
	c.startRefreshLocked(m, dir)
	c.mu.Unlock()

	c.logger.Info("cloud login complete",
		"devices", dir.Len(),
		"host", identity.IsHost(),
	)

	c.publishAll(ctx, m, dir, iot.ActionRegistration)
	c.publishAll(ctx, m, dir, iot.ActionStatus)
	return nil
}

// handshake runs the credential pipeline in order and opens the messaging
// session. A refresh-token login that fails falls back to the password.
func (c *Controller) handshake(ctx context.Context, gen uint64, useRefreshToken bool) (Messenger, *thing.Directory, auth.Identity, error) {
	tokens, err := c.pipeline.Login(ctx, useRefreshToken)
	if err != nil && useRefreshToken && ctx.Err() == nil {
		c.logger.Warn("refresh token login failed, using password", "error", err)
		tokens, err = c.pipeline.Login(ctx, false)
	}
	if err != nil {
		return nil, nil, auth.Identity{}, fmt.Errorf("login: %w", err)
	}

	identity, err := c.pipeline.FetchIdentity(ctx, tokens)
	if err != nil {
		return nil, nil, auth.Identity{}, fmt.Errorf("fetching identity: %w", err)
	}

	dir, err := c.pipeline.ListDevices(ctx, tokens)
	if err != nil {
		return nil, nil, auth.Identity{}, fmt.Errorf("listing devices: %w", err)
	}

	creds, err := c.pipeline.FetchCredentials(ctx, tokens, identity)
	if err != nil {
		return nil, nil, auth.Identity{}, fmt.Errorf("fetching credentials: %w", err)
	}

	if identity.HostIdentityID == "" {
		return nil, nil, auth.Identity{}, ErrNoHostIdentity
	}

	m := c.newMessenger(dir, c.notifyFor(gen))
	if err := m.Connect(ctx, creds, identity); err != nil {
		return m, nil, auth.Identity{}, fmt.Errorf("connecting: %w", err)
	}
	return m, dir, identity, nil
}

// attempt is one supervised login.
func (c *Controller) attempt(useRefreshToken bool) {
	err := c.login(c.baseContext(), useRefreshToken)
	switch {
	case err == nil:
	case errors.Is(err, ErrLoginInProgress), errors.Is(err, ErrLoggedOut):
	default:
		c.loginFailed(err)
	}
}

func (c *Controller) loginFailed(err error) {
	c.mu.Lock()
	c.failures++
	failures := c.failures

	var terminalErr error
	switch {
	case errors.Is(err, auth.ErrMissingAccount):
		terminalErr = err
	case failures >= c.maxFailedLogins:
		terminalErr = fmt.Errorf("%w (%d): %w", ErrMaxLoginAttempts, failures, err)
	}

	if terminalErr == nil {
		c.scheduleRetryLocked(false)
		c.mu.Unlock()
		c.logger.Warn("cloud login will be retried",
			"attempt", failures,
			"max_attempts", c.maxFailedLogins,
			"retry_in", c.retryDelay,
		)
		return
	}

	report := !c.terminal
	c.terminal = true
	c.mu.Unlock()

	if !report {
		return
	}
	c.logger.Error("cloud login abandoned", "error", terminalErr)

	c.cbMu.RLock()
	cb := c.onTerminal
	c.cbMu.RUnlock()
	if cb != nil {
		cb(terminalErr)
	}
}

// scheduleRetryLocked arms the single pending retry. A retry already
// pending absorbs the request.
func (c *Controller) scheduleRetryLocked(useRefreshToken bool) {
	if c.retryToken != nil {
		return
	}
	token := new(int)
	c.retryToken = token
	c.retryTimer = c.afterFunc(c.retryDelay, func() {
		c.mu.Lock()
		if c.retryToken != token {
			c.mu.Unlock()
			return
		}
		c.retryToken = nil
		c.retryTimer = nil
		c.mu.Unlock()

		c.attempt(useRefreshToken)
	})
}

func (c *Controller) cancelRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	c.retryTimer = nil
	c.retryToken = nil
}

// RetryPending reports whether a retry or re-login is scheduled.
func (c *Controller) RetryPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryToken != nil
}

func (c *Controller) baseContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.baseCtx == nil {
		return context.Background()
	}
	return c.baseCtx
}

// notifyFor binds the messaging session's callback to one login so that
// late signals from a replaced session are ignored.
func (c *Controller) notifyFor(gen uint64) iot.NotifyFunc {
	return func(snap *thing.Snapshot) {
		c.mu.Lock()
		current := c.generation == gen
		c.mu.Unlock()
		if !current {
			return
		}
		if snap == nil && !c.connectionLost(gen) {
			return
		}
		c.emit(snap)
	}
}

// connectionLost moves a Ready controller to LoggedOut and schedules one
// delayed re-login. It reports false when the loss was already handled.
// It runs on the messaging session's event goroutine, so the dead session
// is torn down asynchronously.
func (c *Controller) connectionLost(gen uint64) bool {
	c.mu.Lock()
	if c.generation != gen || c.state != StateReady {
		c.mu.Unlock()
		return false
	}
	c.state = StateLoggedOut
	c.stopRefreshLocked()
	m := c.messenger
	c.messenger = nil
	c.scheduleRetryLocked(true)
	c.mu.Unlock()

	c.logger.Warn("cloud connection lost, re-login scheduled", "retry_in", c.retryDelay)
	if m != nil {
		go c.discard(m)
	}
	return true
}

func (c *Controller) discard(m Messenger) {
	ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
	defer cancel()
	if err := m.Disconnect(ctx); err != nil {
		c.logger.Debug("discarding cloud session", "error", err)
	}
}

func (c *Controller) emit(snap *thing.Snapshot) {
	c.cbMu.RLock()
	cb := c.onChange
	c.cbMu.RUnlock()
	if cb != nil {
		cb(snap)
	}
}

// startRefreshLocked starts the periodic status re-query for one login.
func (c *Controller) startRefreshLocked(m Messenger, dir *thing.Directory) {
	if c.refreshInterval <= 0 {
		return
	}
	stop := make(chan struct{})
	c.refreshStop = stop
	interval := c.refreshInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.publishAll(context.Background(), m, dir, iot.ActionStatus)
			}
		}
	}()
}

func (c *Controller) stopRefreshLocked() {
	if c.refreshStop != nil {
		close(c.refreshStop)
		c.refreshStop = nil
	}
}
