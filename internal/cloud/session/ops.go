package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/iot"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/thing"
)

// condition is the fixed targeting block of a control command.
type condition struct {
	ThingName  string     `json:"ThingName"`
	Index      int        `json:"Index"`
	Geofencing geofencing `json:"Geofencing"`
}

type geofencing struct {
	Arrive *string `json:"Arrive"`
	Leave  *string `json:"Leave"`
}

// live returns the messenger and directory when Ready and connected.
func (c *Controller) live() (Messenger, *thing.Directory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady || c.messenger == nil || !c.messenger.IsConnected() {
		return nil, nil, false
	}
	return c.messenger, c.dir, true
}

// RefreshDevice asks one device for its status.
func (c *Controller) RefreshDevice(ctx context.Context, name string) error {
	m, dir, ok := c.live()
	if !ok {
		return ErrNotConnected
	}
	if _, ok := dir.Lookup(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, name)
	}
	return m.Publish(ctx, name, iot.ActionStatus, nil)
}

// RefreshAll publishes action for every known device.
func (c *Controller) RefreshAll(ctx context.Context, action string) error {
	if !iot.ValidAction(action) || action == iot.ActionControl {
		return fmt.Errorf("refresh: unsupported action %q", action)
	}
	m, dir, ok := c.live()
	if !ok {
		return ErrNotConnected
	}
	return c.publishAll(ctx, m, dir, action)
}

func (c *Controller) publishAll(ctx context.Context, m Messenger, dir *thing.Directory, action string) error {
	var errs []error
	for _, name := range dir.Names() {
		if err := m.Publish(ctx, name, action, nil); err != nil {
			c.logger.Warn("cloud refresh publish failed", "thing", name, "action", action, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetField returns a device field from the cached status or registration
// payload. With forceRefresh a status request is sent first; its answer
// arrives asynchronously, so the value returned is still the cached one.
// The result is unknown (false) for an unknown device, an unknown field,
// or a payload that has not arrived.
func (c *Controller) GetField(ctx context.Context, name, field string, forceRefresh bool) (any, bool) {
	if forceRefresh {
		if err := c.RefreshDevice(ctx, name); err != nil {
			c.logger.Debug("forced refresh failed", "thing", name, "error", err)
		}
	}
	th, ok := c.Device(name)
	if !ok {
		return nil, false
	}
	return th.Field(field)
}

// SetField sends a control command changing one field. Every command gets
// the next task id of this controller; the id is for the device, the reply
// is not matched against it.
func (c *Controller) SetField(ctx context.Context, name, field string, value any) error {
	m, dir, ok := c.live()
	if !ok {
		return ErrNotConnected
	}
	if _, ok := dir.Lookup(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, name)
	}

	f, ok := thing.LookupField(field)
	if !ok {
		return fmt.Errorf("%w: %s", thing.ErrUnknownField, field)
	}
	encoded, err := f.Encode(value)
	if err != nil {
		return err
	}
	if f.HostOnly && !c.IsHost() {
		return fmt.Errorf("%w: %s", ErrHostOnly, field)
	}

	payload := map[string]any{
		"Condition": condition{ThingName: name},
		"TaskID":    c.nextTaskID(),
		"Timestamp": iot.Timestamp(c.now()),
		field:       encoded,
	}

	if err := m.Publish(ctx, name, iot.ActionControl, payload); err != nil {
		return err
	}
	c.logger.Info("cloud command sent", "thing", name, "field", field, "value", encoded)
	return nil
}

func (c *Controller) nextTaskID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.taskID
	c.taskID++
	return id
}
