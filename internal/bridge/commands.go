package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/iot"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/session"
	"github.com/nerrad567/jcihitachi-core/internal/cloud/thing"
	"github.com/nerrad567/jcihitachi-core/internal/history"
	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/mqtt"
)

// handleCommand runs on the bus client's goroutine; the command itself
// runs on its own so a slow cloud round trip does not stall the bus.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	category, protocol, name, err := mqtt.ParseDeviceTopic(topic)
	if err != nil {
		return err
	}
	if category != mqtt.CategoryCommand || protocol != mqtt.ProtocolHitachi {
		return fmt.Errorf("unexpected command topic %s", topic)
	}

	cmd, err := ParseCommand(payload)
	if err != nil {
		b.ack(name, cmd.ID, err)
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
		defer cancel()
		b.ack(name, cmd.ID, b.execute(ctx, name, cmd))
	}()
	return nil
}

// execute applies cmd to the named device. Parameters of a set command are
// sent one field at a time in name order; the first failure stops the rest.
func (b *Bridge) execute(ctx context.Context, name string, cmd CommandMessage) error {
	t, ok := b.ctrl.Device(name)
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrUnknownDevice, name)
	}
	if !t.IsClimate() {
		return fmt.Errorf("%w: %s", ErrNotClimate, name)
	}

	switch cmd.Command {
	case CommandRefresh:
		return b.ctrl.RefreshDevice(ctx, name)
	case CommandSet:
		fields := make([]string, 0, len(cmd.Parameters))
		for f := range cmd.Parameters {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			if err := b.ctrl.SetField(ctx, name, f, cmd.Parameters[f]); err != nil {
				return fmt.Errorf("setting %s: %w", f, err)
			}
		}
		b.record(name, thing.Payload(cmd.Parameters), history.SourceCommand)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, cmd.Command)
	}
}

func (b *Bridge) ack(name, commandID string, result error) {
	msg := AckMessage{
		CommandID: commandID,
		Timestamp: b.now().UTC(),
		ThingName: name,
		Status:    AckAccepted,
		Protocol:  mqtt.ProtocolHitachi,
	}
	if result != nil {
		msg.Status = AckFailed
		msg.Error = &AckError{Code: errorCode(result), Message: result.Error()}
		b.log.Warn("command failed", "thing", name, "command_id", commandID, "error", result)
	} else {
		b.log.Info("command accepted", "thing", name, "command_id", commandID)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("encoding ack", "thing", name, "error", err)
		return
	}
	if err := b.bus.Publish(b.topics.Ack(mqtt.ProtocolHitachi, name), data, b.qos, false); err != nil {
		b.log.Warn("publishing ack", "thing", name, "error", err)
	}
}

// errorCode maps a command failure onto an ack error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, session.ErrNotConnected),
		errors.Is(err, iot.ErrNotConnected),
		errors.Is(err, iot.ErrPublishFailed):
		return ErrCodeDeviceUnreachable
	case errors.Is(err, session.ErrUnknownDevice), errors.Is(err, ErrNotClimate):
		return ErrCodeNotConfigured
	case errors.Is(err, session.ErrHostOnly):
		return ErrCodeNotPermitted
	case errors.Is(err, thing.ErrUnknownField),
		errors.Is(err, thing.ErrReadOnlyField),
		errors.Is(err, thing.ErrInvalidValue):
		return ErrCodeInvalidParameters
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	default:
		return ErrCodeBridgeError
	}
}
