package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/thing"
)

// Commands accepted on the command topic.
const (
	CommandSet     = "set"
	CommandRefresh = "refresh"
)

// CommandMessage asks the bridge to act on one device.
//
//	{"id":"c1","command":"set","parameters":{"Switch":true,"Mode":4}}
type CommandMessage struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Source     string         `json:"source,omitempty"`
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
)

// Error codes carried in failed acks.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeNotPermitted      = "NOT_PERMITTED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// AckMessage answers a CommandMessage.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	ThingName string    `json:"thing_name"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError explains a failed command.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage is the retained state of one device.
type StateMessage struct {
	ThingName    string        `json:"thing_name"`
	CustomName   string        `json:"custom_name,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
	State        thing.Payload `json:"state"`
	Registration thing.Payload `json:"registration,omitempty"`
	Protocol     string        `json:"protocol"`
}

// HealthStatus is the bridge's overall condition.
type HealthStatus string

const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained on the health topic.
type HealthMessage struct {
	Bridge         string       `json:"bridge"`
	Timestamp      time.Time    `json:"timestamp"`
	Status         HealthStatus `json:"status"`
	Version        string       `json:"version"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	DevicesManaged int          `json:"devices_managed"`
	CloudConnected bool         `json:"cloud_connected"`
	Reason         string       `json:"reason,omitempty"`
}

// ParseCommand decodes and checks a command payload.
func ParseCommand(data []byte) (CommandMessage, error) {
	var cmd CommandMessage
	if err := json.Unmarshal(data, &cmd); err != nil {
		return CommandMessage{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	switch cmd.Command {
	case CommandSet:
		if len(cmd.Parameters) == 0 {
			return cmd, fmt.Errorf("%w: set without parameters", ErrInvalidCommand)
		}
	case CommandRefresh:
	case "":
		return cmd, fmt.Errorf("%w: command is empty", ErrInvalidCommand)
	default:
		return cmd, fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, cmd.Command)
	}
	return cmd, nil
}
