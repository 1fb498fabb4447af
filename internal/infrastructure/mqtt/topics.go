package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every bus topic. Bridges share one flat
// scheme: {prefix}/{category}/{protocol}/{address}.
const TopicPrefix = "graylogic"

// ProtocolHitachi is the protocol segment used by the climate bridge.
const ProtocolHitachi = "hitachi"

// Topic categories.
const (
	CategoryState   = "state"
	CategoryCommand = "command"
	CategoryAck     = "ack"
	CategoryHealth  = "health"
)

// Topics builds bus topic names.
//
//	mqtt.Topics{}.State("hitachi", "ac-living")   // graylogic/state/hitachi/ac-living
type Topics struct{}

// State is the retained device state topic.
func (Topics) State(protocol, address string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, CategoryState, protocol, address)
}

// Command is the topic commands for one device arrive on.
func (Topics) Command(protocol, address string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, CategoryCommand, protocol, address)
}

// Ack is the topic command acknowledgements are published on.
func (Topics) Ack(protocol, address string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, CategoryAck, protocol, address)
}

// Health is the retained bridge health topic. It also carries the last will.
func (Topics) Health(protocol string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, CategoryHealth, protocol)
}

// AllCommands matches every command for a protocol.
func (Topics) AllCommands(protocol string) string {
	return fmt.Sprintf("%s/%s/%s/+", TopicPrefix, CategoryCommand, protocol)
}

// AllStates matches every state topic for a protocol.
func (Topics) AllStates(protocol string) string {
	return fmt.Sprintf("%s/%s/%s/+", TopicPrefix, CategoryState, protocol)
}

// ParseDeviceTopic splits {prefix}/{category}/{protocol}/{address}.
func ParseDeviceTopic(topic string) (category, protocol, address string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix {
		return "", "", "", fmt.Errorf("%w: unexpected topic %q", ErrInvalidTopic, topic)
	}
	if parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return "", "", "", fmt.Errorf("%w: empty segment in %q", ErrInvalidTopic, topic)
	}
	return parts[1], parts[2], parts[3], nil
}
