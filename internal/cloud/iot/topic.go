package iot

import (
	"fmt"
	"strings"
)

// Actions understood by the device cloud.
const (
	ActionStatus       = "status"
	ActionRegistration = "registration"
	ActionControl      = "control"
)

// Topic directions.
const (
	DirectionRequest  = "request"
	DirectionResponse = "response"
)

// RequestTopic returns the topic a request for thing/action is published on.
func RequestTopic(host, thingName, action string) string {
	return fmt.Sprintf("%s/%s/%s/%s", host, thingName, action, DirectionRequest)
}

// ResponseFilter returns the wildcard covering every device's responses.
func ResponseFilter(host string) string {
	return host + "/+/+/" + DirectionResponse
}

// Topic is a parsed device topic.
type Topic struct {
	Host      string
	ThingName string
	Action    string
	Direction string
}

// ParseTopic splits a device topic into its four segments.
func ParseTopic(topic string) (Topic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 {
		return Topic{}, fmt.Errorf("%w: topic %q has %d segments", ErrProtocol, topic, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return Topic{}, fmt.Errorf("%w: topic %q has an empty segment", ErrProtocol, topic)
		}
	}
	return Topic{Host: parts[0], ThingName: parts[1], Action: parts[2], Direction: parts[3]}, nil
}

// ValidAction reports whether action is one the cloud answers.
func ValidAction(action string) bool {
	switch action {
	case ActionStatus, ActionRegistration, ActionControl:
		return true
	default:
		return false
	}
}
