package mqtt

import "fmt"

// maxPayloadSize caps a single bus message at 1MB.
const maxPayloadSize = 1 << 20

func validatePublish(topic string, payload []byte, qos byte) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: payload is %d bytes, limit %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	return nil
}

// Publish sends payload to topic and waits for the broker to accept it.
// State and health topics are published retained; commands and acks are not.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublish(topic, payload, qos); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// PublishRetained publishes a retained message at the configured QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
