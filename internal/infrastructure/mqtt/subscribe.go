package mqtt

import "fmt"

func validateSubscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	return nil
}

// Subscribe registers handler for topic (wildcards allowed). The
// subscription is remembered and re-established after reconnects; it is
// forgotten again if the broker rejects it.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validateSubscribe(topic, qos, handler); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	var err error
	if !token.WaitTimeout(defaultPublishTimeout) {
		err = fmt.Errorf("%w: %s: timeout after %v", ErrSubscribeFailed, topic, defaultPublishTimeout)
	} else if terr := token.Error(); terr != nil {
		err = fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, terr)
	}
	if err != nil {
		c.forget(topic)
	}
	return err
}

// Unsubscribe drops the subscription for the exact filter given.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.forget(topic)

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrUnsubscribeFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// SubscriptionCount returns how many filters are tracked.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether the exact filter is tracked.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}
