package mqtt

import "fmt"

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Subscribe delivers messages matching topic to handler. Topic may use the
// + and # wildcards, e.g. Topics{}.AllObservations().
//
// The subscription is remembered and restored after a reconnect.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	case !c.IsConnected():
		return ErrNotConnected
	}

	token := c.paho.Subscribe(topic, qos, c.dispatch(handler))
	if err := wait(token, ErrSubscribeFailed); err != nil {
		return err
	}

	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()
	return nil
}

// Unsubscribe stops delivery for a topic passed to Subscribe. Messages
// already in flight may still arrive.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return wait(c.paho.Unsubscribe(topic), ErrSubscribeFailed)
}

// restoreSubscriptions re-subscribes after a reconnect. The broker forgot
// them because sessions are clean.
func (c *Client) restoreSubscriptions() {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, sub := range c.subs {
		subs[topic] = sub
	}
	c.mu.Unlock()

	for topic, sub := range subs {
		if err := wait(c.paho.Subscribe(topic, sub.qos, c.dispatch(sub.handler)), ErrSubscribeFailed); err != nil {
			c.logger.Error("restoring subscription failed", "topic", topic, "error", err)
			continue
		}
		c.logger.Info("subscription restored", "topic", topic)
	}
}
