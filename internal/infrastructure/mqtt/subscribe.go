package mqtt

import "fmt"

// Subscribe routes messages matching filter to handler. Filters may use
// + for one level and a trailing # for the rest:
//
//	client.Subscribe(mqtt.Topics{}.AllVitals(), 0, relayVital)
//
// Subscribing again to the same filter replaces its handler. Tracked
// filters are re-issued after every reconnect.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, filter)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subs[filter] = subscription{qos: qos, handler: handler}
	c.subMu.Unlock()

	tok := c.paho.Subscribe(filter, qos, c.deliver(handler))
	if err := await(tok, ErrSubscribeFailed); err != nil {
		c.untrack(filter)
		return fmt.Errorf("%s: %w", filter, err)
	}
	return nil
}

// Unsubscribe stops tracking filter and tells the broker. Messages
// already in flight may still arrive.
func (c *Client) Unsubscribe(filter string) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.untrack(filter)
	return await(c.paho.Unsubscribe(filter), ErrUnsubscribeFailed)
}

func (c *Client) untrack(filter string) {
	c.subMu.Lock()
	delete(c.subs, filter)
	c.subMu.Unlock()
}

// Subscribed reports whether filter is tracked.
func (c *Client) Subscribed(filter string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subs[filter]
	return ok
}
