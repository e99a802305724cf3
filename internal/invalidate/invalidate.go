// Package invalidate delivers cache-invalidation topics from the data
// service to subscribers. Transports are swappable; the WebSocket transport
// is the production one.
package invalidate

import (
	"context"
	"sync"
)

// Subscriber is notified of every invalidation topic
type Subscriber interface {
	OnInvalidate(topic string)
}

// SubscriberFunc adapts a function to Subscriber
type SubscriberFunc func(topic string)

func (f SubscriberFunc) OnInvalidate(topic string) { f(topic) }

// Transport delivers the topics addressed to one user until ctx ends.
// Delivery is at-least-once with no ordering guarantee.
type Transport interface {
	Listen(ctx context.Context, email string, sub Subscriber) error
}

// Channel is an in-process Transport: Publish fans a topic out to every
// listener of an email.
type Channel struct {
	mu        sync.Mutex
	listeners map[string]map[*listener]struct{}
}

type listener struct {
	sub Subscriber
}

// NewChannel creates an in-process transport
func NewChannel() *Channel {
	return &Channel{listeners: make(map[string]map[*listener]struct{})}
}

// Listen blocks until ctx ends, delivering topics published for email
func (c *Channel) Listen(ctx context.Context, email string, sub Subscriber) error {
	l := &listener{sub: sub}

	c.mu.Lock()
	if c.listeners[email] == nil {
		c.listeners[email] = make(map[*listener]struct{})
	}
	c.listeners[email][l] = struct{}{}
	c.mu.Unlock()

	<-ctx.Done()

	c.mu.Lock()
	delete(c.listeners[email], l)
	if len(c.listeners[email]) == 0 {
		delete(c.listeners, email)
	}
	c.mu.Unlock()
	return nil
}

// Publish delivers topic to every current listener of email and returns how
// many received it.
func (c *Channel) Publish(email, topic string) int {
	c.mu.Lock()
	subs := make([]Subscriber, 0, len(c.listeners[email]))
	for l := range c.listeners[email] {
		subs = append(subs, l.sub)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.OnInvalidate(topic)
	}
	return len(subs)
}

// Listeners returns the number of active listeners of email
func (c *Channel) Listeners(email string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners[email])
}
