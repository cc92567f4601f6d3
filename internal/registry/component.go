package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/ocx/donationbox/internal/gpioevent"
)

// Lifecycle is a component's position in its registration lifecycle.
type Lifecycle int

const (
	Unregistered Lifecycle = iota
	Registered
	Started
	Stopped
)

func (l Lifecycle) String() string {
	switch l {
	case Unregistered:
		return "unregistered"
	case Registered:
		return "registered"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Handler processes one event for a component, given the resolved
// dependency container.
type Handler func(ctx context.Context, event gpioevent.Event, c *Container) error

// Component is a logical hardware device: a button, the coin validator.
// Its handler table is built once at construction — no dynamic
// registration by decorator or reflection.
type Component struct {
	ID       string
	handlers map[string]Handler

	mu    sync.Mutex
	state Lifecycle

	bind    func(ctx context.Context) error
	release func(ctx context.Context) error
}

// NewComponent builds a component with a fixed handler table. bind/release
// may be nil for components with no hardware resources to acquire.
func NewComponent(id string, handlers map[string]Handler, bind, release func(ctx context.Context) error) *Component {
	return &Component{
		ID:       id,
		handlers: handlers,
		state:    Unregistered,
		bind:     bind,
		release:  release,
	}
}

// HandlersFor returns the handlers declared for eventType, possibly empty.
func (c *Component) HandlersFor(eventType string) []Handler {
	if h, ok := c.handlers[eventType]; ok {
		return []Handler{h}
	}
	return nil
}

// State reports the component's current lifecycle state.
func (c *Component) State() Lifecycle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Component) markRegistered() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Registered
}

// Start binds the component's hardware resources, if any.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Started {
		return nil
	}
	if c.bind != nil {
		if err := c.bind(ctx); err != nil {
			return fmt.Errorf("registry: start component %s: %w", c.ID, err)
		}
	}
	c.state = Started
	return nil
}

// Stop releases the component's hardware resources, if any.
func (c *Component) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Started {
		c.state = Stopped
		return nil
	}
	if c.release != nil {
		if err := c.release(ctx); err != nil {
			c.state = Stopped
			return fmt.Errorf("registry: stop component %s: %w", c.ID, err)
		}
	}
	c.state = Stopped
	return nil
}
