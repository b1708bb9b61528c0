package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/curatarr/curatarr/internal/logger"
)

// EventBus is the in-process publish/subscribe bus.
type EventBus interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Publish(ctx context.Context, event Event) error
	PublishAsync(event Event)
	Subscribe(filter EventFilter, handler EventHandler) (*Subscription, error)
	Unsubscribe(subscriptionID string) error
	Health() error
}

type eventBus struct {
	bufferSize int

	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	eventChannel  chan Event
	running       bool
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewEventBus creates a new event bus with the given channel buffer size.
func NewEventBus(bufferSize int) EventBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &eventBus{
		bufferSize:    bufferSize,
		subscriptions: make(map[string]*Subscription),
		eventChannel:  make(chan Event, bufferSize),
		stopCh:        make(chan struct{}),
	}
}

// Start starts the event processor goroutine.
func (eb *eventBus) Start(ctx context.Context) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.running {
		return fmt.Errorf("event bus is already running")
	}

	eb.running = true
	eb.stopCh = make(chan struct{})

	eb.wg.Add(1)
	go eb.processEvents(ctx)

	logger.Info("Event bus started", "buffer_size", eb.bufferSize)
	return nil
}

// Stop stops the event bus gracefully.
func (eb *eventBus) Stop(ctx context.Context) error {
	eb.mu.Lock()
	if !eb.running {
		eb.mu.Unlock()
		return nil
	}
	eb.running = false
	eb.mu.Unlock()

	close(eb.stopCh)

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Event bus stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Event bus stop timed out")
		return ctx.Err()
	}
}

// Publish publishes an event, blocking until accepted or the context ends.
func (eb *eventBus) Publish(ctx context.Context, event Event) error {
	if err := eb.prepare(&event); err != nil {
		return err
	}

	select {
	case eb.eventChannel <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAsync publishes without blocking; a full channel drops the event.
// Dropping is acceptable because events are pure invalidations and clients
// can always resync.
func (eb *eventBus) PublishAsync(event Event) {
	if err := eb.prepare(&event); err != nil {
		logger.Warn("Dropping invalid event: %v", err)
		return
	}

	select {
	case eb.eventChannel <- event:
	default:
		logger.Warn("Event channel full, dropping event", "event_type", string(event.Type))
	}
}

func (eb *eventBus) prepare(event *Event) error {
	eb.mu.RLock()
	running := eb.running
	eb.mu.RUnlock()
	if !running {
		return fmt.Errorf("event bus is not running")
	}

	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.Source == "" {
		return fmt.Errorf("event source is required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return nil
}

// Subscribe registers a handler for events matching the filter.
func (eb *eventBus) Subscribe(filter EventFilter, handler EventHandler) (*Subscription, error) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subscription := &Subscription{
		ID:      "sub-" + uuid.NewString(),
		Filter:  filter,
		Handler: handler,
		Created: time.Now(),
	}

	eb.subscriptions[subscription.ID] = subscription
	logger.Debug("New subscription created", "subscription_id", subscription.ID)
	return subscription, nil
}

// Unsubscribe removes a subscription.
func (eb *eventBus) Unsubscribe(subscriptionID string) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, exists := eb.subscriptions[subscriptionID]; !exists {
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}

	delete(eb.subscriptions, subscriptionID)
	return nil
}

// Health reports whether the bus is running and not severely backed up.
func (eb *eventBus) Health() error {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if !eb.running {
		return fmt.Errorf("event bus is not running")
	}

	usage := float64(len(eb.eventChannel)) / float64(cap(eb.eventChannel))
	if usage > 0.9 {
		return fmt.Errorf("event channel is %d%% full", int(usage*100))
	}

	return nil
}

func (eb *eventBus) processEvents(ctx context.Context) {
	defer eb.wg.Done()

	for {
		select {
		case <-eb.stopCh:
			return
		case <-ctx.Done():
			return
		case event := <-eb.eventChannel:
			eb.dispatch(event)
		}
	}
}

func (eb *eventBus) dispatch(event Event) {
	eb.mu.RLock()
	var matching []*Subscription
	for _, sub := range eb.subscriptions {
		if sub.Filter.Matches(event) {
			matching = append(matching, sub)
		}
	}
	eb.mu.RUnlock()

	for _, sub := range matching {
		eb.notify(sub, event)
	}
}

func (eb *eventBus) notify(subscription *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in event handler", "subscription_id", subscription.ID, "error", fmt.Sprint(r))
		}
	}()

	if err := subscription.Handler(event); err != nil {
		logger.Error("Event handler error", "subscription_id", subscription.ID, "error", err.Error())
	}
}
