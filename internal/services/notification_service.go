package services

import (
	"context"
	"sync"

	"github.com/crackops/taskforge/pkg/debug"
)

// Notification topics published by the scheduling core.
const (
	TopicTaskCompleted     = "task.completed"
	TopicTaskAbandoned     = "task.abandoned"
	TopicAttackFinished    = "attack.finished"
	TopicCampaignCompleted = "campaign.completed"
	TopicHashCracked       = "hash.cracked"
)

// Notifier delivers a notification to some outside channel. Implementations
// must be safe for concurrent use. Delivery is best effort; errors are logged
// and never propagate into lifecycle transitions.
type Notifier interface {
	Notify(ctx context.Context, topic string, payload map[string]interface{}) error
}

// NoopNotifier discards all notifications.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, string, map[string]interface{}) error { return nil }

// Dispatcher fans notifications out to registered notifiers asynchronously.
// Instances are injected wherever notifications are emitted; there is no
// package-level dispatcher.
type Dispatcher struct {
	mu        sync.RWMutex
	notifiers []Notifier
	wg        sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given notifiers.
func NewDispatcher(notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers}
}

// Register adds a notifier.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	d.notifiers = append(d.notifiers, n)
	d.mu.Unlock()
}

// Dispatch delivers the notification to every notifier in the background.
// It never blocks the caller and never returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, topic string, payload map[string]interface{}) {
	d.mu.RLock()
	notifiers := make([]Notifier, len(d.notifiers))
	copy(notifiers, d.notifiers)
	d.mu.RUnlock()

	for _, n := range notifiers {
		d.wg.Add(1)
		go func(n Notifier) {
			defer d.wg.Done()
			if err := n.Notify(context.WithoutCancel(ctx), topic, payload); err != nil {
				debug.Error("Notification delivery failed for topic %s: %v", topic, err)
			}
		}(n)
	}
}

// Wait blocks until all in-flight deliveries finish. Used in tests and
// shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
