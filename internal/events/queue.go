package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/cart-engine/internal/cart"
)

// TaskCartEvent is the asynq task type carrying a forwarded cart event.
const TaskCartEvent = "cart:event"

// Enqueuer is the subset of *asynq.Client used to forward events.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EventTask is the body of a TaskCartEvent task.
type EventTask struct {
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// QueueNotifier forwards completed cart events to an asynq queue. Only the
// "after" phases are forwarded unless Phases says otherwise.
type QueueNotifier struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
	Phases   []string
	now      func() time.Time
}

// DefaultForwardedPhases lists the phases that describe a state change already applied.
func DefaultForwardedPhases() []string {
	return []string{cart.PhaseCreated, cart.PhaseAdded, cart.PhaseUpdated, cart.PhaseRemoved, cart.PhaseCleared}
}

// Notify implements Notifier.
func (n QueueNotifier) Notify(ctx context.Context, name string, payload []byte) error {
	if n.Client == nil || !n.forwards(name) {
		return nil
	}
	task, err := NewEventTask(name, payload, n.clock())
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.MaxRetry(n.maxRetry())}
	if n.Queue != "" {
		opts = append(opts, asynq.Queue(n.Queue))
	}
	if _, err := n.Client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", name, err)
	}
	return nil
}

func (n QueueNotifier) forwards(name string) bool {
	phases := n.Phases
	if len(phases) == 0 {
		phases = DefaultForwardedPhases()
	}
	_, phase := Split(name)
	for _, p := range phases {
		if p == phase || p == Wildcard {
			return true
		}
	}
	return false
}

func (n QueueNotifier) maxRetry() int {
	if n.MaxRetry <= 0 {
		return 5
	}
	return n.MaxRetry
}

func (n QueueNotifier) clock() time.Time {
	if n.now != nil {
		return n.now()
	}
	return time.Now().UTC()
}

// NewEventTask wraps an encoded event into a TaskCartEvent task.
func NewEventTask(name string, payload []byte, at time.Time) (*asynq.Task, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	body, err := json.Marshal(EventTask{Event: name, Payload: payload, OccurredAt: at})
	if err != nil {
		return nil, fmt.Errorf("encode event task: %w", err)
	}
	return asynq.NewTask(TaskCartEvent, body), nil
}

// DecodeEventTask reads the body of a TaskCartEvent task.
func DecodeEventTask(t *asynq.Task) (EventTask, cart.Event, error) {
	var body EventTask
	if t == nil || t.Type() != TaskCartEvent {
		return body, cart.Event{}, fmt.Errorf("events: unexpected task type")
	}
	if err := json.Unmarshal(t.Payload(), &body); err != nil {
		return body, cart.Event{}, fmt.Errorf("decode event task: %w", err)
	}
	var ev cart.Event
	if err := json.Unmarshal(body.Payload, &ev); err != nil {
		return body, cart.Event{}, fmt.Errorf("decode cart event: %w", err)
	}
	return body, ev, nil
}
