package events

import (
	"context"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/cart-engine/internal/cart"
)

// Activity keeps a sorted set of cart sessions scored by their last change, so
// idle carts can be listed by age.
type Activity struct {
	Client *redis.Client
	Key    string
}

func (a Activity) key() string {
	if a.Key == "" {
		return "cart:activity"
	}
	return a.Key
}

// Record updates the session touched by ev. A cleared cart leaves the index.
func (a Activity) Record(ctx context.Context, task EventTask, ev cart.Event) error {
	if a.Client == nil {
		return errors.New("events: activity store not configured")
	}
	member := ev.Instance + ":" + ev.SessionKey
	if ev.SessionKey == "" {
		return nil
	}
	_, phase := Split(task.Event)
	if phase == cart.PhaseCleared {
		return a.Client.ZRem(ctx, a.key(), member).Err()
	}
	at := task.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return a.Client.ZAdd(ctx, a.key(), redis.Z{Score: float64(at.Unix()), Member: member}).Err()
}

// Idle returns "<instance>:<session>" members untouched since before cutoff, oldest first.
func (a Activity) Idle(ctx context.Context, cutoff time.Time, limit int64) ([]string, error) {
	if a.Client == nil {
		return nil, errors.New("events: activity store not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	return a.Client.ZRangeByScore(ctx, a.key(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(cutoff.Unix(), 10),
		Count: limit,
	}).Result()
}
