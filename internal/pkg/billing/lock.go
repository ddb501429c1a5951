package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultEventLockTTL = 2 * time.Minute

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// EventLock keeps two deliveries of the same event from being processed at
// the same time. The database constraints stay the real guard; the lock only
// turns a concurrent redelivery into a fast retryable rejection.
type EventLock struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewEventLock returns a lock backed by client. A nil client disables locking.
func NewEventLock(client redis.UniversalClient, ttl time.Duration) *EventLock {
	if ttl <= 0 {
		ttl = defaultEventLockTTL
	}
	return &EventLock{client: client, ttl: ttl}
}

// Acquire takes the lock for eventID. It returns ErrEventInFlight if another
// worker holds it. When Redis is unreachable the event proceeds unlocked.
func (l *EventLock) Acquire(ctx context.Context, eventID string) (func(), error) {
	unlock := func() {}
	if l == nil || l.client == nil || eventID == "" {
		return unlock, nil
	}

	key := fmt.Sprintf("billing:webhook:lock:%s", eventID)
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		log.Warnf("[Billing] event lock unavailable for %s, continuing without it: %v", eventID, err)
		return unlock, nil
	}
	if !ok {
		return nil, ErrEventInFlight
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			log.Warnf("[Billing] could not release event lock %s: %v", key, err)
		}
	}, nil
}
