package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/creditsync/app/models"
	"github.com/ManuelReschke/creditsync/internal/pkg/cache"
	"github.com/ManuelReschke/creditsync/internal/pkg/database"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const webhookOutcomesKey = "billing:counters:webhooks"

const fieldSep = "|"

// AddWebhookOutcome increments the pending counter for one event type and
// outcome in Redis.
func AddWebhookOutcome(eventType, outcome string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookOutcomesKey, eventType+fieldSep+outcome, 1).Err()
}

// Snapshot returns the pending (not yet flushed) counters as
// event type -> outcome -> count.
func Snapshot() (map[string]map[string]int64, error) {
	ctx := context.Background()
	data, err := cache.GetClient().HGetAll(ctx, webhookOutcomesKey).Result()
	if err != nil {
		return nil, err
	}
	return parseCounters(data), nil
}

// FlushAll drains the Redis counters into the webhook_stats table.
func FlushAll() error {
	return flushHashToTable(webhookOutcomesKey, database.GetDB(), time.Now())
}

func parseCounters(data map[string]string) map[string]map[string]int64 {
	out := make(map[string]map[string]int64)
	for k, v := range data {
		eventType, outcome, ok := strings.Cut(k, fieldSep)
		if !ok {
			continue
		}
		inc, err := strconv.ParseInt(v, 10, 64)
		if err != nil || inc == 0 {
			continue
		}
		if out[eventType] == nil {
			out[eventType] = make(map[string]int64)
		}
		out[eventType][outcome] += inc
	}
	return out
}

// flushHashToTable drains a Redis hash atomically and adds its counts to the
// day's webhook_stats rows. Uses RENAME to a temporary key for atomic drain
// without losing in-flight increments. If the database write fails the counts
// are added back to the live hash.
func flushHashToTable(redisKey string, db *gorm.DB, now time.Time) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, now.UnixNano())
	if err := rdb.Rename(ctx, redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		return err
	}

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	counts := parseCounters(data)
	if len(counts) == 0 {
		return rdb.Del(ctx, tmpKey).Err()
	}

	if err := writeStats(db, counts, now); err != nil {
		if restoreErr := restoreCounters(ctx, rdb, redisKey, tmpKey, counts); restoreErr != nil {
			return fmt.Errorf("counter: flush failed (%v), restore failed, counts kept in %s: %w", err, tmpKey, restoreErr)
		}
		return err
	}
	return rdb.Del(ctx, tmpKey).Err()
}

func writeStats(db *gorm.DB, counts map[string]map[string]int64, now time.Time) error {
	utc := now.UTC()
	day := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	return db.Transaction(func(tx *gorm.DB) error {
		for eventType, outcomes := range counts {
			for outcome, inc := range outcomes {
				row := &models.WebhookStat{Day: day, EventType: eventType, Outcome: outcome, Count: inc}
				err := tx.Clauses(clause.OnConflict{
					Columns: []clause.Column{{Name: "day"}, {Name: "event_type"}, {Name: "outcome"}},
					DoUpdates: clause.Assignments(map[string]interface{}{
						"count":      gorm.Expr("webhook_stats.count + ?", inc),
						"updated_at": now,
					}),
				}).Create(row).Error
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// restoreCounters adds drained counts back onto the live hash and drops the
// temporary key in one MULTI block.
func restoreCounters(ctx context.Context, rdb *redis.Client, redisKey, tmpKey string, counts map[string]map[string]int64) error {
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for eventType, outcomes := range counts {
			for outcome, inc := range outcomes {
				pipe.HIncrBy(ctx, redisKey, eventType+fieldSep+outcome, inc)
			}
		}
		pipe.Del(ctx, tmpKey)
		return nil
	})
	return err
}
