package models

import "time"

// WebhookStat accumulates webhook outcomes per day and event type. Rows are
// fed from the Redis counters by a periodic flush.
type WebhookStat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Day       time.Time `gorm:"type:date;not null;uniqueIndex:ux_webhook_stats_day_type_outcome,priority:1" json:"day"`
	EventType string    `gorm:"type:varchar(100);not null;uniqueIndex:ux_webhook_stats_day_type_outcome,priority:2" json:"event_type"`
	Outcome   string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_webhook_stats_day_type_outcome,priority:3" json:"outcome"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WebhookStat) TableName() string {
	return "webhook_stats"
}
