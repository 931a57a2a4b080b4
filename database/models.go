package database

import (
	"time"
)

// FeedMessage 归档的上游原始事件
type FeedMessage struct {
	ID         int64     `db:"id"`
	ContestID  string    `db:"contest_id"`
	EventType  string    `db:"event_type"`
	RoutingKey string    `db:"routing_key"`
	Payload    string    `db:"payload"`
	ReceivedAt time.Time `db:"received_at"`
	CreatedAt  time.Time `db:"created_at"`
}
