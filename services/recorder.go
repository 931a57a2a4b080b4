package services

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"contest-live-service/database"
	"contest-live-service/logger"
)

// FeedRecorder 将上游原始事件归档到数据库, 供赛后重播使用
// 归档的是适配器边界的原始消息, 不是派生状态
type FeedRecorder struct {
	db *sql.DB
}

// NewFeedRecorder 创建归档器
func NewFeedRecorder(db *sql.DB) *FeedRecorder {
	return &FeedRecorder{db: db}
}

// Store 归档一条原始事件, 失败只记录不中断消费
func (r *FeedRecorder) Store(msg database.FeedMessage) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO feed_messages (contest_id, event_type, routing_key, payload, received_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ContestID, msg.EventType, msg.RoutingKey, msg.Payload, msg.ReceivedAt,
	)
	if err != nil {
		logger.Errorf("[FeedRecorder] Failed to store %s event: %v", msg.EventType, err)
	}
}

// LoadFeed 按归档顺序读回某场比赛的全部原始事件
// 回放准备路径用它重建完整的比赛历史
func (r *FeedRecorder) LoadFeed(contestID string) ([]FeedEvent, error) {
	rows, err := r.db.Query(
		`SELECT id, contest_id, event_type, routing_key, payload, received_at
		 FROM feed_messages WHERE contest_id = $1 ORDER BY id`,
		contestID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query feed messages")
	}
	defer rows.Close()

	var messages []database.FeedMessage
	for rows.Next() {
		var msg database.FeedMessage
		if err := rows.Scan(&msg.ID, &msg.ContestID, &msg.EventType, &msg.RoutingKey, &msg.Payload, &msg.ReceivedAt); err != nil {
			return nil, errors.Wrap(err, "scan feed message")
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return decodeArchivedEvents(messages), nil
}

// decodeArchivedEvents 解码归档消息, 坏记录跳过不中断
func decodeArchivedEvents(messages []database.FeedMessage) []FeedEvent {
	var events []FeedEvent
	for _, msg := range messages {
		var event FeedEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			logger.Errorf("[FeedRecorder] Skipping malformed archived event %d: %v", msg.ID, err)
			continue
		}
		events = append(events, event)
	}
	return events
}

// Count 某场比赛的归档事件数
func (r *FeedRecorder) Count(contestID string) (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM feed_messages WHERE contest_id = $1`,
		contestID,
	).Scan(&count)
	return count, err
}
