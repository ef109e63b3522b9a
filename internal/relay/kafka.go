package relay

import "sessionRelay/internal/editlog"

// 事件类型
const (
	EventTypeBatch       = "BATCH_FLUSHED"
	EventTypeContentSync = "CONTENT_SYNC"
)

// RelayEvent 广播到 Kafka 的线格式。
// 以 sessionId 做 key，同一会话落同一分区，消费侧天然有序。
type RelayEvent struct {
	EventType string `json:"eventType"` // BATCH_FLUSHED / CONTENT_SYNC
	SessionID string `json:"sessionId"`

	// BATCH_FLUSHED
	StartTime int64           `json:"startTime,omitempty"`
	EndTime   int64           `json:"endTime,omitempty"`
	Events    []editlog.Event `json:"events,omitempty"`

	// CONTENT_SYNC
	Content   string `json:"content,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}
