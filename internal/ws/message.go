package ws

import "sessionRelay/internal/editlog"

// ClientMessage 入站消息。type 决定用哪些字段。
type ClientMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	// edit：变更前文档的 [from, to) 区间 + 插入文本
	From int    `json:"from"`
	To   int    `json:"to"`
	Text string `json:"text,omitempty"`
	// set_mode
	Mode string `json:"mode,omitempty"`
	// start_recording 时可携带初始内容（浏览器端先行打开的文件）
	Content string `json:"content,omitempty"`
}

// ServerMessage 通用出站消息
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Content   string `json:"content,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Recording bool   `json:"recording,omitempty"`
	// 丢批计数，遥控端用来提示 replay 可能有缺口
	DroppedBatches int `json:"droppedBatches,omitempty"`
}

// BatchBroadcastMessage 批次落盘后对房间内其它端的回放推送
type BatchBroadcastMessage struct {
	Type      string        `json:"type"` // 固定 "batch"
	SessionID string        `json:"sessionId"`
	Batch     editlog.Batch `json:"batch"`
}

// ContentSyncMessage 未录制时的全量内容同步
type ContentSyncMessage struct {
	Type      string `json:"type"` // 固定 "content_sync"
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// OutboundMessage 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

func (m ServerMessage) MessageType() string         { return m.Type }
func (m BatchBroadcastMessage) MessageType() string { return m.Type }
func (m ContentSyncMessage) MessageType() string    { return m.Type }
