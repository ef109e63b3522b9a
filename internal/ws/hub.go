package ws

import (
	"sync"

	"sessionRelay/internal/cache"
	"sessionRelay/internal/editlog"
)

// Hub 会话房间：一个 sessionID 下挂着配对的两端（遥控端 + 编辑端）。
// 存的是连接不是端 —— 同一端可能重连产生多个连接，广播要逐连接发。
type Hub struct {
	pairing cache.PairingCache
	mu      sync.RWMutex
	// sessionID -> set of connections
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p cache.PairingCache) *Hub {
	return &Hub{pairing: p, rooms: make(map[string]map[*Conn]struct{})}
}

// Join 连接加入会话房间
func (h *Hub) Join(sessionID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[sessionID] == nil {
		h.rooms[sessionID] = make(map[*Conn]struct{})
	}
	h.rooms[sessionID][c] = struct{}{}
}

// Leave 连接离开会话房间
func (h *Hub) Leave(sessionID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[sessionID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, sessionID)
		}
	}
}

// BroadcastBatch 把落盘的批次推给房间内所有连接（编辑端自己也收，
// 便于它核对已持久化进度）。send 队列满就丢，尽力而为。
func (h *Hub) BroadcastBatch(sessionID string, b editlog.Batch) {
	msg := BatchBroadcastMessage{Type: "batch", SessionID: sessionID, Batch: b}
	for _, c := range h.snapshot(sessionID) {
		c.Enqueue(msg)
	}
}

// BroadcastContent 未录制时的内容同步推送
func (h *Hub) BroadcastContent(sessionID string, content string, timestamp int64) {
	msg := ContentSyncMessage{Type: "content_sync", SessionID: sessionID, Content: content, Timestamp: timestamp}
	for _, c := range h.snapshot(sessionID) {
		c.Enqueue(msg)
	}
}

// snapshot 在读锁内拷贝房间成员，广播在锁外做
func (h *Hub) snapshot(sessionID string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.rooms[sessionID]
	out := make([]*Conn, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}
