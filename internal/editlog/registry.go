package editlog

import (
	"context"
	"sync"
)

// MultiRelay 把一个批次同时交给多个 Relay（比如 Kafka + 房间内 ws 连接）。
// 每一路都是尽力而为，互相不影响。
type MultiRelay []Relay

func (m MultiRelay) BroadcastBatch(sessionID string, b Batch) {
	for _, r := range m {
		r.BroadcastBatch(sessionID, b)
	}
}

func (m MultiRelay) BroadcastContent(sessionID string, content string, timestamp int64) {
	for _, r := range m {
		r.BroadcastContent(sessionID, content, timestamp)
	}
}

// Registry 持有所有活跃会话的内存状态（类似引擎的 docs map）。
// 依赖注入：存储和 relay 只声明接口，实现在 store / relay 包。
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	store LogStore
	relay Relay
	cfg   SessionConfig
}

func NewRegistry(store LogStore, relay Relay, cfg SessionConfig) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		store:    store,
		relay:    relay,
		cfg:      cfg,
	}
}

// GetOrCreate 取出或创建指定会话
func (r *Registry) GetOrCreate(sessionID, initialContent string) *Session {
	r.mu.RLock()
	s := r.sessions[sessionID]
	r.mu.RUnlock()
	if s != nil {
		return s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s = r.sessions[sessionID]; s == nil {
		s = NewSession(sessionID, initialContent, r.cfg, r.store, r.relay)
		r.sessions[sessionID] = s
	}
	return s
}

// Get 只查不建
func (r *Registry) Get(sessionID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}

// Close 结束并移除一个会话
func (r *Registry) Close(ctx context.Context, sessionID string) {
	r.mu.Lock()
	s := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if s != nil {
		s.Close(ctx)
	}
}
