package editlog

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// memStore 测试用的内存 LogStore。
// 语义对齐 store 包的 MySQL 实现：快照降序、事件按捕获顺序、
// 重复 (sessionID, eventIndex) 的事件/快照幂等丢弃、ctx 取消即失败。
type memStore struct {
	mu           sync.Mutex
	snapshots    []Snapshot
	events       []Event
	batches      []Batch
	snapshotSeen map[int64]bool
	eventSeen    map[int64]bool

	failBatches   bool
	failSnapshots bool
	// 非 nil 时 StoreBatch 先等它关闭（用来卡写入时序）
	gate chan struct{}
}

var errStoreDown = errors.New("store down")

func (m *memStore) StoreBatch(ctx context.Context, sessionID string, b Batch) error {
	if m.gate != nil {
		<-m.gate
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failBatches {
		return errStoreDown
	}
	if m.eventSeen == nil {
		m.eventSeen = make(map[int64]bool)
	}
	m.batches = append(m.batches, b)
	for _, ev := range b.Events {
		if m.eventSeen[ev.EventIndex] {
			continue
		}
		m.eventSeen[ev.EventIndex] = true
		m.events = append(m.events, ev)
	}
	return nil
}

func (m *memStore) StoreSnapshot(ctx context.Context, sessionID string, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSnapshots {
		return errStoreDown
	}
	if m.snapshotSeen == nil {
		m.snapshotSeen = make(map[int64]bool)
	}
	if m.snapshotSeen[s.EventIndex] {
		return nil
	}
	m.snapshotSeen[s.EventIndex] = true
	m.snapshots = append(m.snapshots, s)
	return nil
}

func (m *memStore) ListSnapshots(ctx context.Context, sessionID string) ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, len(m.snapshots))
	copy(out, m.snapshots)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].EventIndex > out[j].EventIndex
	})
	return out, nil
}

func (m *memStore) ListEvents(ctx context.Context, sessionID string, fromEventIndex int64, toTimestamp int64) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events {
		if ev.EventIndex > fromEventIndex && ev.Timestamp <= toTimestamp {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventIndex < out[j].EventIndex })
	return out, nil
}

func (m *memStore) snapshotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}

func (m *memStore) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// memRelay 记录广播调用次数的假 Relay
type memRelay struct {
	mu           sync.Mutex
	batchCalls   int
	contentCalls int
	lastContent  string
}

func (r *memRelay) BroadcastBatch(sessionID string, b Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batchCalls++
}

func (r *memRelay) BroadcastContent(sessionID string, content string, timestamp int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contentCalls++
	r.lastContent = content
}

func (r *memRelay) stats() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batchCalls, r.contentCalls
}
