package editlog

import (
	"sync"
	"time"
)

// SnapshotPolicy 决定什么时候值得落一个全量检查点。
// 维护三个计数：上次快照以来的累计变更量 Σ|ins−rem|、事件数、流逝时间。
// 规则：
//   - 累计变更量没到 MinChanges 门槛，永远不拍（防止大量小编辑刷快照）
//   - 门槛达到后，时间阈值 / 事件数阈值 / 当前事件显著，谁先到谁触发
//   - 触发时累计变更量 ≥ 2× 门槛的标记为 key frame，下游可以优先选它做 seek 点
//
// 计数只在 Commit（持久化成功）时清零；持久化失败就什么都不动，
// 同样的累计变更量下一个事件会重新评估，不留静默丢数据窗口。
type SnapshotPolicy struct {
	mu           sync.Mutex
	thresholds   SnapshotThresholds
	cumChange    int
	eventCount   int
	lastSnapshot time.Time

	now func() time.Time
}

func NewSnapshotPolicy(th SnapshotThresholds) *SnapshotPolicy {
	return &SnapshotPolicy{
		thresholds:   th,
		lastSnapshot: time.Now(),
		now:          time.Now,
	}
}

// Offer 记入一个事件，返回是否应该拍快照
func (p *SnapshotPolicy) Offer(ev Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cumChange += ev.ChangeMagnitude
	p.eventCount++

	if p.cumChange < p.thresholds.MinChanges {
		return false
	}
	if ev.Significant {
		return true
	}
	if p.eventCount >= p.thresholds.EventCount {
		return true
	}
	return p.now().Sub(p.lastSnapshot) >= time.Duration(p.thresholds.TimeMS)*time.Millisecond
}

// Build 构造快照。不动计数 —— 只有 Commit 才清零，
// 这样持久化失败时计数天然保持 attempt 之前的值。
func (p *SnapshotPolicy) Build(content string, eventIndex int64) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Timestamp:  p.now().UnixMilli(),
		Content:    content,
		EventIndex: eventIndex,
		IsKeyFrame: p.cumChange >= 2*p.thresholds.MinChanges,
	}
}

// Commit 持久化成功后调用，计数清零、时间基准重置
func (p *SnapshotPolicy) Commit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cumChange = 0
	p.eventCount = 0
	p.lastSnapshot = p.now()
}

// CumulativeChange 当前累计变更量（测试/状态观察用）
func (p *SnapshotPolicy) CumulativeChange() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cumChange
}
