package editlog

import (
	"sync"
	"time"
)

// Accumulator 把连续事件按当前档位阈值攒成 Batch。
// 状态机：Idle（无 pending）→ Accumulating（≥1 条 pending，定时器已挂）→ flush → Idle。
// 单写者模型：offer 串行到达；flush 出来的 Batch 交给异步 IO 后，
// pending 缓冲已经整体换新，新事件攒进新缓冲，互不干扰。
type Accumulator struct {
	mu        sync.Mutex
	pending   []Event
	lastFlush time.Time
	// 延迟 flush 定时器。重挂（debounce），不会叠加多个
	timer      *time.Timer
	thresholds BatchThresholds

	// 定时器触发的 flush 从这里交出去；Offer 路径的 flush 由调用方拿返回值
	onFlush func(Batch)

	// 测试可替换
	now func() time.Time
}

func NewAccumulator(th BatchThresholds, onFlush func(Batch)) *Accumulator {
	return &Accumulator{
		thresholds: th,
		onFlush:    onFlush,
		lastFlush:  time.Now(),
		now:        time.Now,
	}
}

// SetThresholds 切换档位。只影响之后的 offer，
// 不会回头重新评估已经 pending 的事件。
func (a *Accumulator) SetThresholds(th BatchThresholds) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.thresholds = th
}

// Offer 追加一个事件并评估 flush 谓词。
// 命中（数量 / 距上次 flush 时间 / 显著事件）就立刻吐出 Batch；
// 没命中就重挂一个 TimeMS 后的延迟 flush。
func (a *Accumulator) Offer(ev Event) *Batch {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending = append(a.pending, ev)

	// 显著事件不允许等定时器
	if ev.Significant ||
		len(a.pending) >= a.thresholds.Count ||
		a.now().Sub(a.lastFlush) >= time.Duration(a.thresholds.TimeMS)*time.Millisecond {
		return a.drainLocked()
	}

	a.armTimerLocked()
	return nil
}

// FlushNow 立刻清空 pending。空的时候返回 nil，绝不产出零事件 Batch。
func (a *Accumulator) FlushNow() *Batch {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.drainLocked()
}

// Stop 撤掉挂着的定时器（会话收尾用）
func (a *Accumulator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// Pending 当前攒着的事件数
func (a *Accumulator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func (a *Accumulator) drainLocked() *Batch {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if len(a.pending) == 0 {
		return nil
	}
	// 整体拿走，pending 换成全新切片（drain-and-reset 一步完成），
	// 在途 Batch 和后续 offer 不共享底层数组
	events := a.pending
	a.pending = nil
	a.lastFlush = a.now()
	return &Batch{
		StartTime: events[0].Timestamp,
		EndTime:   events[len(events)-1].Timestamp,
		Events:    events,
	}
}

func (a *Accumulator) armTimerLocked() {
	if a.timer != nil {
		// debounce：替换旧定时器，不叠加
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(time.Duration(a.thresholds.TimeMS)*time.Millisecond, func() {
		b := a.FlushNow()
		if b == nil {
			return
		}
		if a.onFlush != nil {
			a.onFlush(*b)
		}
	})
}
