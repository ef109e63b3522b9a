package editlog

import (
	"context"
	"log"
	"sync"
	"time"
)

// LogStore 持久化存储接口，按 sessionID 做键。
// 实现要求：单行事务语义、ListEvents 保持写入顺序、
// ListSnapshots 按时间戳降序返回（重建从最近的快照往回扫）、
// 重复 (sessionID, eventIndex) 追加幂等。实现在 store 包。
type LogStore interface {
	StoreBatch(ctx context.Context, sessionID string, b Batch) error
	StoreSnapshot(ctx context.Context, sessionID string, s Snapshot) error
	ListSnapshots(ctx context.Context, sessionID string) ([]Snapshot, error)
	ListEvents(ctx context.Context, sessionID string, fromEventIndex int64, toTimestamp int64) ([]Event, error)
}

// Relay 尽力广播接口。不保证送达，实现永远不能把失败抛回来。
// 永远不是正确性依赖。
type Relay interface {
	BroadcastBatch(sessionID string, b Batch)
	BroadcastContent(sessionID string, content string, timestamp int64)
}

// 未录制时向 Relay 同步内容的最小间隔
const contentSyncInterval = time.Second

// SessionConfig 会话级配置：批处理档位 + 快照节奏，会话启动时注入。
// 两套阈值互相独立 —— 换节奏做测试不需要改全局常量。
type SessionConfig struct {
	Mode               Mode
	BatchThresholds    *BatchThresholds // nil 则按 Mode 取默认
	SnapshotThresholds *SnapshotThresholds
}

// Session 一次配对到断开的编辑会话聚合：当前内容、事件序号、
// 录制开关、批累加器、快照策略。
// 捕获是单写者：编辑从一个输入源串行到达；flush 的存储/广播
// 可以和后续 ApplyEdit 并发跑（pending 缓冲在 flush 时整体换新）。
type Session struct {
	mu      sync.Mutex
	id      string
	content string
	// 日志里反映到的内容：最后一个已记录事件折叠后的结果。
	// 暂停期间 content 会漂移，恢复录制时靠它判断要不要补事件
	loggedContent string
	// 下一个事件的序号（已接受事件的总数）
	nextEventIndex int64
	recording      bool
	// 显式的收尾标志（不要用外部 channel 对象做弱表键来记"正在关闭"）
	closed bool
	mode   Mode

	acc    *Accumulator
	policy *SnapshotPolicy
	store  LogStore
	relay  Relay

	lastContentSync time.Time
	// 丢掉的批次数。补不回来，但要能看见（replay 缺口可检测）
	droppedBatches int

	now func() time.Time
}

func NewSession(id, initialContent string, cfg SessionConfig, store LogStore, relay Relay) *Session {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeRealtime
	}
	bth := ThresholdsForMode(mode)
	if cfg.BatchThresholds != nil {
		bth = *cfg.BatchThresholds
	}
	sth := DefaultSnapshotThresholds()
	if cfg.SnapshotThresholds != nil {
		sth = *cfg.SnapshotThresholds
	}

	s := &Session{
		id:            id,
		content:       initialContent,
		loggedContent: initialContent,
		mode:          mode,
		policy:        NewSnapshotPolicy(sth),
		store:         store,
		relay:         relay,
		now:           time.Now,
	}
	// 定时器路径的 flush 也走同一个持久化入口
	s.acc = NewAccumulator(bth, func(b Batch) {
		s.persistBatch(context.Background(), b)
	})
	return s
}

func (s *Session) ID() string { return s.id }

// Content 当前文档内容
func (s *Session) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

// Recording 是否在录制
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Mode 当前档位
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// DroppedBatches 因存储失败被丢掉的批次数
func (s *Session) DroppedBatches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.droppedBatches
}

// SetMode 切换档位。新阈值只对之后的事件生效，pending 不受影响。
func (s *Session) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m != ModeRealtime && m != ModePlayback && m != ModeArchive {
		return
	}
	s.mode = m
	s.acc.SetThresholds(ThresholdsForMode(m))
}

// StartRecording 打开录制开关。
// 先落基准快照（全新会话 eventIndex = -1），写不进去就拒绝开录 ——
// 没有基准快照的事件流重建不出来，不如一开始就失败。
// 恢复录制时如果内容在暂停期间变过，nextEventIndex-1 这个序号已经
// 被之前的事件/快照占了，不能复用：先合成一条 replace 事件把暂停
// 期间的改动并入日志，快照挂在它后面的新序号上。
func (s *Session) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.recording {
		return nil
	}

	snapIndex := s.nextEventIndex - 1
	if s.nextEventIndex > 0 && s.content != s.loggedContent {
		ev := Classify(s.loggedContent, s.content, 0, len([]rune(s.loggedContent)), s.content, s.now().UnixMilli())
		ev.EventIndex = s.nextEventIndex
		b := Batch{StartTime: ev.Timestamp, EndTime: ev.Timestamp, Events: []Event{ev}}
		if err := s.store.StoreBatch(ctx, s.id, b); err != nil {
			return err
		}
		s.nextEventIndex++
		// 事件已经落了：快照这一步失败重试时不要再合成一次
		s.loggedContent = s.content
		if s.relay != nil {
			s.relay.BroadcastBatch(s.id, b)
		}
		snapIndex = ev.EventIndex
	}

	snap := Snapshot{
		Timestamp:  s.now().UnixMilli(),
		Content:    s.content,
		EventIndex: snapIndex,
	}
	if err := s.store.StoreSnapshot(ctx, s.id, snap); err != nil {
		return err
	}
	s.loggedContent = s.content
	s.policy.Commit()
	s.recording = true
	return nil
}

// StopRecording 关录制。强制 flush 掉 pending 的最后一批，
// 在途的存储写入不取消，让它自己完成或失败。
func (s *Session) StopRecording(ctx context.Context) {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return
	}
	s.recording = false
	s.mu.Unlock()

	if b := s.acc.FlushNow(); b != nil {
		s.persistBatch(ctx, *b)
	}
}

// Close 会话收尾：停录制、撤定时器。之后 ApplyEdit 一律拒绝。
func (s *Session) Close(ctx context.Context) {
	s.StopRecording(ctx)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.acc.Stop()
}

// ApplyEdit 捕获一次编辑。链路上的失败不往编辑 UI 抛 ——
// 最坏结果是某个批次/快照丢了，打字永远不被阻塞。
// 返回生成的事件（未录制时 eventIndex 不推进）。
func (s *Session) ApplyEdit(ctx context.Context, from, to int, insertedText string) (Event, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Event{}, ErrSessionClosed
	}

	prev := s.content
	if from < 0 || to < from || to > len([]rune(prev)) {
		// clamp 后继续，捕获链路不因为坏坐标阻塞
		log.Printf("%v: clamping session=%s from=%d to=%d len=%d",
			ErrInvalidRange, s.id, from, to, len([]rune(prev)))
	}
	next := spliceContent(prev, from, to, insertedText)
	ev := Classify(prev, next, from, to, insertedText, s.now().UnixMilli())
	s.content = next

	if !s.recording {
		// 未录制：不产生任何持久化写入，只做轻量内容同步（限频）
		doSync := s.now().Sub(s.lastContentSync) >= contentSyncInterval
		if doSync {
			s.lastContentSync = s.now()
		}
		s.mu.Unlock()
		if doSync && s.relay != nil {
			s.relay.BroadcastContent(s.id, next, ev.Timestamp)
		}
		return ev, nil
	}

	ev.EventIndex = s.nextEventIndex
	s.nextEventIndex++
	s.loggedContent = next

	batch := s.acc.Offer(ev)
	shouldSnap := s.policy.Offer(ev)
	content := s.content
	s.mu.Unlock()

	if batch != nil {
		// 异步落批：pending 已经换新，批内事件顺序原样保留；
		// 多个在途批可以乱序完成。与调用方的请求生命周期脱钩 ——
		// handler 返回、请求 ctx 取消，不影响在途的存储写入
		go s.persistBatch(context.WithoutCancel(ctx), *batch)
	}

	if shouldSnap {
		snap := s.policy.Build(content, ev.EventIndex)
		if err := s.store.StoreSnapshot(ctx, s.id, snap); err != nil {
			// 计数不动，下一个事件用同样的累计变更量重新评估
			log.Printf("%v: snapshot skipped, keep counters session=%s idx=%d err=%v",
				ErrStoreWriteFailed, s.id, ev.EventIndex, err)
		} else {
			s.policy.Commit()
		}
	}

	return ev, nil
}

// persistBatch 批次双写：Relay 尽力广播（失败由 relay 内部吞掉），
// 存储失败打日志、丢批、继续收新事件 —— 至多一次投递，不重排队，
// 避免存储长时间故障时内存无限膨胀。
func (s *Session) persistBatch(ctx context.Context, b Batch) {
	if s.relay != nil {
		s.relay.BroadcastBatch(s.id, b)
	}
	if err := s.store.StoreBatch(ctx, s.id, b); err != nil {
		s.mu.Lock()
		s.droppedBatches++
		s.mu.Unlock()
		log.Printf("%v: drop batch session=%s events=%d start=%d err=%v",
			ErrStoreWriteFailed, s.id, len(b.Events), b.StartTime, err)
	}
}
