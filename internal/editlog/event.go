package editlog

// EventKind 编辑事件类型
type EventKind string

const (
	KindInsert  EventKind = "insert"
	KindDelete  EventKind = "delete"
	KindReplace EventKind = "replace"
)

// Event 一次原子文本变更。创建后不可修改。
// Timestamp 用毫秒时间戳（墙钟单调不减，同一 tick 内允许相同）。
// From/To 是变更前文档的偏移区间 [from, to)，以 rune 计。
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp int64     `json:"timestamp"`
	From      int       `json:"from"`
	To        int       `json:"to"`
	// 纯删除时为空
	InsertedText string `json:"insertedText"`
	// 纯插入时为空
	RemovedText string `json:"removedText"`
	// significance 在创建时计算一次，之后不再变
	Significant     bool  `json:"significant"`
	ChangeMagnitude int   `json:"changeMagnitude"`
	EventIndex      int64 `json:"eventIndex"`
}

// Batch 一组连续事件，作为一个传输/存储单元。
// events 非空（空 Batch 永远不会被构造出来）。
type Batch struct {
	StartTime int64   `json:"startTime"`
	EndTime   int64   `json:"endTime"`
	Events    []Event `json:"events"`
}

// Snapshot 全量内容检查点。
// EventIndex 是应用到该点为止的事件序号；初始快照用 -1 哨兵值，
// 表示"任何事件之前的初始内容"。
type Snapshot struct {
	Timestamp  int64  `json:"timestamp"`
	Content    string `json:"content"`
	EventIndex int64  `json:"eventIndex"`
	IsKeyFrame bool   `json:"isKeyFrame"`
	// AI 摘要占位，核心不填
	Description string `json:"description"`
}

// Mode 批处理节奏档位，只影响阈值，不影响数据形状
type Mode string

const (
	ModeRealtime Mode = "REALTIME"
	ModePlayback Mode = "PLAYBACK"
	ModeArchive  Mode = "ARCHIVE"
)

// BatchThresholds 批量触发阈值：达到 Count 条，或距上次 flush 超过 TimeMS 毫秒
type BatchThresholds struct {
	Count  int   `mapstructure:"count" json:"count"`
	TimeMS int64 `mapstructure:"timeMs" json:"timeMs"`
}

// ThresholdsForMode 各档位默认阈值。
// REALTIME 对齐帧率节奏，ARCHIVE 追求大批量省带宽。
func ThresholdsForMode(m Mode) BatchThresholds {
	switch m {
	case ModePlayback:
		return BatchThresholds{Count: 10, TimeMS: 100}
	case ModeArchive:
		return BatchThresholds{Count: 100, TimeMS: 1000}
	default:
		return BatchThresholds{Count: 2, TimeMS: 16}
	}
}

// SnapshotThresholds 快照策略阈值，与 Mode 独立（见 Policy）。
// MinChanges 是最低累计变更量门槛，不满足时无论过了多久都不拍快照。
type SnapshotThresholds struct {
	MinChanges int   `mapstructure:"minChanges" json:"minChanges"`
	TimeMS     int64 `mapstructure:"timeMs" json:"timeMs"`
	EventCount int   `mapstructure:"eventCount" json:"eventCount"`
}

// DefaultSnapshotThresholds 默认快照节奏
func DefaultSnapshotThresholds() SnapshotThresholds {
	return SnapshotThresholds{MinChanges: 30, TimeMS: 30_000, EventCount: 100}
}

// InitialSnapshotIndex 初始快照的 eventIndex 哨兵值
const InitialSnapshotIndex int64 = -1
