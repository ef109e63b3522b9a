package store

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sessionRelay/internal/editlog"
)

// SessionRow 会话元数据
type SessionRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Mode      string `gorm:"size:16"`
	CreatedAt time.Time
}

func (SessionRow) TableName() string { return "sessions" }

// BatchRow 批次元数据。事件本体在 events 表，这里只记边界，
// 方便按批查丢失范围。
type BatchRow struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	SessionID       string `gorm:"index;size:64"`
	StartTime       int64
	EndTime         int64
	FirstEventIndex int64
	LastEventIndex  int64
	EventCount      int
	CreatedAt       time.Time
}

func (BatchRow) TableName() string { return "batches" }

// EventRow 单个事件。(session_id, event_index) 唯一，
// 重复追加按幂等处理。
type EventRow struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	SessionID  string `gorm:"size:64;uniqueIndex:uk_session_event,priority:1"`
	EventIndex int64  `gorm:"uniqueIndex:uk_session_event,priority:2"`
	BatchID    uint64 `gorm:"index"`
	Timestamp  int64  `gorm:"index"`
	Kind       string `gorm:"size:8"`
	// from/to 是 MySQL 保留字，换个列名
	FromOffset   int    `gorm:"column:from_offset"`
	ToOffset     int    `gorm:"column:to_offset"`
	InsertedText string `gorm:"type:text"`
	RemovedText  string `gorm:"type:text"`
	Significant  bool
	Magnitude    int
}

func (EventRow) TableName() string { return "events" }

// SnapshotRow 全量检查点。初始快照 event_index = -1。
type SnapshotRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	SessionID   string `gorm:"size:64;uniqueIndex:uk_session_snapshot,priority:1"`
	EventIndex  int64  `gorm:"uniqueIndex:uk_session_snapshot,priority:2"`
	Timestamp   int64  `gorm:"index"`
	Content     string `gorm:"type:longtext"`
	IsKeyFrame  bool
	Description string `gorm:"size:512"`
	CreatedAt   time.Time
}

func (SnapshotRow) TableName() string { return "snapshots" }

// SessionLogStore editlog.LogStore 的 MySQL 实现
type SessionLogStore struct {
	db *gorm.DB
}

func NewSessionLogStore(db *gorm.DB) *SessionLogStore {
	return &SessionLogStore{db: db}
}

// CreateSession 落会话行
func (s *SessionLogStore) CreateSession(ctx context.Context, sessionID string, mode editlog.Mode) error {
	row := SessionRow{ID: sessionID, Mode: string(mode)}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return nil
		}
		return err
	}
	return nil
}

// 批次里的事件全是重复时用来回滚事务，对外仍然是幂等成功
var errBatchAlreadyStored = errors.New("batch already stored")

// StoreBatch 批次行 + 事件行在一个事务里写。
// 重复的 (session_id, event_index) 逐行跳过：混合批里新事件照常落，
// 整批重发不报错也不留下没有事件的空 batches 行 ——
// 批次可能乱序完成，也可能上层出于谨慎重发。
func (s *SessionLogStore) StoreBatch(ctx context.Context, sessionID string, b editlog.Batch) error {
	if len(b.Events) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch := BatchRow{
			SessionID:       sessionID,
			StartTime:       b.StartTime,
			EndTime:         b.EndTime,
			FirstEventIndex: b.Events[0].EventIndex,
			LastEventIndex:  b.Events[len(b.Events)-1].EventIndex,
			EventCount:      len(b.Events),
		}
		if err := tx.Create(&batch).Error; err != nil {
			return err
		}
		rows := make([]EventRow, 0, len(b.Events))
		for _, ev := range b.Events {
			rows = append(rows, EventRow{
				SessionID:    sessionID,
				EventIndex:   ev.EventIndex,
				BatchID:      batch.ID,
				Timestamp:    ev.Timestamp,
				Kind:         string(ev.Kind),
				FromOffset:   ev.From,
				ToOffset:     ev.To,
				InsertedText: ev.InsertedText,
				RemovedText:  ev.RemovedText,
				Significant:  ev.Significant,
				Magnitude:    ev.ChangeMagnitude,
			})
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errBatchAlreadyStored
		}
		return nil
	})
	if errors.Is(err, errBatchAlreadyStored) {
		return nil
	}
	return err
}

func (s *SessionLogStore) StoreSnapshot(ctx context.Context, sessionID string, snap editlog.Snapshot) error {
	row := SnapshotRow{
		SessionID:   sessionID,
		EventIndex:  snap.EventIndex,
		Timestamp:   snap.Timestamp,
		Content:     snap.Content,
		IsKeyFrame:  snap.IsKeyFrame,
		Description: snap.Description,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return nil
		}
		return err
	}
	return nil
}

// ListSnapshots 按时间戳降序（重建选基准从最近的往回扫）
func (s *SessionLogStore) ListSnapshots(ctx context.Context, sessionID string) ([]editlog.Snapshot, error) {
	var rows []SnapshotRow
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp DESC, event_index DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]editlog.Snapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, editlog.Snapshot{
			Timestamp:   r.Timestamp,
			Content:     r.Content,
			EventIndex:  r.EventIndex,
			IsKeyFrame:  r.IsKeyFrame,
			Description: r.Description,
		})
	}
	return out, nil
}

// ListEvents 取 event_index 严格大于 fromEventIndex、时间戳不超过
// toTimestamp 的事件，按捕获顺序返回。
func (s *SessionLogStore) ListEvents(ctx context.Context, sessionID string, fromEventIndex int64, toTimestamp int64) ([]editlog.Event, error) {
	var rows []EventRow
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND event_index > ? AND timestamp <= ?", sessionID, fromEventIndex, toTimestamp).
		Order("event_index ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]editlog.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToEvent(r))
	}
	return out, nil
}

func rowToEvent(r EventRow) editlog.Event {
	return editlog.Event{
		Kind:            editlog.EventKind(r.Kind),
		Timestamp:       r.Timestamp,
		From:            r.FromOffset,
		To:              r.ToOffset,
		InsertedText:    r.InsertedText,
		RemovedText:     r.RemovedText,
		Significant:     r.Significant,
		ChangeMagnitude: r.Magnitude,
		EventIndex:      r.EventIndex,
	}
}

// isDuplicate MySQL 1062 = 唯一键冲突
func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
