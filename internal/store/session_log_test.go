package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"sessionRelay/internal/editlog"
)

// MySQL 未启动则跳过（和 redis 集成测试一个路数）
func testStore(t *testing.T) *SessionLogStore {
	t.Helper()
	dsn := "root:root@tcp(127.0.0.1:3306)/session_relay_test?charset=utf8mb4&parseTime=True&loc=Local"
	db, err := InitMySQL(dsn)
	if err != nil {
		t.Skipf("skip: mysql not available: %v", err)
	}
	return NewSessionLogStore(db)
}

func TestStoreBatchAndListEvents(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	sessionID := fmt.Sprintf("it-%d", time.Now().UnixNano())

	b := editlog.Batch{
		StartTime: 1000,
		EndTime:   1200,
		Events: []editlog.Event{
			{Kind: editlog.KindInsert, Timestamp: 1000, From: 0, To: 0, InsertedText: "abc", ChangeMagnitude: 3, EventIndex: 0},
			{Kind: editlog.KindDelete, Timestamp: 1200, From: 0, To: 1, RemovedText: "a", ChangeMagnitude: 1, EventIndex: 1},
		},
	}
	if err := s.StoreBatch(ctx, sessionID, b); err != nil {
		t.Fatalf("StoreBatch() error = %v", err)
	}

	events, err := s.ListEvents(ctx, sessionID, -1, 2000)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].EventIndex != 0 || events[1].EventIndex != 1 {
		t.Fatalf("indexes = %d, %d, want 0, 1", events[0].EventIndex, events[1].EventIndex)
	}
	if events[0].InsertedText != "abc" {
		t.Fatalf("InsertedText = %q, want %q", events[0].InsertedText, "abc")
	}

	// fromEventIndex 严格大于、toTimestamp 包含
	events, err = s.ListEvents(ctx, sessionID, 0, 1200)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].EventIndex != 1 {
		t.Fatalf("filtered events = %+v, want only index 1", events)
	}
}

func TestStoreBatch_DuplicateIsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	sessionID := fmt.Sprintf("it-dup-%d", time.Now().UnixNano())

	b := editlog.Batch{
		StartTime: 1000,
		EndTime:   1000,
		Events: []editlog.Event{
			{Kind: editlog.KindInsert, Timestamp: 1000, InsertedText: "x", EventIndex: 0},
		},
	}
	if err := s.StoreBatch(ctx, sessionID, b); err != nil {
		t.Fatalf("first StoreBatch() error = %v", err)
	}
	// 同一 (session, eventIndex) 重发不报错
	if err := s.StoreBatch(ctx, sessionID, b); err != nil {
		t.Fatalf("duplicate StoreBatch() error = %v, want nil", err)
	}

	events, err := s.ListEvents(ctx, sessionID, -1, 2000)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d after duplicate append, want 1", len(events))
	}

	// 整批重复不能留下没有事件的空 batches 行
	var batchRows int64
	if err := s.db.Model(&BatchRow{}).Where("session_id = ?", sessionID).Count(&batchRows).Error; err != nil {
		t.Fatalf("count batches error = %v", err)
	}
	if batchRows != 1 {
		t.Fatalf("batch rows = %d after duplicate resend, want 1", batchRows)
	}

	// 混合批：索引 0 重复、索引 1 是新事件，新事件必须落下来
	mixed := editlog.Batch{
		StartTime: 1000,
		EndTime:   1100,
		Events: []editlog.Event{
			{Kind: editlog.KindInsert, Timestamp: 1000, InsertedText: "x", EventIndex: 0},
			{Kind: editlog.KindInsert, Timestamp: 1100, From: 1, To: 1, InsertedText: "y", EventIndex: 1},
		},
	}
	if err := s.StoreBatch(ctx, sessionID, mixed); err != nil {
		t.Fatalf("mixed StoreBatch() error = %v", err)
	}
	events, err = s.ListEvents(ctx, sessionID, -1, 2000)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d after mixed resend, want 2", len(events))
	}
	if events[1].InsertedText != "y" {
		t.Fatalf("new event InsertedText = %q, want %q", events[1].InsertedText, "y")
	}
}

func TestStoreSnapshotAndList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	sessionID := fmt.Sprintf("it-snap-%d", time.Now().UnixNano())

	snaps := []editlog.Snapshot{
		{Timestamp: 1000, Content: "abc", EventIndex: -1},
		{Timestamp: 2000, Content: "abcdef", EventIndex: 5, IsKeyFrame: true},
	}
	for _, snap := range snaps {
		if err := s.StoreSnapshot(ctx, sessionID, snap); err != nil {
			t.Fatalf("StoreSnapshot() error = %v", err)
		}
	}

	got, err := s.ListSnapshots(ctx, sessionID)
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(snapshots) = %d, want 2", len(got))
	}
	// 降序：最新的在前
	if got[0].EventIndex != 5 || !got[0].IsKeyFrame {
		t.Fatalf("latest snapshot = %+v, want eventIndex 5 key frame", got[0])
	}
	if got[1].EventIndex != -1 {
		t.Fatalf("initial snapshot eventIndex = %d, want -1", got[1].EventIndex)
	}
}

func TestReconstructAgainstMySQL(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	sessionID := fmt.Sprintf("it-rec-%d", time.Now().UnixNano())

	if err := s.StoreSnapshot(ctx, sessionID, editlog.Snapshot{Timestamp: 1000, Content: "abc", EventIndex: -1}); err != nil {
		t.Fatalf("StoreSnapshot() error = %v", err)
	}
	b := editlog.Batch{
		StartTime: 1500,
		EndTime:   1500,
		Events: []editlog.Event{
			{Kind: editlog.KindInsert, Timestamp: 1500, From: 1, To: 1, InsertedText: "X", EventIndex: 0},
		},
	}
	if err := s.StoreBatch(ctx, sessionID, b); err != nil {
		t.Fatalf("StoreBatch() error = %v", err)
	}

	content, err := editlog.Reconstruct(ctx, s, sessionID, 1500)
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}
	if content != "aXbc" {
		t.Fatalf("Reconstruct() = %q, want %q", content, "aXbc")
	}
}
