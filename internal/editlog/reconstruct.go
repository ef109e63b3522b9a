package editlog

import (
	"context"
	"fmt"
)

// Reconstruct 把会话内容确定性地重建到 targetTimestamp 时刻。
// 纯读操作，不会动日志。
//
// 算法：
//  1. 快照按时间戳降序扫，取第一个 timestamp <= target 的做基准；
//     一个都没有就返回 ErrNoBaseSnapshot（开录的会话一定有初始快照，
//     缺了说明日志损坏或还没初始化）
//  2. 取 eventIndex > 基准、timestamp <= target 的事件，按捕获顺序
//  3. 按事件记录时的偏移折叠到基准内容上（单写者模型，不 rebase）
//
// 同一 (日志, target) 两次重建逐字节一致。
func Reconstruct(ctx context.Context, store LogStore, sessionID string, targetTimestamp int64) (string, error) {
	snapshots, err := store.ListSnapshots(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("list snapshots: %w", err)
	}

	var base *Snapshot
	for i := range snapshots {
		if snapshots[i].Timestamp <= targetTimestamp {
			base = &snapshots[i]
			break
		}
	}
	if base == nil {
		return "", ErrNoBaseSnapshot
	}

	events, err := store.ListEvents(ctx, sessionID, base.EventIndex, targetTimestamp)
	if err != nil {
		return "", fmt.Errorf("list events: %w", err)
	}

	content := base.Content
	for _, ev := range events {
		content = applyEvent(content, ev)
	}
	return content, nil
}

// CoverageGaps 检查一段事件序列的 eventIndex 覆盖是否有洞（被丢掉的批次）。
// 补不回来，但调用方至少能知道 replay 保真度有缺口。
// 返回缺失的 [from, to) 序号区间。
func CoverageGaps(events []Event) [][2]int64 {
	if len(events) == 0 {
		return nil
	}
	var gaps [][2]int64
	next := events[0].EventIndex
	for _, ev := range events {
		if ev.EventIndex > next {
			gaps = append(gaps, [2]int64{next, ev.EventIndex})
		}
		next = ev.EventIndex + 1
	}
	return gaps
}
