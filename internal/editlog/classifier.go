package editlog

import "strings"

// 结构性字符：插入了这些就认为"值得立即落一个检查点"。
// 只是启发式，误报可以接受；漏报只会推迟（不会丢失）持久化。
const structuralChars = "{}()[];\n"

// significanceDelta 插入/删除长度差超过这个值就算显著事件
const significanceDelta = 50

// Classify 把一次原始编辑 diff 变成带显著性元数据的 Event。
// previousContent 必须是变更前内容 —— removedText 只能从变更前内容
// 按变更前区间切出来，用变更后内容切会复现 stale-range 一类的错位 bug。
// 区间越界时 clamp 进有效范围而不是报错，保证捕获链路不阻塞。
// 纯函数，无副作用。
func Classify(previousContent, newContent string, from, to int, insertedText string, timestamp int64) Event {
	prev := []rune(previousContent)
	from, to = clampRange(from, to, len(prev))

	removedText := string(prev[from:to])

	var kind EventKind
	switch {
	case removedText == "" && insertedText != "":
		kind = KindInsert
	case insertedText == "" && removedText != "":
		kind = KindDelete
	case insertedText != "" && removedText != "":
		kind = KindReplace
	default:
		// 空编辑，按 insert 记，幅度为 0
		kind = KindInsert
	}

	insLen := len([]rune(insertedText))
	remLen := len([]rune(removedText))
	magnitude := insLen - remLen
	if magnitude < 0 {
		magnitude = -magnitude
	}

	significant := magnitude > significanceDelta ||
		strings.Count(previousContent, "\n") != strings.Count(newContent, "\n") ||
		strings.ContainsAny(insertedText, structuralChars)

	return Event{
		Kind:            kind,
		Timestamp:       timestamp,
		From:            from,
		To:              to,
		InsertedText:    insertedText,
		RemovedText:     removedText,
		Significant:     significant,
		ChangeMagnitude: magnitude,
	}
}

// clampRange 把 [from, to) 压进 [0, length] 且保证 from <= to
func clampRange(from, to, length int) (int, int) {
	if from < 0 {
		from = 0
	}
	if from > length {
		from = length
	}
	if to < from {
		to = from
	}
	if to > length {
		to = length
	}
	return from, to
}

// spliceContent 在 content 上应用一次编辑：删掉 [from, to)，在 from 处插入 inserted。
// rune 级操作，区间同样先 clamp。重建折叠和捕获路径共用这一个实现，
// 保证两边对同一事件得到逐字节一致的结果。
func spliceContent(content string, from, to int, inserted string) string {
	r := []rune(content)
	from, to = clampRange(from, to, len(r))
	var b strings.Builder
	b.Grow(len(content) + len(inserted))
	b.WriteString(string(r[:from]))
	b.WriteString(inserted)
	b.WriteString(string(r[to:]))
	return b.String()
}

// applyEvent 按事件记录时的偏移折叠一个事件。
// 单写者模型，不做任何 rebase。
func applyEvent(content string, ev Event) string {
	switch ev.Kind {
	case KindInsert:
		return spliceContent(content, ev.From, ev.From, ev.InsertedText)
	case KindDelete:
		return spliceContent(content, ev.From, ev.To, "")
	case KindReplace:
		return spliceContent(content, ev.From, ev.To, ev.InsertedText)
	}
	return content
}
