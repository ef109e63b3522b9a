package editlog

import "errors"

var (
	// ErrInvalidRange 编辑坐标越界。捕获链路上只用来打日志，
	// 实际处理是 clamp 之后继续，不会抛给上层。
	ErrInvalidRange = errors.New("INVALID_RANGE")
	// ErrStoreWriteFailed 批次/快照持久化被拒绝
	ErrStoreWriteFailed = errors.New("STORE_WRITE_FAILED")
	// ErrNoBaseSnapshot 重建时找不到任何基准快照，硬失败返回调用方
	ErrNoBaseSnapshot = errors.New("NO_BASE_SNAPSHOT")
	// ErrRelayUnavailable 尽力广播失败，永远被吞掉，只打日志
	ErrRelayUnavailable = errors.New("RELAY_UNAVAILABLE")
	// ErrSessionClosed 会话已结束，不再接受事件
	ErrSessionClosed = errors.New("SESSION_CLOSED")
)
