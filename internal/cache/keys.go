package cache

import "fmt"

// 键语义：
// - codeKey(code):               配对码 → sessionID（String，带 TTL，GETDEL 一次性消费）
// - heartbeatKey(sessionID,role): 端存活心跳键（String，占位"1"，带 TTL）
// - rolesKey(sessionID):          会话内已出现过的端集合（Set<role>）

const (
	keyCodeFmt      = "pairing:code:%s"         // String sessionID with TTL
	keyHeartbeatFmt = "pairing:heartbeat:%s:%s" // String "1" with TTL
	keyRolesFmt     = "pairing:roles:%s"        // Set<role>
)

func codeKey(code string) string { return fmt.Sprintf(keyCodeFmt, code) }
func heartbeatKey(sessionID, role string) string {
	return fmt.Sprintf(keyHeartbeatFmt, sessionID, role)
}
func rolesKey(sessionID string) string { return fmt.Sprintf(keyRolesFmt, sessionID) }
