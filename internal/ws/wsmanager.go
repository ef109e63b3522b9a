package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sessionRelay/internal/editlog"
)

// 全局 upgrader（放行本地开发来源）
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	hub      *Hub
	registry *editlog.Registry
}

func NewManager(hub *Hub, registry *editlog.Registry) *Manager {
	return &Manager{hub: hub, registry: registry}
}

// WebSocketConnect 升级连接并绑定到会话房间。
// sessionId / role 由鉴权中间件从令牌里解出来写进 gin.Context。
func (m *Manager) WebSocketConnect(c *gin.Context) {
	sessionID := c.GetString("sessionId")
	role := c.GetString("role")
	if sessionID == "" {
		c.String(http.StatusUnauthorized, "missing session")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}

	wc := NewConn(conn, m.hub, sessionID, role, m.registry)
	m.hub.Join(sessionID, wc)
	defer func() {
		m.hub.Leave(sessionID, wc)
		_ = conn.Close()
	}()

	go wc.WriteLoop()
	// 读循环留在 handler 里跑，连接断开才返回
	wc.ReadLoop(c.Request.Context())
}
