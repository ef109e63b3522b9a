package ws

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"sessionRelay/internal/editlog"
)

// 心跳 TTL：超过这个时间没心跳就视为该端离线
const heartbeatTTL = 600 * time.Second

// Conn 一条 websocket 连接。编辑端发 edit 流，遥控端发控制指令，
// 两边都收批次/内容推送。
type Conn struct {
	ws        *websocket.Conn
	hub       *Hub
	sessionID string
	role      string
	// send 永远不 close：落盘 goroutine 的广播可能在连接退出后才到，
	// 往已关闭 channel 发送会把进程打死。退出用 done 通知
	send     chan OutboundMessage
	done     chan struct{}
	registry *editlog.Registry
}

func NewConn(ws *websocket.Conn, hub *Hub, sessionID, role string, registry *editlog.Registry) *Conn {
	return &Conn{
		ws:        ws,
		hub:       hub,
		sessionID: sessionID,
		role:      role,
		send:      make(chan OutboundMessage, 32),
		done:      make(chan struct{}),
		registry:  registry,
	}
}

// Enqueue 非阻塞入队，队列满了丢消息（慢连接不拖累广播方）
func (c *Conn) Enqueue(msg OutboundMessage) {
	select {
	case c.send <- msg:
	default:
	}
}

// ReadLoop 持续读取客户端消息。返回即连接结束。
// 捕获链路的原则：任何处理失败回一条 error 消息就继续，
// 绝不因为落盘/广播问题断开编辑端。
func (c *Conn) ReadLoop(ctx context.Context) {
	defer close(c.done)
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			log.Printf("read json error (session=%s role=%s): %v", c.sessionID, c.role, err)
			return
		}

		switch msg.Type {
		case "heartbeat":
			if err := c.hub.pairing.Heartbeat(ctx, c.sessionID, c.role, heartbeatTTL); err != nil {
				log.Printf("heartbeat error: %v", err)
			}
			c.Enqueue(ServerMessage{Type: "feedback", SessionID: c.sessionID, Content: "Heartbeat received"})

		case "edit":
			sess := c.registry.GetOrCreate(c.sessionID, "")
			if _, err := sess.ApplyEdit(ctx, msg.From, msg.To, msg.Text); err != nil {
				c.Enqueue(ServerMessage{Type: "error", Content: err.Error()})
				continue
			}

		case "set_mode":
			sess := c.registry.GetOrCreate(c.sessionID, "")
			sess.SetMode(editlog.Mode(msg.Mode))
			c.Enqueue(ServerMessage{Type: "set_mode", SessionID: c.sessionID, Mode: string(sess.Mode())})

		case "start_recording":
			sess := c.registry.GetOrCreate(c.sessionID, msg.Content)
			if err := sess.StartRecording(ctx); err != nil {
				log.Printf("start recording error (session=%s): %v", c.sessionID, err)
				c.Enqueue(ServerMessage{Type: "error", Content: "START_RECORDING_FAILED"})
				continue
			}
			c.Enqueue(ServerMessage{Type: "start_recording", SessionID: c.sessionID, Recording: true})

		case "stop_recording":
			sess := c.registry.Get(c.sessionID)
			if sess == nil {
				continue
			}
			sess.StopRecording(ctx)
			c.Enqueue(ServerMessage{
				Type:           "stop_recording",
				SessionID:      c.sessionID,
				Recording:      false,
				DroppedBatches: sess.DroppedBatches(),
			})

		case "load_content":
			sess := c.registry.Get(c.sessionID)
			if sess == nil {
				c.Enqueue(ServerMessage{Type: "error", Content: "SESSION_NOT_FOUND"})
				continue
			}
			c.Enqueue(ServerMessage{Type: "load_content", SessionID: c.sessionID, Content: sess.Content()})

		default:
			c.Enqueue(ServerMessage{Type: "ignored", Content: "Unknown message type"})
		}
	}
}

// WriteLoop 持续消费出站队列，ReadLoop 退出后随之停止
func (c *Conn) WriteLoop() {
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.WriteJSON(msg)
		case <-c.done:
			return
		}
	}
}
