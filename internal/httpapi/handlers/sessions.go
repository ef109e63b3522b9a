package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"sessionRelay/internal/cache"
	"sessionRelay/internal/editlog"
	"sessionRelay/internal/store"
	"sessionRelay/internal/token"
)

// 配对码有效期
const pairingCodeTTL = 5 * time.Minute

type SessionHandlers struct {
	logStore *store.SessionLogStore
	pairing  cache.PairingCache
	registry *editlog.Registry
	tokenTTL time.Duration

	// 同一 (session, at) 的并发重建只算一次
	sf singleflight.Group
}

func NewSessionHandlers(logStore *store.SessionLogStore, pairing cache.PairingCache, registry *editlog.Registry, tokenTTL time.Duration) *SessionHandlers {
	return &SessionHandlers{
		logStore: logStore,
		pairing:  pairing,
		registry: registry,
		tokenTTL: tokenTTL,
	}
}

type createSessionRequest struct {
	SessionID      string `json:"sessionId" binding:"required"`
	InitialContent string `json:"initialContent"`
	Mode           string `json:"mode"`
}

// CreateSession 建会话：落库、起内存状态、发一个配对码，
// 同时给编辑端签令牌。
func (h *SessionHandlers) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}
	mode := editlog.Mode(req.Mode)
	if mode == "" {
		mode = editlog.ModeRealtime
	}

	if err := h.logStore.CreateSession(c.Request.Context(), req.SessionID, mode); err != nil {
		log.Printf("create session error (session=%s): %v", req.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "CREATE_SESSION_FAILED"})
		return
	}

	sess := h.registry.GetOrCreate(req.SessionID, req.InitialContent)
	sess.SetMode(mode)

	code, err := cache.NewCode()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "CODE_GENERATION_FAILED"})
		return
	}
	if err := h.pairing.PutCode(c.Request.Context(), code, req.SessionID, pairingCodeTTL); err != nil {
		log.Printf("put pairing code error (session=%s): %v", req.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "PAIRING_CODE_FAILED"})
		return
	}

	editorToken, expires, err := token.SignSessionToken(req.SessionID, token.RoleEditor, h.tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "TOKEN_SIGN_FAILED"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":   req.SessionID,
		"pairingCode": code,
		"token":       editorToken,
		"expiresAt":   expires.UnixMilli(),
	})
}

type pairRequest struct {
	Code string `json:"code" binding:"required"`
}

// Pair 遥控端用配对码兑换令牌。码是一次性的。
func (h *SessionHandlers) Pair(c *gin.Context) {
	var req pairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	sessionID, err := h.pairing.ClaimCode(c.Request.Context(), req.Code)
	if err != nil {
		if errors.Is(err, cache.ErrCodeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "PAIRING_CODE_NOT_FOUND"})
			return
		}
		log.Printf("claim pairing code error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "PAIRING_FAILED"})
		return
	}

	controllerToken, expires, err := token.SignSessionToken(sessionID, token.RoleController, h.tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "TOKEN_SIGN_FAILED"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID,
		"token":     controllerToken,
		"expiresAt": expires.UnixMilli(),
	})
}

// Reconstruct 把会话内容重建到 ?at= 毫秒时间戳（缺省取当前时间）。
// 纯读，singleflight 合并并发的相同请求。
func (h *SessionHandlers) Reconstruct(c *gin.Context) {
	sessionID := c.Param("sessionID")
	at := time.Now().UnixMilli()
	if q := c.Query("at"); q != "" {
		parsed, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_TIMESTAMP"})
			return
		}
		at = parsed
	}

	key := fmt.Sprintf("%s@%d", sessionID, at)
	content, err, _ := h.sf.Do(key, func() (interface{}, error) {
		return editlog.Reconstruct(c.Request.Context(), h.logStore, sessionID, at)
	})
	if err != nil {
		if errors.Is(err, editlog.ErrNoBaseSnapshot) {
			c.JSON(http.StatusNotFound, gin.H{"error": "NO_BASE_SNAPSHOT"})
			return
		}
		log.Printf("reconstruct error (session=%s at=%d): %v", sessionID, at, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "RECONSTRUCT_FAILED"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "at": at, "content": content})
}

// ListSnapshots 会话的全部快照（降序），遥控端拿去画 seek 条
func (h *SessionHandlers) ListSnapshots(c *gin.Context) {
	sessionID := c.Param("sessionID")
	snapshots, err := h.logStore.ListSnapshots(c.Request.Context(), sessionID)
	if err != nil {
		log.Printf("list snapshots error (session=%s): %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "LIST_SNAPSHOTS_FAILED"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "snapshots": snapshots})
}

// Status 会话运行状态：档位、录制开关、丢批计数、两端存活
func (h *SessionHandlers) Status(c *gin.Context) {
	sessionID := c.Param("sessionID")
	sess := h.registry.Get(sessionID)
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "SESSION_NOT_FOUND"})
		return
	}

	roles, err := h.pairing.AliveRoles(c.Request.Context(), sessionID)
	if err != nil {
		log.Printf("alive roles error (session=%s): %v", sessionID, err)
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":      sessionID,
		"mode":           sess.Mode(),
		"recording":      sess.Recording(),
		"droppedBatches": sess.DroppedBatches(),
		"aliveRoles":     roles,
	})
}
