package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"helmsman/internal/engine"
	"helmsman/internal/llm"
	"helmsman/internal/logging"
	"helmsman/internal/store"
	"helmsman/internal/tenantctx"
)

const defaultMaxHistoryMessages = 20

type ChatHandler struct {
	Conversations      *store.ConversationStore
	Pipeline           *engine.Pipeline
	Logger             logging.Logger
	MaxHistoryMessages int
	ChannelCapacity    int
	DropDeltaWhenFull  bool

	// Per-conversation locks serialize concurrent requests to the same
	// conversation. Entries are refcounted so a finishing request cannot
	// race a new arrival onto a different mutex. For horizontal scaling,
	// replace with pg_advisory_xact_lock.
	locksMu sync.Mutex
	locks   map[string]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

func (h *ChatHandler) lockConversation(id string) *convLock {
	h.locksMu.Lock()
	if h.locks == nil {
		h.locks = make(map[string]*convLock)
	}
	l, ok := h.locks[id]
	if !ok {
		l = &convLock{}
		h.locks[id] = l
	}
	l.refs++
	h.locksMu.Unlock()

	l.mu.Lock()
	return l
}

func (h *ChatHandler) unlockConversation(id string, l *convLock) {
	l.mu.Unlock()

	h.locksMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(h.locks, id)
	}
	h.locksMu.Unlock()
}

type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	NoCache        bool   `json:"no_cache,omitempty"`
}

func NewChatHandler(conversations *store.ConversationStore, pipeline *engine.Pipeline, logger logging.Logger) *ChatHandler {
	return &ChatHandler{
		Conversations:      conversations,
		Pipeline:           pipeline,
		Logger:             logger,
		MaxHistoryMessages: defaultMaxHistoryMessages,
	}
}

func RegisterRoutes(router gin.IRoutes, handler *ChatHandler) {
	router.POST("/chat", handler.HandleChat)
	router.GET("/conversations/:id", handler.HandleGetConversation)
	router.DELETE("/conversations/:id", handler.HandleDeleteConversation)
}

func (h *ChatHandler) HandleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	ctx := c.Request.Context()
	exec, _ := tenantctx.GetExecution(ctx)

	conversationID := req.ConversationID
	if conversationID == "" {
		var err error
		conversationID, err = h.Conversations.CreateConversation(ctx, exec.TenantID, exec.UserID)
		if err != nil {
			h.Logger.WithError(err).Error("Failed to create conversation")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
			return
		}
	}

	lock := h.lockConversation(conversationID)
	defer h.unlockConversation(conversationID, lock)

	historyLimit := h.MaxHistoryMessages
	if historyLimit <= 0 {
		historyLimit = defaultMaxHistoryMessages
	}
	history, err := h.loadHistory(c, conversationID, historyLimit)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		} else {
			h.Logger.WithError(err).Error("Failed to load conversation history")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation history"})
		}
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unavailable"})
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Conversation-ID", conversationID)
	c.Status(http.StatusOK)

	stream := engine.NewEventStream(h.ChannelCapacity, h.DropDeltaWhenFull)
	done := make(chan engine.Result, 1)
	go func() {
		done <- h.Pipeline.Run(ctx, engine.Request{
			ConversationID: conversationID,
			Question:       req.Message,
			History:        history,
			BypassCache:    req.NoCache,
		}, stream)
	}()

	for {
		event, ok := stream.Next()
		if !ok {
			break
		}
		if err := writeSSE(c.Writer, flusher, event); err != nil {
			// Client went away; the pipeline keeps running to settle
			// persistence and the cache, events are just discarded.
			h.Logger.WithError(err).Debug("SSE write failed, draining stream")
			for {
				if _, more := stream.Next(); !more {
					break
				}
			}
			break
		}
	}

	result := <-done
	_, _ = fmt.Fprintf(c.Writer, "data: [DONE]\n\n")
	flusher.Flush()

	if !result.Success {
		h.Logger.WithFields(logging.Fields{
			"code":            result.Code,
			"conversation_id": conversationID,
		}).Warn("Turn failed")
	}
}

// loadHistory converts stored rows into provider messages, oldest first.
func (h *ChatHandler) loadHistory(c *gin.Context, conversationID string, limit int) ([]llm.Message, error) {
	rows, err := h.Conversations.GetRecentMessages(c.Request.Context(), conversationID, limit)
	if err != nil {
		return nil, err
	}
	messages := make([]llm.Message, 0, len(rows))
	for _, row := range rows {
		msg := llm.Message{Role: row.Role, Content: row.Content}
		if len(row.ToolCalls) > 0 && string(row.ToolCalls) != "null" {
			var calls []llm.ToolCall
			if err := json.Unmarshal(row.ToolCalls, &calls); err == nil {
				msg.ToolCalls = calls
			}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (h *ChatHandler) HandleGetConversation(c *gin.Context) {
	ctx := c.Request.Context()
	conversationID := c.Param("id")

	convo, err := h.Conversations.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	if err != nil {
		h.Logger.WithError(err).Error("Failed to load conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	messages, err := h.Conversations.GetRecentMessages(ctx, conversationID, 0)
	if err != nil {
		h.Logger.WithError(err).Error("Failed to load conversation messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation": convo,
		"messages":     messages,
	})
}

func (h *ChatHandler) HandleDeleteConversation(c *gin.Context) {
	err := h.Conversations.DeleteConversation(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	if err != nil {
		h.Logger.WithError(err).Error("Failed to delete conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
		return
	}
	c.Status(http.StatusNoContent)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event engine.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
