package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"helmsman/internal/tenantctx"
)

var ErrConversationNotFound = errors.New("conversation not found")

type Conversation struct {
	ID        string
	TenantID  string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	ID               string
	ConversationID   string
	Role             string
	Content          string
	ToolCalls        json.RawMessage
	TokenCountInput  int
	TokenCountOutput int
	CreatedAt        time.Time
}

type ToolExecution struct {
	ID             string
	ConversationID string
	ToolName       string
	ProcedureName  string
	Arguments      json.RawMessage
	Result         json.RawMessage
	Success        bool
	DurationMS     int64
	CreatedAt      time.Time
}

type TokenCounts struct {
	Input  int
	Output int
}

// ConversationStore persists conversations, messages and tool executions.
// Every query is scoped by the tenant from the request context; a row owned
// by another tenant behaves exactly like a missing row.
type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func (s *ConversationStore) CreateConversation(ctx context.Context, tenantID, userID string) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("tenant ID is required")
	}

	var userIDValue any
	if userID != "" {
		userIDValue = userID
	}

	var conversationID string
	err := s.db.QueryRowContext(
		ctx,
		`INSERT INTO helmsman.conversations (tenant_id, user_id)
		 VALUES ($1, $2)
		 RETURNING id`,
		tenantID,
		userIDValue,
	).Scan(&conversationID)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}

	return conversationID, nil
}

// AddMessage appends a message to a conversation the caller's tenant owns.
// The insert joins through the conversation row so a cross-tenant ID cannot
// be written to.
func (s *ConversationStore) AddMessage(ctx context.Context, conversationID, role, content string, toolCalls json.RawMessage, tokens TokenCounts) error {
	tenantID := tenantctx.GetTenantID(ctx)
	if tenantID == "" {
		return fmt.Errorf("tenant ID is required")
	}

	var messageID string
	err := s.db.QueryRowContext(
		ctx,
		`INSERT INTO helmsman.messages (
			conversation_id,
			role,
			content,
			tool_calls,
			token_count_input,
			token_count_output
		)
		SELECT c.id, $2, $3, $4, $5, $6
		FROM helmsman.conversations c
		WHERE c.id = $1 AND c.tenant_id = $7
		RETURNING id`,
		conversationID,
		role,
		content,
		normalizeJSONInput(toolCalls),
		tokens.Input,
		tokens.Output,
		tenantID,
	).Scan(&messageID)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("add message: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`UPDATE helmsman.conversations
		 SET updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2`,
		conversationID,
		tenantID,
	)
	if err != nil {
		return fmt.Errorf("update conversation timestamp: %w", err)
	}

	return nil
}

// RecordToolExecution writes an audit row for one governed tool call.
func (s *ConversationStore) RecordToolExecution(ctx context.Context, exec ToolExecution) error {
	tenantID := tenantctx.GetTenantID(ctx)
	if tenantID == "" {
		return fmt.Errorf("tenant ID is required")
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO helmsman.tool_executions (
			conversation_id,
			tenant_id,
			tool_name,
			procedure_name,
			arguments,
			result,
			success,
			duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		exec.ConversationID,
		tenantID,
		exec.ToolName,
		exec.ProcedureName,
		normalizeJSONInput(exec.Arguments),
		normalizeJSONInput(exec.Result),
		exec.Success,
		exec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("record tool execution: %w", err)
	}
	return nil
}

func (s *ConversationStore) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	tenantID := tenantctx.GetTenantID(ctx)
	if tenantID == "" {
		return Conversation{}, fmt.Errorf("tenant ID is required")
	}
	userID := tenantctx.GetUserID(ctx)

	query := `SELECT id, tenant_id, user_id, title, created_at, updated_at
		 FROM helmsman.conversations
		 WHERE id = $1 AND tenant_id = $2`
	args := []any{conversationID, tenantID}
	if userID != "" {
		query += " AND user_id = $3"
		args = append(args, userID)
	}

	var convo Conversation
	var title, uid sql.NullString
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&convo.ID,
		&convo.TenantID,
		&uid,
		&title,
		&convo.CreatedAt,
		&convo.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}

	convo.UserID = uid.String
	convo.Title = title.String
	return convo, nil
}

// GetRecentMessages returns up to limit most recent messages in
// chronological order.
func (s *ConversationStore) GetRecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	tenantID := tenantctx.GetTenantID(ctx)
	if tenantID == "" {
		return nil, fmt.Errorf("tenant ID is required")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, conversation_id, role, content, COALESCE(tool_calls, 'null'::jsonb),
			token_count_input, token_count_output, created_at
		 FROM (
			SELECT m.*
			FROM helmsman.messages m
			JOIN helmsman.conversations c ON c.id = m.conversation_id
			WHERE m.conversation_id = $1 AND c.tenant_id = $2
			ORDER BY m.created_at DESC
			LIMIT $3
		 ) recent
		 ORDER BY created_at ASC`,
		conversationID,
		tenantID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get recent messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Role,
			&msg.Content,
			&msg.ToolCalls,
			&msg.TokenCountInput,
			&msg.TokenCountOutput,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent messages rows: %w", err)
	}

	return messages, nil
}

func (s *ConversationStore) DeleteConversation(ctx context.Context, conversationID string) error {
	tenantID := tenantctx.GetTenantID(ctx)
	if tenantID == "" {
		return fmt.Errorf("tenant ID is required")
	}

	result, err := s.db.ExecContext(
		ctx,
		`DELETE FROM helmsman.conversations
		 WHERE id = $1 AND tenant_id = $2`,
		conversationID,
		tenantID,
	)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete conversation result: %w", err)
	}
	if affected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func normalizeJSONInput(value json.RawMessage) any {
	if len(value) == 0 {
		return nil
	}
	return []byte(value)
}
