package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/delivery"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/reaction"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

var messageColumnList = []string{
	"id", "conversation_id", "sender", "recipient", "content", "message_type", "media",
	"shared_content", "reply_to", "status", "delivered_at", "read_at", "is_edited",
	"edited_at", "original_content", "is_deleted", "deleted_at", "deleted_by",
	"is_reported", "report_count", "is_hidden", "created_at", "updated_at",
}

var messageColumns = strings.Join(messageColumnList, ", ")

func prefixedColumns(prefix string) string {
	cols := make([]string, len(messageColumnList))
	for i, c := range messageColumnList {
		cols[i] = prefix + c
	}
	return strings.Join(cols, ", ")
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(sc scanner, extra ...any) (*store.Message, error) {
	var (
		m                                        store.Message
		media, shared                            sql.NullString
		deliveredAt, readAt, editedAt, deletedAt sql.NullInt64
		created, updated                         int64
	)
	dest := []any{
		&m.ID, &m.ConversationID, &m.Sender, &m.Recipient, &m.Content, &m.Type, &media,
		&shared, &m.ReplyTo, &m.Status, &deliveredAt, &readAt, &m.IsEdited,
		&editedAt, &m.OriginalContent, &m.IsDeleted, &deletedAt, &m.DeletedBy,
		&m.IsReported, &m.ReportCount, &m.IsHidden, &created, &updated,
	}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if media.Valid && media.String != "" {
		if err := json.Unmarshal([]byte(media.String), &m.Media); err != nil {
			return nil, fmt.Errorf("decode media: %w", err)
		}
	}
	if shared.Valid && shared.String != "" {
		m.SharedContent = &store.SharedContent{}
		if err := json.Unmarshal([]byte(shared.String), m.SharedContent); err != nil {
			return nil, fmt.Errorf("decode shared content: %w", err)
		}
	}
	m.DeliveredAt = timePtr(deliveredAt)
	m.ReadAt = timePtr(readAt)
	m.EditedAt = timePtr(editedAt)
	m.DeletedAt = timePtr(deletedAt)
	m.CreatedAt = fromNanos(created)
	m.UpdatedAt = fromNanos(updated)
	return &m, nil
}

func encodeJSON(v any, empty bool) (sql.NullString, error) {
	if empty {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// InsertMessage stores a new message.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *store.Message) error {
	media, err := encodeJSON(msg.Media, len(msg.Media) == 0)
	if err != nil {
		return fmt.Errorf("encode media: %w", err)
	}
	shared, err := encodeJSON(msg.SharedContent, msg.SharedContent == nil)
	if err != nil {
		return fmt.Errorf("encode shared content: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert message: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT INTO messages (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, msg.Sender, msg.Recipient, msg.Content, string(msg.Type), media,
		shared, msg.ReplyTo, string(msg.Status), nullNanos(msg.DeliveredAt), nullNanos(msg.ReadAt), msg.IsEdited,
		nullNanos(msg.EditedAt), msg.OriginalContent, msg.IsDeleted, nullNanos(msg.DeletedAt), msg.DeletedBy,
		msg.IsReported, msg.ReportCount, msg.IsHidden, toNanos(msg.CreatedAt), toNanos(msg.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if err := writeReactions(ctx, tx, msg.ID, msg.Reactions); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID, soft-deleted ones included.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	return getMessage(ctx, s.db, id)
}

func getMessage(ctx context.Context, q querier, id string) (*store.Message, error) {
	row := q.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	if err := attachReactions(ctx, q, []*store.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

// UpdateMessage runs mutate inside a transaction. Identity fields (id, participants,
// conversation, creation time) are never rewritten.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, id string, mutate func(*store.Message) error) (*store.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update message: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	msg, err := getMessage(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	orig := *msg
	if err := mutate(msg); err != nil {
		return nil, err
	}
	msg.ID, msg.ConversationID, msg.Sender, msg.Recipient = orig.ID, orig.ConversationID, orig.Sender, orig.Recipient
	msg.CreatedAt = orig.CreatedAt

	media, err := encodeJSON(msg.Media, len(msg.Media) == 0)
	if err != nil {
		return nil, fmt.Errorf("encode media: %w", err)
	}
	shared, err := encodeJSON(msg.SharedContent, msg.SharedContent == nil)
	if err != nil {
		return nil, fmt.Errorf("encode shared content: %w", err)
	}

	query := `
		UPDATE messages SET
			content = ?, message_type = ?, media = ?, shared_content = ?, reply_to = ?,
			status = ?, delivered_at = ?, read_at = ?,
			is_edited = ?, edited_at = ?, original_content = ?,
			is_deleted = ?, deleted_at = ?, deleted_by = ?,
			is_reported = ?, report_count = ?, is_hidden = ?,
			updated_at = ?
		WHERE id = ?
	`
	if _, err := tx.ExecContext(ctx, query,
		msg.Content, string(msg.Type), media, shared, msg.ReplyTo,
		string(msg.Status), nullNanos(msg.DeliveredAt), nullNanos(msg.ReadAt),
		msg.IsEdited, nullNanos(msg.EditedAt), msg.OriginalContent,
		msg.IsDeleted, nullNanos(msg.DeletedAt), msg.DeletedBy,
		msg.IsReported, msg.ReportCount, msg.IsHidden,
		toNanos(msg.UpdatedAt), id,
	); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id = ?`, id); err != nil {
		return nil, fmt.Errorf("clear reactions: %w", err)
	}
	if err := writeReactions(ctx, tx, id, msg.Reactions); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update message: %w", err)
	}
	return msg, nil
}

// ListConversation returns non-deleted messages of a conversation, newest first.
func (s *SQLiteStore) ListConversation(ctx context.Context, conversationID string, page store.Page) ([]*store.Message, error) {
	var (
		where = []string{"conversation_id = @conv", "is_deleted = 0"}
		args  = []any{sql.Named("conv", conversationID)}
	)
	if !page.Before.IsZero() {
		where = append(where, "created_at < @before")
		args = append(args, sql.Named("before", toNanos(page.Before)))
	}
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC, id DESC
		LIMIT @limit OFFSET @offset`
	args = append(args, limitArgs(page.Limit, page.Offset)...)

	return s.queryMessages(ctx, query, args...)
}

// ListConversations returns one summary per conversation of userID.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string, page store.Page) ([]store.ConversationSummary, error) {
	beforeClause := ""
	args := []any{sql.Named("user", userID)}
	if !page.Before.IsZero() {
		beforeClause = "AND r.created_at < @before"
		args = append(args, sql.Named("before", toNanos(page.Before)))
	}
	args = append(args, limitArgs(page.Limit, page.Offset)...)

	query := `
		WITH mine AS (
			SELECT id, conversation_id, recipient, status, created_at
			FROM messages
			WHERE (sender = @user OR recipient = @user) AND is_deleted = 0
		), ranked AS (
			SELECT id, conversation_id, created_at,
				ROW_NUMBER() OVER (PARTITION BY conversation_id ORDER BY created_at DESC, id DESC) AS rn
			FROM mine
		), unread AS (
			SELECT conversation_id, COUNT(*) AS n
			FROM mine
			WHERE recipient = @user AND status <> 'read'
			GROUP BY conversation_id
		)
		SELECT ` + prefixedColumns("m.") + `, COALESCE(u.n, 0)
		FROM ranked r
		JOIN messages m ON m.id = r.id
		LEFT JOIN unread u ON u.conversation_id = r.conversation_id
		WHERE r.rn = 1 ` + beforeClause + `
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT @limit OFFSET @offset
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}

	var (
		out  []store.ConversationSummary
		msgs []*store.Message
	)
	for rows.Next() {
		var unread int
		msg, err := scanMessage(rows, &unread)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		msgs = append(msgs, msg)
		out = append(out, store.ConversationSummary{
			ConversationID: msg.ConversationID,
			LastMessage:    msg,
			UnreadCount:    unread,
		})
	}
	err = rows.Err()
	// the pool has a single connection; release it before loading reactions
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	if err := attachReactions(ctx, s.db, msgs); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchMessages finds non-deleted messages of q.UserID whose content contains q.Text.
func (s *SQLiteStore) SearchMessages(ctx context.Context, q store.SearchQuery) ([]*store.Message, error) {
	where := []string{
		"(sender = @user OR recipient = @user)",
		"is_deleted = 0",
		"contains_fold(content, @text)",
	}
	args := []any{sql.Named("user", q.UserID), sql.Named("text", q.Text)}
	if q.ConversationID != "" {
		where = append(where, "conversation_id = @conv")
		args = append(args, sql.Named("conv", q.ConversationID))
	}
	args = append(args, limitArgs(q.Limit, q.Offset)...)

	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC, id DESC
		LIMIT @limit OFFSET @offset`

	return s.queryMessages(ctx, query, args...)
}

// AdvanceStatus moves matching messages forward to target in one statement.
func (s *SQLiteStore) AdvanceStatus(ctx context.Context, filter store.StatusFilter, target delivery.Status, at time.Time) ([]*store.Message, error) {
	if filter.Recipient == "" {
		return nil, errors.New("advance status: recipient is required")
	}
	if !target.Valid() || target == delivery.StatusSent {
		return nil, fmt.Errorf("advance status: invalid target %q", target)
	}

	behind := []string{"'sent'"}
	if target == delivery.StatusRead {
		behind = append(behind, "'delivered'")
	}

	where := []string{"recipient = @recipient", "status IN (" + strings.Join(behind, ", ") + ")"}
	args := []any{
		sql.Named("recipient", filter.Recipient),
		sql.Named("target", string(target)),
		sql.Named("at", toNanos(at)),
	}
	if filter.ConversationID != "" {
		where = append(where, "conversation_id = @conv")
		args = append(args, sql.Named("conv", filter.ConversationID))
	}
	if len(filter.IDs) > 0 {
		names := make([]string, len(filter.IDs))
		for i, id := range filter.IDs {
			name := fmt.Sprintf("id%d", i)
			names[i] = "@" + name
			args = append(args, sql.Named(name, id))
		}
		where = append(where, "id IN ("+strings.Join(names, ", ")+")")
	}

	query := `
		UPDATE messages SET
			status = @target,
			delivered_at = COALESCE(delivered_at, @at),
			read_at = CASE WHEN @target = 'read' THEN COALESCE(read_at, @at) ELSE read_at END,
			updated_at = @at
		WHERE ` + strings.Join(where, " AND ") + `
		RETURNING ` + messageColumns

	msgs, err := s.queryMessages(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("advance status: %w", err)
	}
	return msgs, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	var out []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	rows.Close()

	if err := attachReactions(ctx, s.db, out); err != nil {
		return nil, err
	}
	return out, nil
}

func limitArgs(limit, offset int) []any {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	return []any{sql.Named("limit", limit), sql.Named("offset", offset)}
}

func writeReactions(ctx context.Context, q querier, messageID string, set reaction.Set) error {
	for _, r := range set {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO message_reactions (message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?)`,
			messageID, r.UserID, r.Emoji, toNanos(r.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert reaction: %w", err)
		}
	}
	return nil
}

func attachReactions(ctx context.Context, q querier, msgs []*store.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	byID := make(map[string]*store.Message, len(msgs))
	placeholders := make([]string, 0, len(msgs))
	args := make([]any, 0, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
		placeholders = append(placeholders, "?")
		args = append(args, m.ID)
	}

	query := `SELECT message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY created_at, user_id`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			messageID string
			r         reaction.Reaction
			created   int64
		)
		if err := rows.Scan(&messageID, &r.UserID, &r.Emoji, &created); err != nil {
			return fmt.Errorf("scan reaction: %w", err)
		}
		r.CreatedAt = fromNanos(created)
		if m, ok := byID[messageID]; ok {
			m.Reactions = append(m.Reactions, r)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate reactions: %w", err)
	}
	return nil
}
