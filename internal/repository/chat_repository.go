package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"bsn-realtime/internal/domain"
	"bsn-realtime/internal/retry"
	bsn_errors "bsn-realtime/pkg/errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const DefaultMaxContentBytes = 4096

type ChatRepositoryConfig struct {
	MaxContentBytes int
	Retry           retry.Policy
}

func DefaultChatRepositoryConfig() ChatRepositoryConfig {
	return ChatRepositoryConfig{
		MaxContentBytes: DefaultMaxContentBytes,
		Retry:           retry.DefaultPolicy(),
	}
}

type chatRepository struct {
	db      DB
	dialect Dialect
	config  ChatRepositoryConfig
	now     func() time.Time
}

func NewChatRepository(db DB, dialect Dialect, config ChatRepositoryConfig) ChatRepository {
	if config.MaxContentBytes <= 0 {
		config.MaxContentBytes = DefaultMaxContentBytes
	}
	if config.Retry.Attempts <= 0 {
		config.Retry = retry.DefaultPolicy()
	}
	return &chatRepository{
		db:      db,
		dialect: dialect,
		config:  config,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// ValidateContent applies the content rules shared by the store and the gateway.
func ValidateContent(content string, maxBytes int) error {
	if strings.TrimSpace(content) == "" {
		return bsn_errors.ErrEmptyContent
	}
	if len(content) > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", bsn_errors.ErrContentTooLarge, len(content), maxBytes)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: content is not valid utf-8", bsn_errors.ErrInvalidInput)
	}
	return nil
}

func (r *chatRepository) IsParticipant(ctx context.Context, userID, chatID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, r.dialect.rebind(`
        SELECT EXISTS (
            SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2
        )
    `), chatID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("participant lookup: %w", err)
	}
	return ok, nil
}

func (r *chatRepository) PersistMessage(ctx context.Context, chatID, senderID, content string) (domain.PersistResult, error) {
	if err := ValidateContent(content, r.config.MaxContentBytes); err != nil {
		return domain.PersistResult{}, err
	}

	var result domain.PersistResult
	err := r.config.Retry.Do(ctx, isTransient, func(attempt int) error {
		res, err := r.persistOnce(ctx, chatID, senderID, content)
		if err != nil {
			return err
		}
		result = res
		result.Attempts = attempt
		return nil
	})
	if err != nil {
		if isTransient(err) {
			return domain.PersistResult{}, fmt.Errorf("%w: persist message: %v", bsn_errors.ErrServiceUnavailable, err)
		}
		return domain.PersistResult{}, err
	}
	return result, nil
}

func (r *chatRepository) persistOnce(ctx context.Context, chatID, senderID, content string) (domain.PersistResult, error) {
	var result domain.PersistResult
	err := WithTx(ctx, r.db, func(tx DBTX) error {
		var lastActivity time.Time
		err := tx.QueryRowContext(ctx, r.dialect.rebind(`
            SELECT last_activity_at FROM chats WHERE id = $1`+r.dialect.lockRow()),
			chatID,
		).Scan(&lastActivity)
		if errors.Is(err, sql.ErrNoRows) {
			return bsn_errors.ErrChatNotFound
		}
		if err != nil {
			return err
		}

		var member int
		err = tx.QueryRowContext(ctx, r.dialect.rebind(`
            SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2
        `), chatID, senderID).Scan(&member)
		if errors.Is(err, sql.ErrNoRows) {
			return bsn_errors.ErrNotParticipant
		}
		if err != nil {
			return err
		}

		// created_at never goes behind the chat's clock so last_activity_at
		// stays equal to the newest message.
		createdAt := r.now()
		if createdAt.Before(lastActivity) {
			createdAt = lastActivity.UTC()
		}
		id := uuid.NewString()

		if _, err := tx.ExecContext(ctx, r.dialect.rebind(`
            INSERT INTO chat_messages (id, chat_id, sender_id, content, created_at, is_read)
            VALUES ($1,$2,$3,$4,$5,$6)
        `), id, chatID, senderID, content, createdAt, false); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, r.dialect.rebind(`
            UPDATE chats SET last_activity_at = $1, has_unread = $2 WHERE id = $3
        `), createdAt, true, chatID); err != nil {
			return err
		}

		result = domain.PersistResult{MessageID: id, CreatedAt: createdAt}
		return nil
	})
	return result, err
}

func (r *chatRepository) GetChat(ctx context.Context, chatID string) (domain.Chat, error) {
	var c domain.Chat
	var kind string
	err := r.db.QueryRowContext(ctx, r.dialect.rebind(`
        SELECT id, kind, last_activity_at, has_unread, created_at FROM chats WHERE id = $1
    `), chatID).Scan(&c.ID, &kind, &c.LastActivityAt, &c.HasUnread, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Chat{}, bsn_errors.ErrChatNotFound
	}
	if err != nil {
		return domain.Chat{}, err
	}
	c.Kind = domain.ChatKind(kind)

	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(`
        SELECT user_id FROM chat_participants WHERE chat_id = $1 ORDER BY user_id
    `), chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return domain.Chat{}, err
		}
		c.ParticipantIDs = append(c.ParticipantIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return domain.Chat{}, err
	}
	return c, nil
}

// GetMessages returns up to limit most recent messages, oldest first.
func (r *chatRepository) GetMessages(ctx context.Context, chatID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(`
        SELECT id, chat_id, sender_id, content, created_at, is_read
        FROM chat_messages
        WHERE chat_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2
    `), chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.CreatedAt, &m.IsRead); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead flags every message in the chat not sent by readerID as read and
// clears the chat's unread flag once nothing is left unread.
func (r *chatRepository) MarkRead(ctx context.Context, chatID, readerID string) (int64, error) {
	var updated int64
	err := r.config.Retry.Do(ctx, isTransient, func(int) error {
		return WithTx(ctx, r.db, func(tx DBTX) error {
			var member int
			err := tx.QueryRowContext(ctx, r.dialect.rebind(`
                SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2
            `), chatID, readerID).Scan(&member)
			if errors.Is(err, sql.ErrNoRows) {
				return bsn_errors.ErrNotParticipant
			}
			if err != nil {
				return err
			}

			res, err := tx.ExecContext(ctx, r.dialect.rebind(`
                UPDATE chat_messages SET is_read = $1
                WHERE chat_id = $2 AND sender_id <> $3 AND is_read = $4
            `), true, chatID, readerID, false)
			if err != nil {
				return err
			}
			if updated, err = res.RowsAffected(); err != nil {
				return err
			}

			var unread int64
			if err := tx.QueryRowContext(ctx, r.dialect.rebind(`
                SELECT COUNT(*) FROM chat_messages WHERE chat_id = $1 AND is_read = $2
            `), chatID, false).Scan(&unread); err != nil {
				return err
			}
			if unread == 0 {
				if _, err := tx.ExecContext(ctx, r.dialect.rebind(`
                    UPDATE chats SET has_unread = $1 WHERE id = $2
                `), false, chatID); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		if isTransient(err) {
			return 0, fmt.Errorf("%w: mark read: %v", bsn_errors.ErrServiceUnavailable, err)
		}
		return 0, err
	}
	return updated, nil
}

// CreateChat inserts a chat with its participants. Chats are normally created
// by the REST service; this exists for seeding and tests.
func (r *chatRepository) CreateChat(ctx context.Context, c *domain.Chat) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: chat kind %q", bsn_errors.ErrInvalidInput, c.Kind)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now()
	}
	if c.LastActivityAt.IsZero() {
		c.LastActivityAt = c.CreatedAt
	}
	// a failed insert aborts a postgres transaction, so duplicates never reach it
	c.ParticipantIDs = lo.Uniq(lo.Compact(c.ParticipantIDs))

	return WithTx(ctx, r.db, func(tx DBTX) error {
		if _, err := tx.ExecContext(ctx, r.dialect.rebind(`
            INSERT INTO chats (id, kind, last_activity_at, has_unread, created_at)
            VALUES ($1,$2,$3,$4,$5)
        `), c.ID, string(c.Kind), c.LastActivityAt, c.HasUnread, c.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return bsn_errors.ErrConflict
			}
			return err
		}
		for _, userID := range c.ParticipantIDs {
			if _, err := tx.ExecContext(ctx, r.dialect.rebind(`
                INSERT INTO chat_participants (chat_id, user_id, joined_at) VALUES ($1,$2,$3)
            `), c.ID, userID, c.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}
