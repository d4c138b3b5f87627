//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_services.go -package=mocks
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bsn-realtime/internal/domain"
	"bsn-realtime/internal/events"
	"bsn-realtime/internal/metrics"
	bsnredis "bsn-realtime/internal/redis"
	"bsn-realtime/internal/repository"
	"bsn-realtime/internal/topic"
	bsn_errors "bsn-realtime/pkg/errors"

	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// Publisher is the part of the broker the chat service needs.
type Publisher interface {
	Publish(ctx context.Context, group string, evt events.Event) error
}

// MessageLimiter throttles chat sends per user.
type MessageLimiter interface {
	AllowMessage(ctx context.Context, userID string) (*bsnredis.RateLimitResult, error)
}

type ChatServiceConfig struct {
	MaxContentBytes int
}

// ChatService persists chat messages and broadcasts them once committed.
type ChatService struct {
	chats     repository.ChatRepository
	publisher Publisher
	limiter   MessageLimiter
	metrics   *metrics.Metrics
	config    ChatServiceConfig
	log       *zap.Logger
}

// NewChatService wires the send path. limiter may be nil.
func NewChatService(chats repository.ChatRepository, publisher Publisher, limiter MessageLimiter, m *metrics.Metrics, config ChatServiceConfig) *ChatService {
	if config.MaxContentBytes <= 0 {
		config.MaxContentBytes = repository.DefaultMaxContentBytes
	}
	if m == nil {
		m = metrics.New()
	}
	return &ChatService{
		chats:     chats,
		publisher: publisher,
		limiter:   limiter,
		metrics:   m,
		config:    config,
		log:       zap.L().With(zap.String("component", "chat_service")),
	}
}

// Send validates, rate limits, persists and then publishes a chat message.
// A publish failure after a successful persist returns the stored result
// together with an ErrServiceUnavailable error; the message stays durable.
func (s *ChatService) Send(ctx context.Context, sender events.UserRef, chatID, content string) (domain.PersistResult, error) {
	if err := repository.ValidateContent(content, s.config.MaxContentBytes); err != nil {
		return domain.PersistResult{}, err
	}
	group, err := topic.Resolve(topic.KindChat, chatID)
	if err != nil {
		return domain.PersistResult{}, err
	}

	if s.limiter != nil {
		res, err := s.limiter.AllowMessage(ctx, sender.ID)
		switch {
		case err != nil:
			// the store is the authority; a limiter outage does not block chat
			s.log.Warn("rate limiter unavailable", zap.String("user_id", sender.ID), zap.Error(err))
		case !res.Allowed:
			return domain.PersistResult{}, fmt.Errorf("%w: retry in %s", bsn_errors.ErrRateLimited, res.ResetIn)
		}
	}

	start := time.Now()
	result, err := s.chats.PersistMessage(ctx, chatID, sender.ID, content)
	if err != nil {
		return domain.PersistResult{}, err
	}
	s.metrics.PersistLatency.Observe(time.Since(start).Seconds())
	s.metrics.PersistAttempts.Observe(float64(result.Attempts))

	evt, err := events.New(events.KindChatMessage, events.ChatMessage{
		ChatID:    chatID,
		MessageID: result.MessageID,
		Sender:    events.UserRef{ID: sender.ID, Username: sender.Username},
		Content:   content,
		Timestamp: result.CreatedAt,
	})
	if err != nil {
		return result, err
	}

	if err := s.publish(ctx, group, evt); err != nil {
		s.log.Error("chat message stored but not broadcast",
			zap.String("chat_id", chatID),
			zap.String("message_id", result.MessageID),
			zap.Error(err),
		)
		return result, fmt.Errorf("%w: message %s stored, broadcast failed", bsn_errors.ErrServiceUnavailable, result.MessageID)
	}
	return result, nil
}

// publish makes one retry. It runs even if the command deadline already
// passed, since the message is committed.
func (s *ChatService) publish(ctx context.Context, group string, evt events.Event) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		err = s.publisher.Publish(pctx, group, evt)
		cancel()
		if err == nil {
			return nil
		}
	}
	return err
}

// MarkRead marks the chat read for readerID.
func (s *ChatService) MarkRead(ctx context.Context, readerID, chatID string) (int64, error) {
	if _, err := topic.Resolve(topic.KindChat, chatID); err != nil {
		return 0, err
	}
	return s.chats.MarkRead(ctx, chatID, readerID)
}

// IsParticipationLoss reports whether a send failure means the user is no
// longer in the chat and should be dropped from its group.
func IsParticipationLoss(err error) bool {
	return errors.Is(err, bsn_errors.ErrNotParticipant) || errors.Is(err, bsn_errors.ErrChatNotFound)
}
