package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bsn-realtime/internal/domain"
	"bsn-realtime/internal/events"
	"bsn-realtime/internal/metrics"
	"bsn-realtime/internal/mocks"
	bsnredis "bsn-realtime/internal/redis"
	bsn_errors "bsn-realtime/pkg/errors"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var alice = events.UserRef{ID: "u-alice", Username: "alice", DisplayName: "Alice"}

type fixture struct {
	chats     *mocks.MockChatRepository
	publisher *mocks.MockPublisher
	limiter   *mocks.MockMessageLimiter
	svc       *ChatService
}

func newFixture(t *testing.T) fixture {
	ctrl := gomock.NewController(t)
	f := fixture{
		chats:     mocks.NewMockChatRepository(ctrl),
		publisher: mocks.NewMockPublisher(ctrl),
		limiter:   mocks.NewMockMessageLimiter(ctrl),
	}
	f.svc = NewChatService(f.chats, f.publisher, f.limiter, metrics.New(), ChatServiceConfig{MaxContentBytes: 16})
	return f
}

func allowed() *bsnredis.RateLimitResult {
	return &bsnredis.RateLimitResult{Allowed: true, Remaining: 10, Limit: 60}
}

func TestChatService_Send_PersistsThenPublishes(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	createdAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	gomock.InOrder(
		f.limiter.EXPECT().AllowMessage(gomock.Any(), "u-alice").Return(allowed(), nil),
		f.chats.EXPECT().PersistMessage(gomock.Any(), "c1", "u-alice", "hello").
			Return(domain.PersistResult{MessageID: "m1", CreatedAt: createdAt, Attempts: 1}, nil),
		f.publisher.EXPECT().Publish(gomock.Any(), "chat:c1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, evt events.Event) error {
				req.Equal(events.KindChatMessage, evt.Kind)
				var msg events.ChatMessage
				req.NoError(evt.Decode(&msg))
				req.Equal("c1", msg.ChatID)
				req.Equal("m1", msg.MessageID)
				req.Equal(events.UserRef{ID: "u-alice", Username: "alice"}, msg.Sender)
				req.Equal("hello", msg.Content)
				req.True(msg.Timestamp.Equal(createdAt))
				return nil
			}),
	)

	res, err := f.svc.Send(context.Background(), alice, "c1", "hello")
	req.NoError(err)
	req.Equal("m1", res.MessageID)
}

func TestChatService_Send_OversizedTouchesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Send(context.Background(), alice, "c1", strings.Repeat("x", 17))
	require.ErrorIs(t, err, bsn_errors.ErrContentTooLarge)
	require.Equal(t, bsn_errors.CodeInvalid, bsn_errors.FrameCode(err))
}

func TestChatService_Send_InvalidChatID(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Send(context.Background(), alice, "a:b", "hi")
	require.ErrorIs(t, err, bsn_errors.ErrInvalidInput)
}

func TestChatService_Send_NotParticipantIsNotPublished(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.limiter.EXPECT().AllowMessage(gomock.Any(), "u-alice").Return(allowed(), nil)
	f.chats.EXPECT().PersistMessage(gomock.Any(), "c1", "u-alice", "hi").
		Return(domain.PersistResult{}, bsn_errors.ErrNotParticipant)

	_, err := f.svc.Send(context.Background(), alice, "c1", "hi")
	req.ErrorIs(err, bsn_errors.ErrNotParticipant)
	req.True(IsParticipationLoss(err))
	req.Equal(bsn_errors.CodeForbidden, bsn_errors.FrameCode(err))
}

func TestChatService_Send_RateLimited(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.limiter.EXPECT().AllowMessage(gomock.Any(), "u-alice").
		Return(&bsnredis.RateLimitResult{Allowed: false, ResetIn: 30 * time.Second}, nil)

	_, err := f.svc.Send(context.Background(), alice, "c1", "spam")
	req.ErrorIs(err, bsn_errors.ErrRateLimited)
	req.Equal(bsn_errors.CodeRateLimited, bsn_errors.FrameCode(err))
}

func TestChatService_Send_LimiterOutageFailsOpen(t *testing.T) {
	f := newFixture(t)

	f.limiter.EXPECT().AllowMessage(gomock.Any(), "u-alice").Return(nil, errors.New("connection refused"))
	f.chats.EXPECT().PersistMessage(gomock.Any(), "c1", "u-alice", "hi").
		Return(domain.PersistResult{MessageID: "m1", Attempts: 1}, nil)
	f.publisher.EXPECT().Publish(gomock.Any(), "chat:c1", gomock.Any()).Return(nil)

	_, err := f.svc.Send(context.Background(), alice, "c1", "hi")
	require.NoError(t, err)
}

func TestChatService_Send_RetriedPersistPublishesOnce(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.limiter.EXPECT().AllowMessage(gomock.Any(), gomock.Any()).Return(allowed(), nil)
	f.chats.EXPECT().PersistMessage(gomock.Any(), "c1", "u-alice", "hi").
		Return(domain.PersistResult{MessageID: "m1", Attempts: 3}, nil).Times(1)
	f.publisher.EXPECT().Publish(gomock.Any(), "chat:c1", gomock.Any()).Return(nil).Times(1)

	res, err := f.svc.Send(context.Background(), alice, "c1", "hi")
	req.NoError(err)
	req.Equal(3, res.Attempts)
}

func TestChatService_Send_PublishRetriedOnce(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.limiter.EXPECT().AllowMessage(gomock.Any(), gomock.Any()).Return(allowed(), nil)
	f.chats.EXPECT().PersistMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.PersistResult{MessageID: "m1", Attempts: 1}, nil)
	gomock.InOrder(
		f.publisher.EXPECT().Publish(gomock.Any(), "chat:c1", gomock.Any()).Return(errors.New("broken pipe")),
		f.publisher.EXPECT().Publish(gomock.Any(), "chat:c1", gomock.Any()).Return(nil),
	)

	res, err := f.svc.Send(context.Background(), alice, "c1", "hi")
	req.NoError(err)
	req.Equal("m1", res.MessageID)
}

func TestChatService_Send_PublishFailureKeepsMessage(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.limiter.EXPECT().AllowMessage(gomock.Any(), gomock.Any()).Return(allowed(), nil)
	f.chats.EXPECT().PersistMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.PersistResult{MessageID: "m1", Attempts: 1}, nil)
	f.publisher.EXPECT().Publish(gomock.Any(), "chat:c1", gomock.Any()).
		Return(errors.New("broken pipe")).Times(2)

	res, err := f.svc.Send(context.Background(), alice, "c1", "hi")
	req.ErrorIs(err, bsn_errors.ErrServiceUnavailable)
	req.Equal("m1", res.MessageID)
	req.Equal(bsn_errors.CodeUnavailable, bsn_errors.FrameCode(err))
}

func TestChatService_Send_PublishesAfterCommandDeadline(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	f.limiter.EXPECT().AllowMessage(gomock.Any(), gomock.Any()).Return(allowed(), nil)
	f.chats.EXPECT().PersistMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, string, string) (domain.PersistResult, error) {
			cancel()
			return domain.PersistResult{MessageID: "m1", Attempts: 1}, nil
		})
	f.publisher.EXPECT().Publish(gomock.Any(), "chat:c1", gomock.Any()).
		DoAndReturn(func(pctx context.Context, _ string, _ events.Event) error {
			return pctx.Err()
		})

	_, err := f.svc.Send(ctx, alice, "c1", "hi")
	require.NoError(t, err)
}

func TestChatService_MarkRead(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.chats.EXPECT().MarkRead(gomock.Any(), "c1", "u-bob").Return(int64(4), nil)

	n, err := f.svc.MarkRead(context.Background(), "u-bob", "c1")
	req.NoError(err)
	req.EqualValues(4, n)

	_, err = f.svc.MarkRead(context.Background(), "u-bob", "")
	req.ErrorIs(err, bsn_errors.ErrInvalidInput)
}
