package websocket

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bsn-realtime/internal/events"
	"bsn-realtime/internal/repository"
	"bsn-realtime/internal/services"
	"bsn-realtime/internal/topic"
	bsn_errors "bsn-realtime/pkg/errors"

	"go.uber.org/zap"
)

type commandHandler func(c *Connection, ctx context.Context, data []byte) (any, error)

var commands = map[string]commandHandler{
	CmdSubscribeFeed:           (*Connection).subscribeFeed,
	CmdSubscribeChat:           (*Connection).subscribeChat,
	CmdUnsubscribeChat:         (*Connection).unsubscribeChat,
	CmdSendChatMessage:         (*Connection).sendChatMessage,
	CmdMarkRead:                (*Connection).markRead,
	CmdFeedPreferences:         (*Connection).feedPreferences,
	CmdNotificationPreferences: (*Connection).notificationPreferences,
	CmdHeartbeat:               (*Connection).heartbeat,
}

// handle decodes one inbound frame and answers it with an ack or an error.
func (c *Connection) handle(data []byte) {
	env, err := c.gw.decoder.envelope(data)
	if err != nil {
		c.gw.metrics.FramesIn.WithLabelValues("malformed").Inc()
		c.fail(env.CorrelationID, err)
		return
	}

	cmd, ok := commands[env.Type]
	if !ok {
		c.gw.metrics.FramesIn.WithLabelValues("unknown").Inc()
		c.fail(env.CorrelationID, fmt.Errorf("%w: unknown command %q", bsn_errors.ErrInvalidInput, env.Type))
		return
	}
	c.gw.metrics.FramesIn.WithLabelValues(env.Type).Inc()

	ctx, cancel := context.WithTimeout(c.ctx, c.gw.cfg.CommandTimeout)
	defer cancel()

	result, err := cmd(c, ctx, data)
	if err != nil {
		if bsn_errors.FrameCode(err) == bsn_errors.CodeInternal {
			c.log().Error("command failed", zap.Error(err), zap.String("type", env.Type))
		}
		c.fail(env.CorrelationID, err)
		return
	}
	c.ack(env.CorrelationID, result)
}

func (c *Connection) subscribeFeed(ctx context.Context, data []byte) (any, error) {
	var cmd subscribeFeedCommand
	if err := c.gw.decoder.body(data, &cmd); err != nil {
		return nil, err
	}
	group := topic.Feed(c.user.UserID)
	if err := c.join(ctx, group); err != nil {
		return nil, err
	}
	feedType := c.filters.setFeedType(cmd.FeedType)
	return map[string]string{"group": group, "feed_type": feedType}, nil
}

// chatGroup resolves and authorises a chat group for this connection.
func (c *Connection) chatGroup(ctx context.Context, chatID ID) (string, error) {
	group, err := topic.Resolve(topic.KindChat, chatID.String())
	if err != nil {
		return "", err
	}
	ok, err := c.gw.authoriser.Authorise(ctx, c.user.UserID, group)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", bsn_errors.ErrForbidden
	}
	return group, nil
}

func (c *Connection) subscribeChat(ctx context.Context, data []byte) (any, error) {
	var cmd chatCommand
	if err := c.gw.decoder.body(data, &cmd); err != nil {
		return nil, err
	}
	group, err := c.chatGroup(ctx, cmd.ChatID)
	if err != nil {
		return nil, err
	}
	if err := c.join(ctx, group); err != nil {
		return nil, err
	}
	return map[string]string{"group": group}, nil
}

func (c *Connection) unsubscribeChat(ctx context.Context, data []byte) (any, error) {
	var cmd chatCommand
	if err := c.gw.decoder.body(data, &cmd); err != nil {
		return nil, err
	}
	group, err := topic.Resolve(topic.KindChat, cmd.ChatID.String())
	if err != nil {
		return nil, err
	}
	if err := c.leave(ctx, group); err != nil {
		return nil, err
	}
	return map[string]string{"group": group}, nil
}

type sendResult struct {
	MessageID string    `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Connection) sendChatMessage(ctx context.Context, data []byte) (any, error) {
	var cmd sendChatMessageCommand
	if err := c.gw.decoder.body(data, &cmd); err != nil {
		return nil, err
	}
	if err := repository.ValidateContent(cmd.Content, c.gw.cfg.MaxContentBytes); err != nil {
		return nil, err
	}
	chatID := cmd.ChatID.String()
	group, err := topic.Resolve(topic.KindChat, chatID)
	if err != nil {
		return nil, err
	}
	if !c.isJoined(group) {
		return nil, fmt.Errorf("%w: not subscribed to %s", bsn_errors.ErrForbidden, group)
	}

	sender := events.UserRef{ID: c.user.UserID, Username: c.user.Username}
	res, err := c.gw.chats.Send(ctx, sender, chatID, cmd.Content)
	if err != nil {
		if services.IsParticipationLoss(err) {
			if lerr := c.leave(ctx, group); lerr != nil {
				c.log().Warn("leave after participation loss failed", zap.Error(lerr))
			}
		}
		return nil, err
	}
	return sendResult{MessageID: res.MessageID, CreatedAt: res.CreatedAt}, nil
}

func (c *Connection) markRead(ctx context.Context, data []byte) (any, error) {
	var cmd chatCommand
	if err := c.gw.decoder.body(data, &cmd); err != nil {
		return nil, err
	}
	n, err := c.gw.chats.MarkRead(ctx, c.user.UserID, cmd.ChatID.String())
	if err != nil {
		return nil, err
	}
	return map[string]any{"chat_id": cmd.ChatID.String(), "marked": n}, nil
}

func (c *Connection) feedPreferences(_ context.Context, data []byte) (any, error) {
	var cmd preferencesCommand
	if err := c.gw.decoder.body(data, &cmd); err != nil {
		return nil, err
	}
	keys, err := c.filters.setFeedPreferences(cmd.Preferences)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bsn_errors.ErrInvalidInput, err)
	}
	sort.Strings(keys)
	return map[string][]string{"applied": keys}, nil
}

func (c *Connection) notificationPreferences(_ context.Context, data []byte) (any, error) {
	var cmd preferencesCommand
	if err := c.gw.decoder.body(data, &cmd); err != nil {
		return nil, err
	}
	keys, err := c.filters.setNotificationPreferences(cmd.Preferences)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bsn_errors.ErrInvalidInput, err)
	}
	sort.Strings(keys)
	return map[string][]string{"applied": keys}, nil
}

func (c *Connection) heartbeat(ctx context.Context, _ []byte) (any, error) {
	if err := c.refreshPresence(ctx); err != nil {
		// presence is advisory; the connection stays alive
		c.log().Warn("presence refresh failed", zap.Error(err))
	}
	return nil, nil
}
