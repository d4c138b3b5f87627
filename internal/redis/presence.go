package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultPresenceTTL is used when no TTL is configured.
const DefaultPresenceTTL = 60 * time.Second

const (
	presenceKeyPrefix = "presence:user:"
	connectionsPrefix = "presence:conns:"
)

// Marker is the opaque value stored under a presence key.
type Marker struct {
	InstanceID   string    `json:"instance_id"`
	ConnectionID string    `json:"connection_id"`
	SeenAt       time.Time `json:"seen_at"`
}

// Presence is one entry of a Status answer.
type Presence struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// PresenceStore keeps one TTL key per online user. A key's absence means
// offline; nothing ever writes an explicit offline value.
type PresenceStore struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

func NewPresenceStore(client goredis.UniversalClient, ttl time.Duration) *PresenceStore {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &PresenceStore{client: client, ttl: ttl}
}

func (p *PresenceStore) TTL() time.Duration { return p.ttl }

func presenceKey(userID string) string    { return presenceKeyPrefix + userID }
func connectionsKey(userID string) string { return connectionsPrefix + userID }

// MarkOnline writes the marker with a fresh TTL.
func (p *PresenceStore) MarkOnline(ctx context.Context, userID string, marker Marker) error {
	if marker.SeenAt.IsZero() {
		marker.SeenAt = time.Now().UTC()
	}
	data, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	if err := p.client.Set(ctx, presenceKey(userID), data, p.ttl).Err(); err != nil {
		return fmt.Errorf("mark online: %w", err)
	}
	return nil
}

// Heartbeat refreshes the TTL. Last writer wins.
func (p *PresenceStore) Heartbeat(ctx context.Context, userID string, marker Marker) error {
	return p.MarkOnline(ctx, userID, marker)
}

// Clear removes the user's presence key.
func (p *PresenceStore) Clear(ctx context.Context, userID string) error {
	return p.client.Del(ctx, presenceKey(userID)).Err()
}

// Status answers for every id in one pipelined round trip, in input order.
func (p *PresenceStore) Status(ctx context.Context, userIDs []string) ([]Presence, error) {
	if len(userIDs) == 0 {
		return []Presence{}, nil
	}

	pipe := p.client.Pipeline()
	cmds := make([]*goredis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Exists(ctx, presenceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("presence status: %w", err)
	}

	out := make([]Presence, len(userIDs))
	for i, id := range userIDs {
		out[i] = Presence{UserID: id, Online: cmds[i].Val() > 0}
	}
	return out, nil
}

func (p *PresenceStore) StatusMap(ctx context.Context, userIDs []string) (map[string]bool, error) {
	list, err := p.Status(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(list))
	for _, s := range list {
		out[s.UserID] = s.Online
	}
	return out, nil
}

// TrackConnection records a live connection for the user. The hash expires
// with the presence TTL so a crashed instance cannot pin it forever.
func (p *PresenceStore) TrackConnection(ctx context.Context, userID string, marker Marker) error {
	data, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	pipe := p.client.Pipeline()
	pipe.HSet(ctx, connectionsKey(userID), marker.ConnectionID, data)
	pipe.Expire(ctx, connectionsKey(userID), 2*p.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// releaseConnection drops one connection entry and, when none remain,
// the presence key, in a single step so a concurrent TrackConnection and
// MarkOnline is never cleared.
var releaseConnection = goredis.NewScript(`
	redis.call('HDEL', KEYS[1], ARGV[1])
	local remaining = redis.call('HLEN', KEYS[1])
	if remaining == 0 then
		redis.call('DEL', KEYS[2])
	end
	return remaining
`)

// ReleaseConnection forgets one connection, clears presence if it was the
// user's last, and reports how many remain.
func (p *PresenceStore) ReleaseConnection(ctx context.Context, userID, connectionID string) (int64, error) {
	keys := []string{connectionsKey(userID), presenceKey(userID)}
	remaining, err := releaseConnection.Run(ctx, p.client, keys, connectionID).Int64()
	if err != nil {
		return 0, fmt.Errorf("release connection: %w", err)
	}
	return remaining, nil
}

// Release forgets the connection and clears presence when it was the last.
func (p *PresenceStore) Release(ctx context.Context, userID, connectionID string) error {
	_, err := p.ReleaseConnection(ctx, userID, connectionID)
	return err
}
