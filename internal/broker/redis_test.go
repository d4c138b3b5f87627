package broker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisPair(t *testing.T) (*miniredis.Miniredis, *goredis.Client, *RedisBroker, *RedisBroker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	a, err := NewRedis(context.Background(), client, Options{InstanceID: "gw-a"})
	require.NoError(t, err)
	b, err := NewRedisURL(context.Background(), "kv://"+mr.Addr()+"/0", Options{InstanceID: "gw-b"})
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return mr, client, a, b
}

func waitSubscribers(t *testing.T, client *goredis.Client, group string, want int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		counts, err := client.PubSubNumSub(context.Background(), channelName(group)).Result()
		return err == nil && counts[channelName(group)] == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRedisBroker_CrossInstanceFanOut(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	_, _, a, b := newRedisPair(t)

	onB := newRecorder("conn-b")
	req.NoError(b.Join(ctx, "feed:u7", onB))

	req.NoError(a.Publish(ctx, "feed:u7", post(t, "p1")))

	evt := onB.next(t)
	req.Equal("p1", postID(t, evt))
	req.Equal("gw-a", evt.Origin)
}

func TestRedisBroker_PreservesOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	_, _, a, b := newRedisPair(t)

	h := newRecorder("conn-b")
	req.NoError(b.Join(ctx, "chat:9", h))

	for i := 0; i < 50; i++ {
		req.NoError(a.Publish(ctx, "chat:9", post(t, fmt.Sprint(i))))
	}
	for i := 0; i < 50; i++ {
		req.Equal(fmt.Sprint(i), postID(t, h.next(t)))
	}
}

func TestRedisBroker_JoinIsEffectiveOnReturn(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	_, _, a, b := newRedisPair(t)

	for i := 0; i < 200; i++ {
		group := fmt.Sprintf("chat:fresh-%d", i)
		h := newRecorder(fmt.Sprintf("conn-%d", i))
		req.NoError(b.Join(ctx, group, h))
		req.NoError(a.Publish(ctx, group, post(t, group)))
		req.Equal(group, postID(t, h.next(t)))
	}
}

func TestRedisBroker_LastLeaveUnsubscribes(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	_, client, a, b := newRedisPair(t)

	h1, h2 := newRecorder("c1"), newRecorder("c2")
	req.NoError(b.Join(ctx, "chat:1", h1))
	req.NoError(b.Join(ctx, "chat:1", h2))
	waitSubscribers(t, client, "chat:1", 1)

	req.NoError(b.Leave(ctx, "chat:1", h1))
	waitSubscribers(t, client, "chat:1", 1)

	req.NoError(a.Publish(ctx, "chat:1", post(t, "still-here")))
	req.Equal("still-here", postID(t, h2.next(t)))
	h1.none(t, 20*time.Millisecond)

	req.NoError(b.Leave(ctx, "chat:1", h2))
	waitSubscribers(t, client, "chat:1", 0)
	req.Empty(b.Registry().Groups())
}

func TestRedisBroker_CloseStopsJoin(t *testing.T) {
	req := require.New(t)
	_, _, _, b := newRedisPair(t)

	req.NoError(Ping(context.Background(), b))
	req.NoError(b.Close())
	req.ErrorIs(Ping(context.Background(), b), ErrClosed)
	req.NoError(b.Close())
	req.ErrorIs(b.Join(context.Background(), "chat:1", newRecorder("c")), ErrClosed)
}
