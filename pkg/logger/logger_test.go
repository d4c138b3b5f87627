package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContext_AddsRequestAndUser(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := &Logger{Logger: zap.New(core)}

	ctx := ContextWithUserID(ContextWithRequestID(context.Background(), "req-1"), "alice")
	l.WithContext(ctx).Info("hello")
	l.WithContext(context.Background()).Info("bare")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	require.Equal(t, map[string]interface{}{"request_id": "req-1", "user_id": "alice"}, entries[0].ContextMap())
	require.Empty(t, entries[1].ContextMap())
	require.Equal(t, "req-1", RequestIDFrom(ctx))
	require.Empty(t, RequestIDFrom(context.Background()))
}
