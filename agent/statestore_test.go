package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/kmachat/llm"
)

func suspendedState() *State {
	s := NewState()
	s.AddMessage(llm.NewUserMessage("Cho tôi xem điểm"))
	s.Suspend("Vui lòng cung cấp mã sinh viên", &llm.ToolCall{
		ID:        "call-1",
		Name:      "get_student_scores",
		Arguments: json.RawMessage(`{}`),
	})
	return s
}

func TestMemoryStateStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryStateStore()
	ctx := context.Background()
	state := suspendedState()

	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, state.ID)
	require.NoError(t, err)
	require.True(t, loaded.AwaitingHumanInput)
	require.Equal(t, PhaseAwaitInput, loaded.Phase)
	require.Equal(t, "get_student_scores", loaded.PendingToolCall.Name)
	require.Len(t, loaded.Messages, 1)

	require.NoError(t, store.Delete(ctx, state.ID))
	_, err = store.Load(ctx, state.ID)
	require.True(t, errors.Is(err, ErrStateNotFound))
}

func TestRedisStateStore_RoundTrip(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStateStore(client, time.Hour, zap.NewNop())
	ctx := context.Background()

	state := suspendedState()
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, state.ID)
	require.NoError(t, err)
	require.True(t, loaded.AwaitingHumanInput)
	require.Equal(t, state.HumanInputPrompt, loaded.HumanInputPrompt)
	require.Equal(t, state.ID, loaded.ID)

	_, err = store.Load(ctx, "missing-id")
	require.True(t, errors.Is(err, ErrStateNotFound))

	require.NoError(t, store.Delete(ctx, state.ID))
	_, err = store.Load(ctx, state.ID)
	require.True(t, errors.Is(err, ErrStateNotFound))
}

func TestRedisStateStore_TTLExpiry(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStateStore(client, time.Minute, zap.NewNop())
	ctx := context.Background()

	state := suspendedState()
	require.NoError(t, store.Save(ctx, state))

	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx, state.ID)
	require.True(t, errors.Is(err, ErrStateNotFound))
}
