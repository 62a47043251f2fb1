package rating

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abmercy035/chesschamp-api/internal/gameplay"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, 0)
}

func TestNext(t *testing.T) {
	assert.Equal(t, 1212, Next(1200, 1200, 1))
	assert.Equal(t, 1188, Next(1200, 1200, 0))
	assert.Equal(t, 1200, Next(1200, 1200, 0.5))
	assert.InDelta(t, 0.76, Expected(1400, 1200), 0.01)
}

func TestApplyUpdatesBothPlayersOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	changes, err := s.Apply(ctx, "g1", "alice", "bob", 1, at)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, 12, changes[0].Delta)
	assert.Equal(t, -12, changes[1].Delta)

	again, err := s.Apply(ctx, "g1", "alice", "bob", 1, at)
	require.NoError(t, err)
	assert.Empty(t, again)

	alice, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1212, alice.Rating)
	assert.Equal(t, 1, alice.Wins)
	assert.Equal(t, "win", alice.StreakType)
	assert.Equal(t, at, alice.LastPlayedAt)

	ratings, err := s.Ratings(ctx, []string{"alice", "bob", "carol"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 1212, "bob": 1188, "carol": DefaultRating}, ratings)
}

func TestServiceIgnoresUnrankedGames(t *testing.T) {
	s := newTestStore(t)
	svc := NewService(s, clockwork.NewFakeClock())
	ctx := context.Background()

	casual := &gameplay.Game{ID: "c1", Host: "a", Opponent: "b", Winner: "a", Status: gameplay.StatusFinished, GameType: gameplay.TypeCasual}
	require.NoError(t, svc.GameFinished(ctx, casual))
	p, _ := svc.Profile(ctx, "a")
	assert.Equal(t, 0, p.GamesPlayed)

	ranked := &gameplay.Game{ID: "r1", Host: "a", Opponent: "b", Status: gameplay.StatusFinished, GameType: gameplay.TypeRanked, WinReason: gameplay.ReasonStalemate}
	require.NoError(t, svc.GameFinished(ctx, ranked))
	p, _ = svc.Profile(ctx, "b")
	assert.Equal(t, 1, p.Draws)
	assert.Equal(t, DefaultRating, p.Rating)
}
