package gameplay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/abmercy035/chesschamp-api/pkg/chessdto"
)

// ErrNoChange aborts an Update without writing; Update then returns the current game.
var ErrNoChange = errors.New("no change")

// Store persists games and applies read-modify-write updates as one
// version-checked transaction.
type Store interface {
	Create(ctx context.Context, g *Game) error
	Get(ctx context.Context, id string) (*Game, error)
	// Update loads the game, applies fn and commits only if no concurrent
	// write happened in between. fn errors abort without writing.
	Update(ctx context.Context, id string, fn func(g *Game) error) (*Game, error)
	List(ctx context.Context) ([]*Game, error)
	// DeleteIf removes the game when pred holds for its committed state.
	DeleteIf(ctx context.Context, id string, pred func(g *Game) bool) (bool, error)
}

type RedisStore struct {
	rdb        redis.UniversalClient
	prefix     string
	maxRetries int
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "chess:", maxRetries: 5}
}

func (s *RedisStore) gameKey(id string) string { return s.prefix + "game:" + strings.TrimSpace(id) }
func (s *RedisStore) indexKey() string         { return s.prefix + "games" }

func errGameNotFound(id string) error {
	return chessdto.NotFound("game_not_found", "game %s not found", id)
}

func (s *RedisStore) Create(ctx context.Context, g *Game) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return chessdto.StoreFailure("encode game", err)
	}
	ok, err := s.rdb.SetNX(ctx, s.gameKey(g.ID), raw, 0).Result()
	if err != nil {
		return chessdto.StoreFailure("create game", err)
	}
	if !ok {
		return chessdto.Conflict("game_exists", "game %s already exists", g.ID)
	}
	if err := s.rdb.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(g.CreatedAt.Unix()), Member: g.ID}).Err(); err != nil {
		return chessdto.StoreFailure("index game", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Game, error) {
	raw, err := s.rdb.Get(ctx, s.gameKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errGameNotFound(id)
	}
	if err != nil {
		return nil, chessdto.StoreFailure("load game", err)
	}
	return decodeGame(raw)
}

func decodeGame(raw []byte) (*Game, error) {
	var g Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, chessdto.StoreFailure("decode game", err)
	}
	return &g, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(g *Game) error) (*Game, error) {
	key := s.gameKey(id)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var out *Game
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return errGameNotFound(id)
			}
			if err != nil {
				return err
			}
			cur, err := decodeGame(raw)
			if err != nil {
				return err
			}
			if err := fn(cur); err != nil {
				if errors.Is(err, ErrNoChange) {
					out = cur
					return nil
				}
				return err
			}
			cur.Version++
			next, err := json.Marshal(cur)
			if err != nil {
				return fmt.Errorf("encode game: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, key, next, 0)
				return nil
			})
			if err == nil {
				out = cur
			}
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if chessdto.KindOf(err) != "" {
				return nil, err
			}
			return nil, chessdto.StoreFailure("update game", err)
		}
		return out, nil
	}
	return nil, chessdto.Conflict("concurrent_update", "game %s was modified concurrently, retry", id)
}

// List returns every indexed game, newest first. Index entries whose game
// key vanished are pruned.
func (s *RedisStore) List(ctx context.Context) ([]*Game, error) {
	ids, err := s.rdb.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, chessdto.StoreFailure("list games", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.gameKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, chessdto.StoreFailure("load games", err)
	}
	out := make([]*Game, 0, len(vals))
	var stale []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		g, err := decodeGame([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if len(stale) > 0 {
		_ = s.rdb.ZRem(ctx, s.indexKey(), stale...).Err()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *RedisStore) DeleteIf(ctx context.Context, id string, pred func(g *Game) bool) (bool, error) {
	key := s.gameKey(id)
	deleted := false
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		g, err := decodeGame(raw)
		if err != nil {
			return err
		}
		if !pred(g) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key)
			p.ZRem(ctx, s.indexKey(), id)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// A concurrent write touched the game; it is no longer a candidate this sweep.
		return false, nil
	}
	if err != nil {
		return false, chessdto.StoreFailure("delete game", err)
	}
	return deleted, nil
}
