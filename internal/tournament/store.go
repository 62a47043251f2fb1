package tournament

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abmercy035/chesschamp-api/pkg/chessdto"
)

var errNoChange = errors.New("no change")

// Store keeps the tournament document under optimistic locking and each
// participant's tally in a separate hash. Increments queued by credit are
// committed in the same MULTI as the document.
type Store interface {
	Create(ctx context.Context, t *Tournament) error
	Get(ctx context.Context, id string) (*Tournament, error)
	Update(ctx context.Context, id string, fn func(t *Tournament) error) (*Tournament, error)
	List(ctx context.Context) ([]*Tournament, error)
	// Once reports true the first time key is claimed within ttl.
	Once(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type RedisStore struct {
	rdb        redis.UniversalClient
	prefix     string
	maxRetries int
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "chess:", maxRetries: 8}
}

func (s *RedisStore) docKey(id string) string { return s.prefix + "tournament:" + strings.TrimSpace(id) }
func (s *RedisStore) statsKey(id, player string) string {
	return s.prefix + "tournament:" + id + ":stats:" + player
}
func (s *RedisStore) indexKey() string          { return s.prefix + "tournaments" }
func (s *RedisStore) onceKey(key string) string { return s.prefix + "once:" + key }

func errTournamentNotFound(id string) error {
	return chessdto.NotFound("tournament_not_found", "tournament %s not found", id)
}

func (s *RedisStore) Create(ctx context.Context, t *Tournament) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return chessdto.StoreFailure("encode tournament", err)
	}
	ok, err := s.rdb.SetNX(ctx, s.docKey(t.ID), raw, 0).Result()
	if err != nil {
		return chessdto.StoreFailure("create tournament", err)
	}
	if !ok {
		return chessdto.Conflict("tournament_exists", "tournament %s already exists", t.ID)
	}
	if err := s.rdb.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(t.CreatedAt.Unix()), Member: t.ID}).Err(); err != nil {
		return chessdto.StoreFailure("index tournament", err)
	}
	return nil
}

func (s *RedisStore) decode(raw []byte) (*Tournament, error) {
	var t Tournament
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, chessdto.StoreFailure("decode tournament", err)
	}
	return &t, nil
}

// loadStats reads every participant hash in one pipeline.
func (s *RedisStore) loadStats(ctx context.Context, c redis.Cmdable, t *Tournament) error {
	t.stats = make(map[string]Stat, len(t.Participants))
	if len(t.Participants) == 0 {
		return nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(t.Participants))
	_, err := c.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, part := range t.Participants {
			cmds[i] = p.HGetAll(ctx, s.statsKey(t.ID, part.PlayerID))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i, part := range t.Participants {
		h := cmds[i].Val()
		score, _ := strconv.ParseFloat(h["score"], 64)
		wins, _ := strconv.Atoi(h["wins"])
		losses, _ := strconv.Atoi(h["losses"])
		draws, _ := strconv.Atoi(h["draws"])
		t.stats[part.PlayerID] = Stat{Score: score, Wins: wins, Losses: losses, Draws: draws}
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Tournament, error) {
	raw, err := s.rdb.Get(ctx, s.docKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errTournamentNotFound(id)
	}
	if err != nil {
		return nil, chessdto.StoreFailure("load tournament", err)
	}
	t, err := s.decode(raw)
	if err != nil {
		return nil, err
	}
	if err := s.loadStats(ctx, s.rdb, t); err != nil {
		return nil, chessdto.StoreFailure("load tournament stats", err)
	}
	return t, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(t *Tournament) error) (*Tournament, error) {
	key := s.docKey(id)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var out *Tournament
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return errTournamentNotFound(id)
			}
			if err != nil {
				return err
			}
			cur, err := s.decode(raw)
			if err != nil {
				return err
			}
			if err := s.loadStats(ctx, tx, cur); err != nil {
				return err
			}
			if err := fn(cur); err != nil {
				if errors.Is(err, errNoChange) {
					out = cur
					return nil
				}
				return err
			}
			cur.Version++
			next, err := json.Marshal(cur)
			if err != nil {
				return fmt.Errorf("encode tournament: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, key, next, 0)
				for _, d := range cur.pending {
					sk := s.statsKey(cur.ID, d.player)
					if d.Score != 0 {
						p.HIncrByFloat(ctx, sk, "score", d.Score)
					}
					if d.Wins != 0 {
						p.HIncrBy(ctx, sk, "wins", int64(d.Wins))
					}
					if d.Losses != 0 {
						p.HIncrBy(ctx, sk, "losses", int64(d.Losses))
					}
					if d.Draws != 0 {
						p.HIncrBy(ctx, sk, "draws", int64(d.Draws))
					}
				}
				return nil
			})
			if err == nil {
				cur.pending = nil
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
			return nil, chessdto.StoreFailure("update tournament", err)
		}
		return out, nil
	}
	return nil, chessdto.Conflict("concurrent_update", "tournament %s was modified concurrently, retry", id)
}

// List returns every tournament, newest first.
func (s *RedisStore) List(ctx context.Context) ([]*Tournament, error) {
	ids, err := s.rdb.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, chessdto.StoreFailure("list tournaments", err)
	}
	out := make([]*Tournament, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if chessdto.KindOf(err) == chessdto.KindNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *RedisStore) Once(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.onceKey(key), 1, ttl).Result()
	if err != nil {
		return false, chessdto.StoreFailure("claim "+key, err)
	}
	return ok, nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.onceKey(key)).Err(); err != nil {
		return chessdto.StoreFailure("release "+key, err)
	}
	return nil
}
