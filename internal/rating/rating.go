// Package rating keeps per-player Elo profiles. Ranked games update both
// players when they finish; tournaments read ratings to seed brackets.
package rating

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/abmercy035/chesschamp-api/internal/gameplay"
	"github.com/abmercy035/chesschamp-api/internal/obslog"
	"github.com/abmercy035/chesschamp-api/pkg/chessdto"
)

const (
	DefaultRating = 1200
	kFactor       = 24
)

type Profile struct {
	PlayerID     string    `json:"playerId"`
	Rating       int       `json:"rating"`
	GamesPlayed  int       `json:"gamesPlayed"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	Draws        int       `json:"draws"`
	Streak       int       `json:"streak"`
	StreakType   string    `json:"streakType,omitempty"`
	LastPlayedAt time.Time `json:"lastPlayedAt,omitempty"`
}

// Expected is the Elo expected score of a player rated r against opp.
func Expected(r, opp int) float64 {
	return 1 / (1 + math.Pow(10, float64(opp-r)/400))
}

// Next returns the new rating after scoring score (1, 0.5 or 0) against opp.
func Next(r, opp int, score float64) int {
	return int(math.Round(float64(r) + kFactor*(score-Expected(r, opp))))
}

func (p *Profile) record(opp int, score float64, at time.Time) int {
	prev := p.Rating
	p.GamesPlayed++
	result := "draw"
	switch score {
	case 1:
		p.Wins++
		result = "win"
	case 0:
		p.Losses++
		result = "loss"
	default:
		p.Draws++
	}
	if p.StreakType == result {
		p.Streak++
	} else {
		p.Streak = 1
		p.StreakType = result
	}
	p.Rating = Next(prev, opp, score)
	p.LastPlayedAt = at
	return p.Rating - prev
}

// Change is one player's side of an applied result.
type Change struct {
	PlayerID string `json:"playerId"`
	Before   int    `json:"before"`
	After    int    `json:"after"`
	Delta    int    `json:"delta"`
}

type RedisStore struct {
	rdb           redis.UniversalClient
	prefix        string
	defaultRating int
	maxRetries    int
}

func NewRedisStore(rdb redis.UniversalClient, defaultRating int) *RedisStore {
	if defaultRating <= 0 {
		defaultRating = DefaultRating
	}
	return &RedisStore{rdb: rdb, prefix: "chess:rating:", defaultRating: defaultRating, maxRetries: 5}
}

func (s *RedisStore) key(id string) string        { return s.prefix + strings.TrimSpace(id) }
func (s *RedisStore) appliedKey(id string) string { return s.prefix + "applied:" + id }

func (s *RedisStore) decode(id string, h map[string]string) *Profile {
	p := &Profile{PlayerID: id, Rating: s.defaultRating}
	if len(h) == 0 {
		return p
	}
	atoi := func(k string) int {
		n, _ := strconv.Atoi(h[k])
		return n
	}
	if r := atoi("rating"); r > 0 {
		p.Rating = r
	}
	p.GamesPlayed = atoi("games")
	p.Wins = atoi("wins")
	p.Losses = atoi("losses")
	p.Draws = atoi("draws")
	p.Streak = atoi("streak")
	p.StreakType = h["streakType"]
	if ts, err := strconv.ParseInt(h["lastPlayedAt"], 10, 64); err == nil && ts > 0 {
		p.LastPlayedAt = time.Unix(ts, 0).UTC()
	}
	return p
}

func encode(p *Profile) map[string]any {
	var last int64
	if !p.LastPlayedAt.IsZero() {
		last = p.LastPlayedAt.Unix()
	}
	return map[string]any{
		"rating":       p.Rating,
		"games":        p.GamesPlayed,
		"wins":         p.Wins,
		"losses":       p.Losses,
		"draws":        p.Draws,
		"streak":       p.Streak,
		"streakType":   p.StreakType,
		"lastPlayedAt": last,
	}
}

// Get returns the profile, or a fresh one at the default rating.
func (s *RedisStore) Get(ctx context.Context, playerID string) (*Profile, error) {
	h, err := s.rdb.HGetAll(ctx, s.key(playerID)).Result()
	if err != nil {
		return nil, chessdto.StoreFailure("load rating", err)
	}
	return s.decode(playerID, h), nil
}

// Ratings batch-loads ratings in one pipeline. Unknown players get the default.
func (s *RedisStore) Ratings(ctx context.Context, playerIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(playerIDs))
	if len(playerIDs) == 0 {
		return out, nil
	}
	cmds := make([]*redis.StringCmd, len(playerIDs))
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range playerIDs {
			cmds[i] = p.HGet(ctx, s.key(id), "rating")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, chessdto.StoreFailure("load ratings", err)
	}
	for i, id := range playerIDs {
		r, err := cmds[i].Int()
		if err != nil || r <= 0 {
			r = s.defaultRating
		}
		out[id] = r
	}
	return out, nil
}

// Apply records one finished game for both players. whiteScore is 1, 0.5 or 0.
// A game id is applied at most once.
func (s *RedisStore) Apply(ctx context.Context, gameID, white, black string, whiteScore float64, at time.Time) ([]Change, error) {
	wk, bk, ak := s.key(white), s.key(black), s.appliedKey(gameID)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var changes []Change
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			applied, err := tx.Exists(ctx, ak).Result()
			if err != nil {
				return err
			}
			if applied > 0 {
				return nil
			}
			wh, err := tx.HGetAll(ctx, wk).Result()
			if err != nil {
				return err
			}
			bh, err := tx.HGetAll(ctx, bk).Result()
			if err != nil {
				return err
			}
			wp, bp := s.decode(white, wh), s.decode(black, bh)
			wBefore, bBefore := wp.Rating, bp.Rating
			wd := wp.record(bBefore, whiteScore, at)
			bd := bp.record(wBefore, 1-whiteScore, at)
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.HSet(ctx, wk, encode(wp))
				p.HSet(ctx, bk, encode(bp))
				p.Set(ctx, ak, 1, 30*24*time.Hour)
				return nil
			})
			if err == nil {
				changes = []Change{
					{PlayerID: white, Before: wBefore, After: wp.Rating, Delta: wd},
					{PlayerID: black, Before: bBefore, After: bp.Rating, Delta: bd},
				}
			}
			return err
		}, wk, bk, ak)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, chessdto.StoreFailure("apply rating", err)
		}
		return changes, nil
	}
	return nil, chessdto.Conflict("concurrent_rating_update", "ratings for game %s changed concurrently", gameID)
}

// Service applies ranked results as a gameplay finish hook.
type Service struct {
	store *RedisStore
	clock clockwork.Clock
}

func NewService(store *RedisStore, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{store: store, clock: clock}
}

func (s *Service) Ratings(ctx context.Context, playerIDs []string) (map[string]int, error) {
	return s.store.Ratings(ctx, playerIDs)
}

func (s *Service) Profile(ctx context.Context, playerID string) (*Profile, error) {
	return s.store.Get(ctx, playerID)
}

// GameFinished updates both ratings for finished ranked games; other games are ignored.
func (s *Service) GameFinished(ctx context.Context, g *gameplay.Game) error {
	if g == nil || g.GameType != gameplay.TypeRanked || g.Status != gameplay.StatusFinished || g.Opponent == "" {
		return nil
	}
	score := 0.5
	switch g.Winner {
	case g.Host:
		score = 1
	case g.Opponent:
		score = 0
	}
	at := s.clock.Now().UTC()
	if g.EndTime != nil {
		at = *g.EndTime
	}
	changes, err := s.store.Apply(ctx, g.ID, g.Host, g.Opponent, score, at)
	if err != nil {
		return err
	}
	for _, c := range changes {
		obslog.L().Info("rating_updated",
			zap.String("game_id", g.ID),
			zap.String("player_id", c.PlayerID),
			zap.Int("before", c.Before),
			zap.Int("after", c.After),
		)
	}
	return nil
}
