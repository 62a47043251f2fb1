// Package gameplay owns a chess game's lifecycle: waiting, active, finished.
// Every transition is a version-checked read-modify-write against the Store.
package gameplay

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/abmercy035/chesschamp-api/internal/msgcat"
	"github.com/abmercy035/chesschamp-api/internal/notify"
	"github.com/abmercy035/chesschamp-api/internal/obslog"
	"github.com/abmercy035/chesschamp-api/internal/rules"
	"github.com/abmercy035/chesschamp-api/pkg/chessdto"
)

// FinishHook runs after a game finished and the transition is committed.
// Errors are logged; they never undo the finish.
type FinishHook interface {
	GameFinished(ctx context.Context, g *Game) error
}

type FinishHookFunc func(ctx context.Context, g *Game) error

func (f FinishHookFunc) GameFinished(ctx context.Context, g *Game) error { return f(ctx, g) }

type Manager struct {
	store     Store
	notifier  *notify.Gateway
	msgs      *msgcat.Catalog
	clock     clockwork.Clock
	newEngine func() rules.Engine
	hooks     []FinishHook

	defaultClock int
	noShowGrace  time.Duration
}

type Option func(*Manager)

func WithNotifier(n *notify.Gateway) Option { return func(m *Manager) { m.notifier = n } }
func WithCatalog(c *msgcat.Catalog) Option  { return func(m *Manager) { m.msgs = c } }
func WithClock(c clockwork.Clock) Option    { return func(m *Manager) { m.clock = c } }
func WithFinishHook(h FinishHook) Option    { return func(m *Manager) { m.hooks = append(m.hooks, h) } }

func WithEngineFactory(f func() rules.Engine) Option { return func(m *Manager) { m.newEngine = f } }

func WithDefaultClock(seconds int) Option {
	return func(m *Manager) {
		if seconds > 0 {
			m.defaultClock = seconds
		}
	}
}

func WithNoShowGrace(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.noShowGrace = d
		}
	}
}

func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		clock:        clockwork.NewRealClock(),
		newEngine:    rules.NewEngine,
		defaultClock: 300,
		noShowGrace:  5 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddFinishHook registers h after construction, for hooks that depend on the manager.
func (m *Manager) AddFinishHook(h FinishHook) {
	if h != nil {
		m.hooks = append(m.hooks, h)
	}
}

func (m *Manager) Store() Store { return m.store }

func (m *Manager) NoShowGrace() time.Duration { return m.noShowGrace }

func (m *Manager) newGame(host string, gt GameType) *Game {
	now := m.clock.Now().UTC()
	return &Game{
		ID:        uuid.NewString(),
		Host:      host,
		Status:    StatusWaiting,
		StartFEN:  rules.StartFEN,
		FEN:       rules.StartFEN,
		Turn:      rules.White,
		TimeLeft:  chessdto.Clock{W: m.defaultClock, B: m.defaultClock},
		GameType:  gt,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Create opens a casual game waiting for an opponent.
func (m *Manager) Create(ctx context.Context, hostID string) (*Game, error) {
	hostID = strings.TrimSpace(hostID)
	if hostID == "" {
		return nil, chessdto.Unauthorized("missing_user", "host is required")
	}
	g := m.newGame(hostID, TypeCasual)
	if err := m.store.Create(ctx, g); err != nil {
		return nil, err
	}
	obslog.L().Info("game_created", zap.String("game_id", g.ID), zap.String("host", hostID), zap.String("type", string(g.GameType)))
	return g, nil
}

// CreateRanked starts a ranked game between two already-paired players.
func (m *Manager) CreateRanked(ctx context.Context, hostID, opponentID string) (*Game, error) {
	if hostID == "" || opponentID == "" || hostID == opponentID {
		return nil, chessdto.InvalidState("invalid_players", "", "ranked games need two distinct players")
	}
	g := m.newGame(hostID, TypeRanked)
	g.Opponent = opponentID
	g.Status = StatusActive
	start := g.CreatedAt
	g.StartTime = &start
	if err := m.store.Create(ctx, g); err != nil {
		return nil, err
	}
	obslog.L().Info("game_created", zap.String("game_id", g.ID), zap.String("host", hostID), zap.String("opponent", opponentID), zap.String("type", string(g.GameType)))
	m.publishStart(ctx, g)
	return g, nil
}

type TournamentGameSpec struct {
	TournamentID   string
	Round          int
	MatchIndex     int
	White          string
	Black          string
	ScheduledStart time.Time
	// ClockSeconds overrides the default clock for both sides.
	ClockSeconds int
}

// CreateTournamentGame creates a waiting game with both players pre-assigned.
func (m *Manager) CreateTournamentGame(ctx context.Context, spec TournamentGameSpec) (*Game, error) {
	if spec.TournamentID == "" || spec.White == "" || spec.Black == "" || spec.White == spec.Black {
		return nil, chessdto.InvalidState("invalid_pairing", "", "tournament games need a tournament and two distinct players")
	}
	g := m.newGame(spec.White, TypeTournament)
	g.Opponent = spec.Black
	if spec.ClockSeconds > 0 {
		g.TimeLeft = chessdto.Clock{W: spec.ClockSeconds, B: spec.ClockSeconds}
	}
	g.Tournament = &TournamentRef{ID: spec.TournamentID, Round: spec.Round, MatchIndex: spec.MatchIndex}
	sched := spec.ScheduledStart.UTC()
	if spec.ScheduledStart.IsZero() {
		sched = g.CreatedAt
	}
	g.ScheduledStartTime = &sched
	if err := m.store.Create(ctx, g); err != nil {
		return nil, err
	}
	obslog.L().Info("game_created",
		zap.String("game_id", g.ID),
		zap.String("type", string(g.GameType)),
		zap.String("tournament_id", spec.TournamentID),
		zap.Int("round", spec.Round),
		zap.Int("match_index", spec.MatchIndex),
		zap.Time("scheduled_start", sched),
	)
	return g, nil
}

func (m *Manager) Get(ctx context.Context, gameID string) (*Game, error) {
	return m.store.Get(ctx, strings.TrimSpace(gameID))
}

// ListWaiting returns games waiting for an opponent, newest first.
func (m *Manager) ListWaiting(ctx context.Context) ([]*Game, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Game
	for _, g := range all {
		if g.Status == StatusWaiting && g.Opponent == "" {
			out = append(out, g)
		}
	}
	return out, nil
}

type JoinOutcome string

const (
	JoinedAsOpponent JoinOutcome = "joined"
	AlreadyInGame    JoinOutcome = "already_in_game"
	Spectating       JoinOutcome = "spectating"
	ReadyConfirmed   JoinOutcome = "ready"
	NoShowDecided    JoinOutcome = "no_show"
)

type JoinResult struct {
	Outcome JoinOutcome
	Role    string
	Game    *Game
	Message string
}

// Join seats the caller as opponent, confirms tournament readiness, or adds a spectator.
func (m *Manager) Join(ctx context.Context, gameID, userID string) (*JoinResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, chessdto.Unauthorized("missing_user", "user is required")
	}
	g, err := m.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.IsTournament() {
		return m.joinTournament(ctx, g, userID)
	}
	if role := g.RoleOf(userID); role != "" {
		return m.alreadyIn(g, role), nil
	}
	switch g.Status {
	case StatusFinished:
		return nil, chessdto.InvalidState("game_finished", string(g.Status), "game %s is finished", g.ID)
	case StatusActive:
		return m.spectate(ctx, g.ID)
	}

	now := m.clock.Now().UTC()
	updated, err := m.store.Update(ctx, g.ID, func(cur *Game) error {
		if cur.Opponent != "" || cur.Status != StatusWaiting {
			return chessdto.Conflict("game_full", "game is full")
		}
		cur.Opponent = userID
		cur.Status = StatusActive
		cur.StartTime = &now
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		if chessdto.KindOf(err) == chessdto.KindConflict {
			obslog.L().Info("game_join_lost", zap.String("game_id", g.ID), zap.String("user_id", userID))
		}
		return nil, err
	}
	obslog.L().Info("game_joined", zap.String("game_id", updated.ID), zap.String("host", updated.Host), zap.String("opponent", userID))
	m.publishStart(ctx, updated)
	return &JoinResult{Outcome: JoinedAsOpponent, Role: "opponent", Game: updated}, nil
}

func (m *Manager) alreadyIn(g *Game, role string) *JoinResult {
	return &JoinResult{
		Outcome: AlreadyInGame,
		Role:    role,
		Game:    g,
		Message: m.msgs.RenderOr("join.already_in_game", map[string]any{"role": role}, "Already in game as "+role),
	}
}

func (m *Manager) spectate(ctx context.Context, gameID string) (*JoinResult, error) {
	updated, err := m.store.Update(ctx, gameID, func(cur *Game) error {
		cur.Watches++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &JoinResult{
		Outcome: Spectating,
		Role:    "spectator",
		Game:    updated,
		Message: m.msgs.RenderOr("join.spectating", nil, "Joined as spectator"),
	}, nil
}

func (m *Manager) joinTournament(ctx context.Context, g *Game, userID string) (*JoinResult, error) {
	role := g.RoleOf(userID)
	if role == "" {
		return nil, chessdto.Unauthorized("not_assigned", "you are not assigned to this tournament game")
	}
	switch g.Status {
	case StatusActive:
		return m.alreadyIn(g, role), nil
	case StatusFinished:
		return nil, chessdto.InvalidState("game_finished", string(g.Status), "game %s is finished", g.ID)
	}

	now := m.clock.Now().UTC()
	if sched := g.ScheduledStartTime; sched != nil {
		if now.Before(*sched) {
			mins := int(math.Ceil(sched.Sub(now).Minutes()))
			msg := m.msgs.RenderOr("join.waiting", map[string]any{"minutes": mins},
				fmt.Sprintf("Tournament game starts in %d minute(s).", mins))
			return nil, chessdto.InvalidState("not_started", string(g.Status), "%s", msg)
		}
		if now.After(sched.Add(m.noShowGrace)) {
			return m.awardNoShow(ctx, g.ID, userID, now)
		}
	}

	activated := false
	updated, err := m.store.Update(ctx, g.ID, func(cur *Game) error {
		activated = false
		switch cur.Status {
		case StatusActive:
			return ErrNoChange
		case StatusFinished:
			return chessdto.InvalidState("game_finished", string(cur.Status), "game %s is finished", cur.ID)
		}
		if !cur.isReady(userID) {
			cur.Ready = append(cur.Ready, userID)
		}
		if cur.isReady(cur.Host) && cur.isReady(cur.Opponent) {
			cur.Status = StatusActive
			cur.StartTime = &now
			activated = true
		}
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated.Status == StatusActive {
		if activated {
			obslog.L().Info("game_started", zap.String("game_id", updated.ID), zap.String("tournament_id", updated.Tournament.ID))
			m.publishStart(ctx, updated)
		}
		return &JoinResult{Outcome: JoinedAsOpponent, Role: role, Game: updated}, nil
	}
	other := updated.PlayerFor(updated.ColorOf(userID).Opposite())
	return &JoinResult{
		Outcome: ReadyConfirmed,
		Role:    role,
		Game:    updated,
		Message: m.msgs.RenderOr("join.ready", map[string]any{"opponent": other}, "Ready confirmed"),
	}, nil
}

// awardNoShow finishes a waiting tournament game past its grace window.
// The caller wins unless the other player had already confirmed readiness.
func (m *Manager) awardNoShow(ctx context.Context, gameID, userID string, now time.Time) (*JoinResult, error) {
	decided := false
	updated, err := m.store.Update(ctx, gameID, func(cur *Game) error {
		decided = false
		if cur.Status != StatusWaiting {
			return ErrNoChange
		}
		winner := userID
		other := cur.PlayerFor(cur.ColorOf(userID).Opposite())
		if cur.isReady(other) && !cur.isReady(userID) {
			winner = other
		}
		finish(cur, winner, ReasonNoShow, now)
		decided = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if decided {
		m.afterFinish(ctx, updated, nil)
	}
	if updated.Status == StatusActive {
		return m.alreadyIn(updated, updated.RoleOf(userID)), nil
	}
	return &JoinResult{Outcome: NoShowDecided, Role: updated.RoleOf(userID), Game: updated}, nil
}

func (m *Manager) publishStart(ctx context.Context, g *Game) {
	data := map[string]any{
		"gameId": g.ID,
		"white":  map[string]any{"id": g.Host},
		"black":  map[string]any{"id": g.Opponent},
		"fen":    g.FEN,
		"turn":   g.Turn,
	}
	if g.Tournament != nil {
		data["tournament"] = g.Tournament
	}
	m.notifier.Send(ctx, notify.GameChannel(g.ID), notify.Notice{
		Type:     chessdto.EventGameStart,
		EntityID: g.ID,
		Data:     data,
		Vars:     map[string]any{"white": g.Host, "black": g.Opponent},
	})
}

// afterFinish logs, publishes gameEnd and runs the finish hooks for a committed finish.
func (m *Manager) afterFinish(ctx context.Context, g *Game, extra map[string]any) {
	fields := []zap.Field{
		zap.String("game_id", g.ID),
		zap.String("winner", g.Winner),
		zap.String("reason", string(g.WinReason)),
		zap.Int("moves", len(g.Moves)),
		zap.String("type", string(g.GameType)),
	}
	if g.Tournament != nil {
		fields = append(fields, zap.String("tournament_id", g.Tournament.ID), zap.Int("round", g.Tournament.Round))
	}
	obslog.L().Info("game_finished", fields...)

	data := map[string]any{
		"gameId": g.ID,
		"reason": g.WinReason,
		"winner": nil,
		"fen":    g.FEN,
	}
	if g.Winner != "" {
		data["winner"] = map[string]any{"id": g.Winner, "color": g.ColorOf(g.Winner)}
	}
	for k, v := range extra {
		data[k] = v
	}
	m.notifier.Send(ctx, notify.GameChannel(g.ID), notify.Notice{
		Type:     chessdto.EventGameEnd,
		EntityID: g.ID,
		Data:     data,
		Vars:     map[string]any{"winner": g.Winner, "reason": string(g.WinReason)},
	})

	for _, h := range m.hooks {
		if err := h.GameFinished(ctx, g.clone()); err != nil {
			obslog.L().Error("game_finish_hook_failed", zap.String("game_id", g.ID), zap.Error(err))
		}
	}
}
