package chessbuilder

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/abmercy035/chesschamp-api/internal/bracket"
	"github.com/abmercy035/chesschamp-api/internal/config"
	"github.com/abmercy035/chesschamp-api/internal/gameplay"
	"github.com/abmercy035/chesschamp-api/internal/msgcat"
	"github.com/abmercy035/chesschamp-api/internal/notify"
	"github.com/abmercy035/chesschamp-api/internal/obslog"
	"github.com/abmercy035/chesschamp-api/internal/rating"
	"github.com/abmercy035/chesschamp-api/internal/reaper"
	"github.com/abmercy035/chesschamp-api/internal/tournament"
)

type Deps struct {
	Redis       *redis.Client
	Games       *gameplay.Manager
	Tournaments *tournament.Manager
	Ratings     *rating.Service
	Archive     *gameplay.Archive
	Reaper      *reaper.Reaper
	Scheduler   *reaper.Scheduler
}

// New wires every component from cfg. The scheduler is built but not started.
func New(ctx context.Context, cfg *config.AppConfig) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	clock := clockwork.NewRealClock()

	opts, err := parseRedisURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	d := &Deps{Redis: rdb}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("load messages: %w", err)
	}
	gw := notify.NewGateway(publisherFor(cfg, rdb), cat, notify.WithClock(clock))

	d.Ratings = rating.NewService(rating.NewRedisStore(rdb, cfg.DefaultRating), clock)
	gameOpts := []gameplay.Option{
		gameplay.WithClock(clock),
		gameplay.WithCatalog(cat),
		gameplay.WithNotifier(gw),
		gameplay.WithDefaultClock(cfg.DefaultClockSeconds),
		gameplay.WithNoShowGrace(cfg.NoShowGrace),
		gameplay.WithFinishHook(d.Ratings),
	}
	if cfg.DatabaseURL != "" {
		d.Archive, err = gameplay.OpenArchive(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
		gameOpts = append(gameOpts, gameplay.WithFinishHook(d.Archive))
	} else {
		obslog.L().Info("archive_disabled", zap.String("reason", "DATABASE_URL not set"))
	}
	gameStore := gameplay.NewRedisStore(rdb)
	d.Games = gameplay.NewManager(gameStore, gameOpts...)

	policy, err := bracket.ParseTieBreak(cfg.DrawTiebreak)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.Tournaments = tournament.NewManager(tournament.NewRedisStore(rdb), d.Games,
		tournament.WithClock(clock),
		tournament.WithNotifier(gw),
		tournament.WithRatings(d.Ratings),
		tournament.WithTieBreak(policy),
		tournament.WithAdmins(cfg.Admins...),
		tournament.WithReminderLead(cfg.ReminderLead),
	)
	d.Games.AddFinishHook(d.Tournaments)

	d.Reaper = reaper.New(gameStore, reaper.WithClock(clock), reaper.WithStaleAfter(cfg.StaleAfter))
	d.Scheduler, err = reaper.NewScheduler(clock,
		reaper.SweepJob(d.Reaper, cfg.ReaperInterval),
		reaper.CountingJob("forfeit_sweep", cfg.ForfeitCheckInterval, d.Games.SweepForfeits),
		reaper.CountingJob("reminder_sweep", time.Minute, d.Tournaments.SweepReminders),
	)
	if err != nil {
		_ = d.Close()
		return nil, err
	}

	obslog.L().Info("chess_deps_ready",
		zap.String("publish_mode", string(cfg.PublishMode)),
		zap.Bool("archive", d.Archive != nil),
		zap.String("draw_tiebreak", policy.Name()),
	)
	return d, nil
}

func publisherFor(cfg *config.AppConfig, rdb redis.UniversalClient) notify.Publisher {
	redisPub := notify.NewRedisPublisher(rdb, "")
	switch cfg.PublishMode {
	case config.PublishRedis:
		return redisPub
	case config.PublishHTTP:
		return notify.NewHTTPPublisher(cfg.PublishBaseURL, cfg.PublishAPIKey)
	case config.PublishBoth:
		return notify.Fanout{redisPub, notify.NewHTTPPublisher(cfg.PublishBaseURL, cfg.PublishAPIKey)}
	}
	return notify.Nop{}
}

// Close stops the scheduler and releases connections. Safe on partial Deps.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	if d.Scheduler != nil {
		errs = append(errs, d.Scheduler.Shutdown())
	}
	if d.Archive != nil {
		errs = append(errs, d.Archive.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	return errors.Join(errs...)
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	opts, err := redis.ParseURL(u.String())
	if err != nil {
		return nil, err
	}
	opts.PoolSize = 16
	opts.MinIdleConns = 2
	return opts, nil
}
