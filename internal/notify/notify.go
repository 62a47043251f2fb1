// Package notify fans state-change events out to game-<id> and user-<id> channels.
// Delivery is best-effort: the Gateway logs failures and never returns them.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/abmercy035/chesschamp-api/internal/msgcat"
	"github.com/abmercy035/chesschamp-api/internal/obslog"
	"github.com/abmercy035/chesschamp-api/pkg/chessdto"
)

// Event is the payload published on a channel.
type Event struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	EntityID       string         `json:"entityId"`
	Title          string         `json:"title,omitempty"`
	Message        string         `json:"message"`
	TournamentID   string         `json:"tournamentId,omitempty"`
	TournamentName string         `json:"tournamentName,omitempty"`
	Data           map[string]any `json:"data"`
	Timestamp      time.Time      `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, channel string, ev Event) error
}

func GameChannel(gameID string) string { return "game-" + gameID }

func UserChannel(userID string) string { return "user-" + userID }

// Notice is what callers hand to the Gateway; Vars feed the message template.
type Notice struct {
	Type           string
	EntityID       string
	TournamentID   string
	TournamentName string
	Data           map[string]any
	Vars           map[string]any
}

type Gateway struct {
	pub     Publisher
	cat     *msgcat.Catalog
	clock   clockwork.Clock
	timeout time.Duration
}

type GatewayOption func(*Gateway)

func WithClock(c clockwork.Clock) GatewayOption { return func(g *Gateway) { g.clock = c } }

func WithTimeout(d time.Duration) GatewayOption { return func(g *Gateway) { g.timeout = d } }

func NewGateway(pub Publisher, cat *msgcat.Catalog, opts ...GatewayOption) *Gateway {
	if pub == nil {
		pub = Nop{}
	}
	g := &Gateway{pub: pub, cat: cat, clock: clockwork.NewRealClock(), timeout: 3 * time.Second}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Send renders the notice and publishes it. A nil Gateway drops the notice.
func (g *Gateway) Send(ctx context.Context, channel string, n Notice) {
	if g == nil {
		return
	}
	ev := g.build(n)

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()
	if err := g.pub.Publish(pctx, channel, ev); err != nil {
		obslog.L().Warn("notify_publish_failed",
			zap.String("channel", channel),
			zap.String("event", ev.Type),
			zap.String("entity_id", ev.EntityID),
			zap.Error(err),
		)
		return
	}
	obslog.L().Debug("notify_published", zap.String("channel", channel), zap.String("event", ev.Type))
}

func (g *Gateway) build(n Notice) Event {
	data := n.Data
	if data == nil {
		data = map[string]any{}
	}
	vars := n.Vars
	if vars == nil {
		vars = data
	}
	scope := scopeFor(n.Type)
	return Event{
		ID:             uuid.NewString(),
		Type:           n.Type,
		EntityID:       n.EntityID,
		Title:          g.cat.RenderOr(scope+"."+n.Type+".title", vars, ""),
		Message:        g.cat.RenderOr(scope+"."+n.Type+".message", vars, n.Type),
		TournamentID:   n.TournamentID,
		TournamentName: n.TournamentName,
		Data:           data,
		Timestamp:      g.clock.Now().UTC(),
	}
}

func scopeFor(eventType string) string {
	switch eventType {
	case chessdto.EventGameStart, chessdto.EventMove, chessdto.EventGameEnd,
		chessdto.EventDrawOffer, chessdto.EventDrawDeclined:
		return "game"
	}
	return "tournament"
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, Event) error { return nil }

// Fanout publishes to every target and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, channel string, ev Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, channel, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
