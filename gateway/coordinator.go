package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sandwichrt/shardgate/client"
)

// ErrNoTokenProvided mirrors the teacher's validation error.
var ErrNoTokenProvided = errors.New("coordinator: no token was provided")

// ErrNotEnoughSessions is raised when the platform's remaining identify
// budget cannot cover every shard this fleet is about to start (§4.7 step
// 1). SPEC_FULL.md §9 resolves the open question of whether the refusal
// threshold is "<" or "<=" in favour of "<=": a fleet that would exactly
// exhaust its budget on startup is refused, since that leaves no headroom
// for the first reconnect any shard is statistically certain to need.
//
// Grounded on the teacher's Manager.ErrNotEnoughSessions (manager.go).
var ErrNotEnoughSessions = errors.New("not enough sessions remaining to start coordinator")

// CoordinatorConfig is C7's fleet-wide configuration (§5, §9 "no ambient
// mutable state").
type CoordinatorConfig struct {
	Token     string
	UserAgent string

	// ShardCount overrides the platform's recommended count; 0 uses the
	// recommendation from gateway discovery (§4.7 step 1).
	ShardCount int

	ShardConfig Config
	Store       SessionStore
	Bus         Bus
	HTTPClient  *http.Client
	Log         zerolog.Logger

	// IdentifyStaggerMs overrides the default 5000ms spacing between
	// successive shards' initial connect (§4.7 step 3); 0 uses the
	// default.
	IdentifyStaggerMs int64
}

func (c CoordinatorConfig) withDefaults() CoordinatorConfig {
	if c.Store == nil {
		c.Store = NullSessionStore{}
	}
	if c.Bus == nil {
		c.Bus = NopBus{}
	}
	if c.HTTPClient == nil {
		c.HTTPClient = defaultHTTPClient()
	}
	if c.IdentifyStaggerMs <= 0 {
		c.IdentifyStaggerMs = identifyStagger
	}
	return c
}

// Coordinator is C7: it discovers the gateway, spawns ShardCount shard
// runners staggered by IdentifyStaggerMs, and owns the fleet-wide control
// plane — re-shard and shutdown (§5).
//
// Adapted from the teacher's Manager (manager.go). The teacher's Manager
// constructed its Redis/Nats/Stan clients directly and kept a ShardGroups
// registry; here those concerns move behind the injected SessionStore/Bus
// interfaces (D1/D2), and "shard group" collapses to a single shard per
// runner goroutine since spec.md's fleet model has no group layer above
// the individual shard.
type Coordinator struct {
	cfg  CoordinatorConfig
	log  zerolog.Logger
	rest *client.Client

	gatewayURL string
	shards     map[int]*Shard
	controls   map[int]chan controlMessage
	stops      map[int]chan struct{}
	results    chan RunResult
}

// NewCoordinator validates cfg and prepares a Coordinator. It performs no
// I/O; gateway discovery happens in Run.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Token == "" {
		return nil, ErrNoTokenProvided
	}
	cfg = cfg.withDefaults()

	rest := client.NewClient(cfg.Token)
	rest.HTTP = cfg.HTTPClient
	rest.UserAgent = cfg.UserAgent

	return &Coordinator{
		cfg:      cfg,
		log:      cfg.Log,
		rest:     rest,
		shards:   make(map[int]*Shard),
		controls: make(map[int]chan controlMessage),
		stops:    make(map[int]chan struct{}),
		results:  make(chan RunResult, 64),
	}, nil
}

// Run implements §4.7: discover the gateway, refuse to start if the
// session budget can't cover the fleet, spawn every shard staggered by
// IdentifyStaggerMs, then drive the fleet's control loop until ctx is
// cancelled, a shard reports a fatal close, or a re-shard fails to rebuild
// the fleet. A successful re-shard rebuilds the fleet and the loop goes on.
func (co *Coordinator) Run(ctx context.Context) error {
	info, err := discoverGateway(ctx, co.rest)
	if err != nil {
		return fmt.Errorf("discover gateway: %w", err)
	}

	shardCount := co.cfg.ShardCount
	if shardCount <= 0 {
		shardCount = info.ShardCount
	}
	if err := checkSessionBudget(info.SessionLimit, shardCount); err != nil {
		return err
	}

	co.gatewayURL = dialURL(info.URL)
	co.log.Info().Str("url", co.gatewayURL).Int("shards", shardCount).
		Int("sessions_remaining", info.SessionLimit.Remaining).Msg("starting shard fleet")

	if err := co.spawnFleet(ctx, shardCount); err != nil {
		return err
	}

	return co.controlLoop(ctx)
}

// checkSessionBudget implements the refusal predicate spec.md §9 leaves
// open: remaining identify budget must exceed (not merely meet) the fleet
// size, see ErrNotEnoughSessions.
func checkSessionBudget(limit SessionStartLimit, shardCount int) error {
	if limit.Remaining <= shardCount {
		return fmt.Errorf("%w: %d remaining, %d shards requested", ErrNotEnoughSessions, limit.Remaining, shardCount)
	}
	return nil
}

// spawnFleet starts shardCount runners, staggering each connect by
// IdentifyStaggerMs (§4.7 step 3) so the fleet never exceeds the
// platform's one-identify-per-interval-per-bot limit.
func (co *Coordinator) spawnFleet(ctx context.Context, shardCount int) error {
	for id := 0; id < shardCount; id++ {
		co.spawnShard(id, shardCount)

		if id == shardCount-1 {
			break
		}
		select {
		case <-time.After(time.Duration(co.cfg.IdentifyStaggerMs) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ErrUnknownShard is returned by SendFrame for a shard id the coordinator
// isn't currently running.
var ErrUnknownShard = errors.New("coordinator: unknown shard id")

// SendFrame pushes an arbitrary outbound frame to a running shard through
// its control_inbox (§4.5 step 2's reserved "other commands"), e.g. for a
// host that wants to push a presence update.
func (co *Coordinator) SendFrame(shardID int, frame []byte) error {
	control, ok := co.controls[shardID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownShard, shardID)
	}
	control <- controlMessage{kind: controlSendFrame, frame: frame}
	return nil
}

func (co *Coordinator) spawnShard(id, count int) {
	control := make(chan controlMessage, 1)
	stop := make(chan struct{})

	shard := newShard(id, count, co.cfg.Token, co.log)
	shard.controlInbox = control
	shard.stopSignal = stop

	co.shards[id] = shard
	co.controls[id] = control
	co.stops[id] = stop

	go runShard(co.gatewayURL, shard, co.cfg.ShardConfig, co.cfg.Store, co.results)
	control <- controlMessage{kind: controlConnect}
}

// controlLoop is C7's `alts`: it waits on ctx cancellation and on shard
// results, escalating bot-level effects (§4.5, §5).
func (co *Coordinator) controlLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			co.shutdownFleet()
			return ctx.Err()

		case res := <-co.results:
			if res.Shard == nil {
				continue
			}
			co.shards[res.Shard.ID] = res.Shard

			for _, eff := range res.Effects {
				switch eff.Kind {
				case EffectDiscordEvent:
					if err := co.cfg.Bus.Publish(ctx, res.Shard.ID, eff.EventType, eff.Seq, eff.EventPayload); err != nil {
						co.log.Warn().Err(err).Int("shard", res.Shard.ID).Msg("failed to publish event")
					}

				case EffectReshard:
					co.log.Warn().Int("shard", res.Shard.ID).Msg("reshard requested, rebuilding fleet")
					if err := co.reshard(ctx); err != nil {
						return err
					}

				case EffectDisconnectBot:
					co.log.Error().Int("shard", res.Shard.ID).Int("code", res.Shard.StopCode).
						Msg("shard reported a fatal close, stopping fleet")
					co.shutdownFleet()
					return fmt.Errorf("shard %d: fatal close code %d", res.Shard.ID, res.Shard.StopCode)
				}
			}
		}
	}
}

// reshard implements §4.7's re-shard reaction: every shard is stopped,
// the gateway is rediscovered (the recommended shard count may have
// changed), and the fleet is rebuilt from scratch with the new count.
func (co *Coordinator) reshard(ctx context.Context) error {
	priorCount := len(co.shards)
	co.shutdownFleet()

	info, err := discoverGateway(ctx, co.rest)
	if err != nil {
		return fmt.Errorf("rediscover gateway: %w", err)
	}

	shardCount := co.cfg.ShardCount
	if shardCount <= 0 {
		shardCount = info.ShardCount
	}
	if shardCount <= 0 {
		shardCount = priorCount
	}
	if err := checkSessionBudget(info.SessionLimit, shardCount); err != nil {
		return err
	}

	co.gatewayURL = dialURL(info.URL)
	return co.spawnFleet(ctx, shardCount)
}

// shutdownFleet closes every shard's stop_signal — the coordinator sends
// into it, so per Go's single-writer-closes convention it is the one that
// closes it (a deliberate adaptation of spec.md §4.5's looser "the runner
// closes subordinate channels" wording) — then drains the one nil
// RunResult each runner emits on its way out (§4.5 step 1) so no runner
// goroutine is left blocked. control_inbox is deliberately left open and
// simply abandoned: a closed buffered channel reads back as an endless
// stream of zero-value controlMessage{kind: controlConnect}, which would
// be indistinguishable from a real connect command, so stop_signal alone
// carries the shutdown signal.
func (co *Coordinator) shutdownFleet() {
	pending := len(co.shards)

	for id, stop := range co.stops {
		close(stop)
		delete(co.stops, id)
	}
	for id := range co.controls {
		delete(co.controls, id)
	}

	for pending > 0 {
		if res := <-co.results; res.Shard == nil {
			pending--
		}
	}
	co.shards = make(map[int]*Shard)
}
