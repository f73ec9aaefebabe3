package gateway

import (
	"context"
)

// RunResult is what the shard runner (C5) yields after every iteration of
// its event loop: the shard's current state plus any bot-level effects the
// coordinator (C7) must apply. A nil Shard means the runner has exited
// (§4.5).
type RunResult struct {
	Shard   *Shard
	Effects []Effect
}

// runShard drives a single shard forever, applying shard-local effects
// itself and forwarding bot-level effects (reshard, discordEvent,
// disconnectBot) to results for the coordinator to act on. gatewayURL is
// fixed for the shard's lifetime; every (re)connect dials it (§4.5, §4.7).
//
// Adapted from the teacher's ShardGroup.Spawn/Shard.Open blocking loop,
// restructured into the priority-ordered select spec.md §4.5 specifies and
// split so the pure transition (step, in statemachine.go) never touches I/O.
func runShard(gatewayURL string, shard *Shard, cfg Config, store SessionStore, results chan<- RunResult) {
	cfg = cfg.withDefaults()
	cur := shard

	if sid, seq, seqSet, err := store.Load(context.Background(), cur.ID); err == nil && sid != "" {
		cur.SessionID = sid
		cur.Seq = seq
		cur.SeqSet = seqSet
	} else if err != nil {
		cur.log.Warn().Err(err).Msg("failed to load persisted session, starting fresh")
	}

	for {
		// Priority 1: stop_signal.
		select {
		case <-cur.stopSignal:
			shutdownShard(cur)
			results <- RunResult{Shard: nil}
			return
		default:
		}

		// Priority 2: control_inbox.
		select {
		case <-cur.stopSignal:
			shutdownShard(cur)
			results <- RunResult{Shard: nil}
			return
		case cmd := <-cur.controlInbox:
			cur = applyControl(cur, cmd, gatewayURL, cfg)
			results <- RunResult{Shard: cur}
			continue
		default:
		}

		// Priority 3: heartbeat_tick.
		select {
		case <-cur.stopSignal:
			shutdownShard(cur)
			results <- RunResult{Shard: nil}
			return
		case cmd := <-cur.controlInbox:
			cur = applyControl(cur, cmd, gatewayURL, cfg)
			results <- RunResult{Shard: cur}
			continue
		case <-cur.heartbeatTick:
			cur = applyHeartbeatTick(cur, gatewayURL, cfg)
			results <- RunResult{Shard: cur}
			continue
		default:
		}

		// Priority 4: event_inbox, with the same higher-priority cases
		// still live so a stop/control/tick arriving while we'd
		// otherwise block on events is not starved.
		select {
		case <-cur.stopSignal:
			shutdownShard(cur)
			results <- RunResult{Shard: nil}
			return
		case cmd := <-cur.controlInbox:
			cur = applyControl(cur, cmd, gatewayURL, cfg)
			results <- RunResult{Shard: cur}
			continue
		case <-cur.heartbeatTick:
			cur = applyHeartbeatTick(cur, gatewayURL, cfg)
			results <- RunResult{Shard: cur}
			continue
		case ev, ok := <-cur.eventInbox:
			if !ok {
				// The websocket driver closes its channel right after the
				// disconnect event; when that disconnect led to no
				// reconnect, the inbox is still that closed channel, so
				// drop it rather than spin on it.
				cur.eventInbox = nil
				continue
			}
			cur = applyWebsocketEvent(cur, ev, cfg, store, gatewayURL, results)
			continue
		}
	}
}

// applyControl handles a host-originated command (§4.5 step 2).
func applyControl(cur *Shard, cmd controlMessage, gatewayURL string, cfg Config) *Shard {
	if cmd.kind == controlSendFrame {
		next, _ := applyEffects(cur, []Effect{{Kind: EffectSendFrame, Frame: cmd.frame}}, gatewayURL, cfg)
		return next
	}
	if cmd.kind != controlConnect {
		return cur
	}

	next := cur.clone()
	stopHeartbeat(next)

	handle, err := dialWebsocket(context.Background(), gatewayURL, cfg.BufferSize, cfg.MaxFrameSize)
	if err != nil {
		next.log.Error().Err(err).Msg("failed to dial gateway")
		return next
	}
	next.ws = handle
	next.eventInbox = handle.events

	next, _ = applyEffects(next, []Effect{{Kind: func() EffectKind {
		if next.shouldResume() {
			return EffectResume
		}
		return EffectIdentify
	}()}}, gatewayURL, cfg)
	return next
}

// applyHeartbeatTick handles priority 3 (§4.5 step 3).
func applyHeartbeatTick(cur *Shard, gatewayURL string, cfg Config) *Shard {
	next := cur.clone()

	if next.Ack {
		var seq *int64
		if next.SeqSet {
			s := next.Seq
			seq = &s
		}
		frame, err := encodeHeartbeat(seq)
		if err != nil {
			next.log.Error().Err(err).Msg("failed to encode heartbeat")
			return next
		}
		if err := next.ws.sendText(frame); err != nil {
			next.log.Warn().Err(err).Msg("failed to send heartbeat")
		}
		next.Ack = false
		return next
	}

	next.log.Debug().Msg("heartbeat not acked since last beat, treating connection as a zombie")
	if next.ws != nil {
		if err := next.ws.close(); err != nil {
			next.log.Debug().Err(err).Msg("error closing zombie websocket (ignored)")
		}
	}
	stopHeartbeat(next)

	handle, err := dialWebsocket(context.Background(), gatewayURL, cfg.BufferSize, cfg.MaxFrameSize)
	if err != nil {
		next.log.Error().Err(err).Msg("failed to reconnect after zombie detection")
		next.ws = nil
		next.eventInbox = nil
		return next
	}
	next.ws = handle
	next.eventInbox = handle.events
	return next
}

// applyWebsocketEvent feeds a websocket event through C4 and applies the
// resulting effects (§4.5 step 4).
func applyWebsocketEvent(cur *Shard, ev wsEvent, cfg Config, store SessionStore, gatewayURL string, results chan<- RunResult) *Shard {
	var input stepInput
	switch ev.kind {
	case evConnect:
		input = ConnectInput{}
	case evMessage:
		input = MessageInput{Text: ev.text}
	case evError:
		input = ErrorInput{Err: ev.err}
	case evDisconnect:
		input = DisconnectInput{Code: ev.code, Msg: ev.msg}
	default:
		return cur
	}

	next, effects := step(cur, input, cfg)
	if next == nil {
		results <- RunResult{Shard: cur}
		return cur
	}

	persistSession(next, store)

	applied, botEffects := applyEffects(next, effects, gatewayURL, cfg)
	results <- RunResult{Shard: applied, Effects: botEffects}
	return applied
}

// applyEffects runs every shard-local effect against its I/O handler,
// accumulating the bot-level effects to escalate (§4.5's shard-effect
// handler). gatewayURL is used by resume and reconnect, which dial a fresh
// websocket; when it is empty they skip the dial (resume then sends on the
// current handle, reconnect clears the stop-code fields and stops the
// heartbeat but opens no websocket).
// identify always sends on the current handle.
func applyEffects(cur *Shard, effects []Effect, gatewayURL string, cfg Config) (*Shard, []Effect) {
	next := cur
	var botEffects []Effect

	for _, eff := range effects {
		if eff.isBotLevel() {
			botEffects = append(botEffects, eff)
			continue
		}

		switch eff.Kind {
		case EffectIdentify:
			next = sendIdentify(next)
		case EffectResume:
			next = sendResume(next, gatewayURL, cfg)
		case EffectStartHeartbeat:
			next = startHeartbeat(next, eff.IntervalMs)
		case EffectSendHeartbeat:
			next = requestHeartbeatTick(next)
		case EffectReconnect:
			next = reconnectShard(next, gatewayURL, cfg)
		case EffectSendFrame:
			next = sendFrame(next, eff.Frame)
		case EffectError:
			next.log.Warn().Err(eff.Err).Msg("shard reported an error")
		}
	}

	return next, botEffects
}

func sendIdentify(cur *Shard) *Shard {
	next := cur.clone()
	frame, err := encodeIdentify(next.Token, next.ID, next.Count)
	if err != nil {
		next.log.Error().Err(err).Msg("failed to encode identify frame")
		return next
	}
	if next.ws == nil {
		next.log.Error().Msg("identify requested with no open websocket")
		return next
	}
	if err := next.ws.sendText(frame); err != nil {
		next.log.Error().Err(err).Msg("failed to send identify frame")
	}
	return next
}

// sendFrame writes a host-supplied outbound frame verbatim, e.g. a presence
// update pushed in through control_inbox's sendFrame command.
func sendFrame(cur *Shard, frame []byte) *Shard {
	next := cur.clone()
	if next.ws == nil {
		next.log.Warn().Msg("sendFrame requested with no open websocket")
		return next
	}
	if err := next.ws.sendText(frame); err != nil {
		next.log.Error().Err(err).Msg("failed to send frame")
	}
	return next
}

// sendResume opens a fresh websocket (when gatewayURL is set) before
// sending the resume frame on it (§4.5). The handle the shard held before
// is replaced, not closed.
func sendResume(cur *Shard, gatewayURL string, cfg Config) *Shard {
	next := cur.clone()

	if gatewayURL != "" {
		handle, err := dialWebsocket(context.Background(), gatewayURL, cfg.BufferSize, cfg.MaxFrameSize)
		if err != nil {
			next.log.Error().Err(err).Msg("failed to open websocket for resume")
			return next
		}
		next.ws = handle
		next.eventInbox = handle.events
	}

	frame, err := encodeResume(next.Token, next.SessionID, next.Seq)
	if err != nil {
		next.log.Error().Err(err).Msg("failed to encode resume frame")
		return next
	}
	if next.ws == nil {
		next.log.Error().Msg("resume requested with no open websocket")
		return next
	}
	if err := next.ws.sendText(frame); err != nil {
		next.log.Error().Err(err).Msg("failed to send resume frame")
	}
	return next
}

// stopHeartbeat signals the running heartbeat engine (if any) to exit and
// clears the shard's handles to it. The engine goroutine is the sole
// sender on heartbeatTick and closes it itself once heartbeatDone fires,
// so callers must never close heartbeatTick directly — doing so races the
// engine's own send and panics (closed channel send is unconditional,
// even under select/default).
func stopHeartbeat(next *Shard) {
	if next.heartbeatDone != nil {
		close(next.heartbeatDone)
	}
	next.heartbeatTick = nil
	next.heartbeatDone = nil
}

func startHeartbeat(cur *Shard, intervalMs int64) *Shard {
	next := cur.clone()
	stopHeartbeat(next)

	tick := make(chan struct{}, 1)
	done := make(chan struct{})
	next.heartbeatTick = tick
	next.heartbeatDone = done
	next.Ack = true
	startHeartbeatEngine(intervalMs, tick, done)
	publishTick(tick, done) // request one tick immediately (§4.5 step "start_heartbeat")
	return next
}

func requestHeartbeatTick(cur *Shard) *Shard {
	if cur.heartbeatTick != nil {
		done := make(chan struct{})
		publishTick(cur.heartbeatTick, done)
	}
	return cur
}

// reconnectShard opens a fresh websocket and event_inbox, clearing the
// stop-code bookkeeping (but not seq/session_id, which were already
// cleared upstream if an invalid session led here) (§4.5 step "reconnect").
func reconnectShard(cur *Shard, gatewayURL string, cfg Config) *Shard {
	next := cur.clone()
	next.InvalidSession = false
	next.StopCodeSet = false
	next.StopCode = 0
	next.DisconnectMsg = ""
	stopHeartbeat(next)

	if gatewayURL == "" {
		return next
	}

	handle, err := dialWebsocket(context.Background(), gatewayURL, cfg.BufferSize, cfg.MaxFrameSize)
	if err != nil {
		next.log.Error().Err(err).Msg("failed to reconnect")
		next.ws = nil
		next.eventInbox = nil
		return next
	}
	next.ws = handle
	next.eventInbox = handle.events
	return next
}

// shutdownShard closes every subordinate handle the runner owns on its way
// out, per stop_signal's cancellation contract (§5). stop_signal itself is
// owned (and closed) by the coordinator, which sends into it; control_inbox
// is the coordinator's too but is simply abandoned, not closed (see
// Coordinator.shutdownFleet).
func shutdownShard(cur *Shard) {
	stopHeartbeat(cur)
	if cur.ws != nil {
		_ = cur.ws.close()
	}
}

// persistSession best-effort saves session_id/seq whenever either changes;
// store errors are logged and never abort the shard (SPEC_FULL.md §7).
func persistSession(cur *Shard, store SessionStore) {
	if cur.SessionID == "" && !cur.SeqSet {
		return
	}
	if err := store.Save(context.Background(), cur.ID, cur.SessionID, cur.Seq); err != nil {
		cur.log.Warn().Err(err).Msg("failed to persist session")
	}
}
