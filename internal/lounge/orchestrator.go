package lounge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Miyuslav/Snack-no-trace/internal/config"
	"github.com/Miyuslav/Snack-no-trace/internal/identity"
	"github.com/Miyuslav/Snack-no-trace/internal/logger"
	"github.com/Miyuslav/Snack-no-trace/internal/waitlist"
)

const voiceIssueTimeout = 10 * time.Second

// Orchestrator is the session lifecycle controller: it owns the participant
// table, the waiting queue, the identity registry and the single active
// session slot, and it is the only code that starts or ends sessions.
//
// One mutex serializes every transition. Commands, timer firings and the
// payment webhook all enter through methods of this type, so orderings that
// race at the transport level (an accept against a simultaneous leave, a
// canceled-but-already-fired grace timer) resolve to one of the two serial
// orders, both of which are safe.
type Orchestrator struct {
	mu sync.Mutex

	registry     *identity.Registry
	queue        *waitlist.Queue
	participants map[string]*Participant

	session    *Session
	generation uint64

	notifier  Notifier
	presence  Presence
	voice     VoiceIssuer
	durations config.Durations
}

// creates an orchestrator with no active session and an empty queue
func New(registry *identity.Registry, queue *waitlist.Queue, notifier Notifier, presence Presence, voiceIssuer VoiceIssuer, durations config.Durations) *Orchestrator {
	return &Orchestrator{
		registry:     registry,
		queue:        queue,
		participants: make(map[string]*Participant),
		notifier:     notifier,
		presence:     presence,
		voice:        voiceIssuer,
		durations:    durations,
	}
}

// records a fresh guest connection
func (o *Orchestrator) Connect(handle string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.participants[handle] = &Participant{
		Status:   StatusConnected,
		JoinedAt: time.Now(),
	}
}

// re-sends the operator console its state after it (re)connects: the queue
// snapshot and, when a session is running, the session parameters flagged
// as a resumption
func (o *Orchestrator) OperatorConnected() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.broadcastQueueLocked()

	if o.session == nil {
		return
	}

	o.notifier.ToOperator(EventSessionStarted, o.startedPayloadLocked(true, true))
}

// handles guest.register: binds the durable identity, and either resumes
// the active session (same durable ID reappearing under a new handle) or
// appends the guest to the waiting queue
func (o *Orchestrator) Register(handle, durableID, mood, mode, roomTag string) {
	if durableID == "" {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.registry.Bind(handle, durableID)

	p := o.participants[handle]
	if p == nil {
		p = &Participant{}
		o.participants[handle] = p
	}

	p.DurableID = durableID
	p.Mood = mood
	p.Mode = mode
	p.JoinedAt = time.Now()

	if roomTag != "" {
		p.RoomTag = roomTag
	}

	// a session occupant coming back under a new connection resumes
	// instead of queueing again
	if o.session != nil && o.session.DurableID == durableID {
		o.resumeLocked(handle)
		return
	}

	p.Status = StatusWaiting
	o.queue.Enqueue(handle)

	logger.Info("guest registered",
		"handle", handle,
		"mood", mood,
		"mode", mode,
	)

	o.notifier.ToOperator(EventMamaNotify, MamaNotifyPayload{
		Handle:   handle,
		Mood:     mood,
		Mode:     mode,
		JoinedAt: p.JoinedAt.UnixMilli(),
	})

	o.broadcastQueueLocked()

	o.notifier.ToGuest(handle, EventQueuePosition, QueuePositionPayload{
		Position: o.queue.PositionOf(handle),
		Size:     o.queue.Len(),
	})
}

// handles join_room: tags the connection with its room and resumes the
// active session when the room tag matches it
func (o *Orchestrator) JoinRoom(handle, roomTag string) {
	if roomTag == "" {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	p := o.participants[handle]
	if p == nil {
		p = &Participant{JoinedAt: time.Now(), Status: StatusConnected}
		o.participants[handle] = p
	}

	p.RoomTag = roomTag

	if o.session != nil && o.session.RoomTag != "" && o.session.RoomTag == roomTag && o.session.GuestHandle != handle {
		o.resumeLocked(handle)
	}
}

// Accept runs the Idle→Active transition for a queued guest. Stale handles
// degrade to a soft operator notice plus a queue refresh. If a session is
// already running it is first ended with the switched reason. Voice token
// issuance happens outside the lock and its failure degrades the session
// rather than aborting the transition.
func (o *Orchestrator) Accept(ctx context.Context, guestHandle string) {
	o.mu.Lock()

	durableID := o.registry.Resolve(guestHandle)
	if durableID == "" {
		o.rejectStaleLocked(guestHandle)
		o.mu.Unlock()
		return
	}

	// the accept command may reference a handle from before a reconnect
	latest := o.registry.LatestHandle(durableID)
	p := o.participants[latest]

	if latest == "" || p == nil {
		o.rejectStaleLocked(guestHandle)
		o.mu.Unlock()
		return
	}

	mode := p.Mode
	o.mu.Unlock()

	grants, voiceErr := o.issueVoiceGrants(ctx, mode)

	o.mu.Lock()
	defer o.mu.Unlock()

	// re-validate: the guest may have vanished or reconnected again while
	// tokens were being issued
	latest = o.registry.LatestHandle(durableID)
	p = o.participants[latest]

	if latest == "" || p == nil {
		o.rejectStaleLocked(guestHandle)
		return
	}

	if o.session != nil {
		if o.session.DurableID == durableID {
			// accepting the current occupant again is a no-op
			return
		}
		o.endLocked(ReasonSwitched)
	}

	o.queue.Remove(latest)
	p.Status = StatusActive

	o.generation++

	o.session = &Session{
		DurableID:   durableID,
		GuestHandle: latest,
		RoomTag:     p.RoomTag,
		Mood:        p.Mood,
		Mode:        p.Mode,
		StartedAt:   time.Now(),
		MaxDuration: o.durations.SessionMax,
		VoiceError:  voiceErr,
		voice:       grants,
		generation:  o.generation,
	}

	o.scheduleBudgetTimersLocked()

	logger.Info("session started",
		"guest_handle", latest,
		"mode", p.Mode,
		"room_tag", p.RoomTag,
		"voice_error", voiceErr,
	)

	o.notifier.ToGuest(latest, EventSessionStarted, o.startedPayloadLocked(false, false))
	o.notifier.ToOperator(EventSessionStarted, o.startedPayloadLocked(false, true))

	o.broadcastQueueLocked()
}

// End runs the Active→Idle transition; a no-op when no session exists
func (o *Orchestrator) End(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.endLocked(reason)
}

// handles guest.leave: a waiting guest is dequeued and forgotten; the
// active occupant ends the session unless a tip payment is in flight, in
// which case the paying grace window keeps the session alive
func (o *Orchestrator) Leave(handle string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p := o.participants[handle]
	if p == nil {
		return
	}

	o.queue.Remove(handle)

	if o.isActiveOccupantLocked(handle) {
		if p.IsPaying {
			o.schedulePayingGraceLocked()
			o.broadcastQueueLocked()
			return
		}

		o.endLocked(ReasonGuestLeft)
	}

	delete(o.participants, handle)
	o.registry.Unbind(handle)
	o.broadcastQueueLocked()
}

// handles a transport-level disconnect. The active occupant gets a grace
// window (the long paying one when a tip is in flight, the short default
// otherwise); everyone else is dropped immediately — a guest that has not
// been accepted yet has no session to preserve.
func (o *Orchestrator) HandleDisconnect(handle string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p := o.participants[handle]
	if p == nil {
		return
	}

	o.queue.Remove(handle)

	if o.isActiveOccupantLocked(handle) {
		if p.IsPaying {
			o.schedulePayingGraceLocked()
		} else if !o.session.timers.armed(TimerDisconnectGrace) {
			gen := o.session.generation
			o.session.timers.schedule(TimerDisconnectGrace, o.durations.DisconnectGrace, func() { //nolint:errcheck // armed checked above
				o.timerEnd(gen, ReasonDisconnectTimeout)
			})

			logger.Info("active guest disconnected, grace window armed",
				"handle", handle,
				"grace", o.durations.DisconnectGrace,
			)
		}

		// the record survives under the grace timer's protection
		o.registry.Unbind(handle)
		return
	}

	delete(o.participants, handle)
	o.registry.Unbind(handle)
	o.broadcastQueueLocked()
}

// marks the active guest as having a tip in flight and tells the operator
func (o *Orchestrator) TipIntent(handle string, amount int64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.isActiveOccupantLocked(handle) {
		return
	}

	if p := o.participants[handle]; p != nil {
		p.IsPaying = true
	}

	o.notifier.ToOperator(EventGuestTip, TipIntentPayload{
		At:     time.Now().UnixMilli(),
		Amount: amount,
	})
}

// applies an asynchronous payment confirmation: clears the paying flag on
// the identity's latest handle and broadcasts the confirmation. Never ends
// or extends the session.
func (o *Orchestrator) ConfirmTip(roomTag, guestHandle, checkoutID string, amount int64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	handle := guestHandle

	// the guest may have reconnected between checkout and webhook
	if durableID := o.registry.Resolve(guestHandle); durableID != "" {
		if latest := o.registry.LatestHandle(durableID); latest != "" {
			handle = latest
		}
	}

	if p := o.participants[handle]; p != nil {
		p.IsPaying = false
	}

	now := time.Now()

	if roomTag != "" {
		o.notifier.ToRoom(roomTag, EventSystemMessage, SystemMessagePayload{
			ID:     "tip_" + checkoutID,
			Type:   "tip_paid",
			Text:   fmt.Sprintf("チップありがとうございます🍺（¥%d）", amount),
			At:     now.UnixMilli(),
			Kind:   "tip",
			Amount: amount,
		})
	}

	o.notifier.ToOperator(EventTipConfirmed, TipConfirmedPayload{
		Amount:            amount,
		CheckoutSessionID: checkoutID,
		At:                now.UnixMilli(),
	})

	logger.Info("tip confirmed",
		"room_tag", roomTag,
		"amount", amount,
		"checkout_id", checkoutID,
	)
}

// relays a guest chat message to the operator; only the active occupant is
// heard, anyone else is silently dropped
func (o *Orchestrator) GuestMessage(handle, text string) {
	if text == "" {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.isActiveOccupantLocked(handle) {
		return
	}

	o.notifier.ToOperator(EventChatMessage, ChatMessagePayload{From: "guest", Text: text})
}

// relays an operator chat message to the active guest
func (o *Orchestrator) OperatorMessage(text string) {
	if text == "" {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return
	}

	o.notifier.ToGuest(o.session.GuestHandle, EventChatMessage, ChatMessagePayload{From: "mama", Text: text})
}

// hands the operator its voice room credentials on request
func (o *Orchestrator) OperatorVoiceJoin() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil || o.session.voice == nil {
		o.notifier.ToOperator(EventVoiceFailed, VoiceFailedPayload{Message: "no voice session available"})
		return
	}

	o.notifier.ToOperator(EventVoiceReady, VoiceReadyPayload{
		GuestHandle: o.session.GuestHandle,
		RoomURL:     o.session.voice.RoomURL,
		Token:       o.session.voice.MamaToken,
		Resumed:     true,
	})
}

// returns a copy of the active session, or nil
func (o *Orchestrator) ActiveSession() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return nil
	}

	copied := *o.session
	return &copied
}

// returns the participant record for a handle, or nil
func (o *Orchestrator) ParticipantInfo(handle string) *Participant {
	o.mu.Lock()
	defer o.mu.Unlock()

	p := o.participants[handle]
	if p == nil {
		return nil
	}

	copied := *p
	return &copied
}

// replaces the session's connection handle after a reconnect, cancels the
// grace timers (never the budget pair), and re-notifies both sides
func (o *Orchestrator) resumeLocked(newHandle string) {
	s := o.session

	oldHandle := s.GuestHandle
	s.GuestHandle = newHandle

	s.timers.cancel(TimerDisconnectGrace)
	s.timers.cancel(TimerPayingGrace)

	// the occupant is never simultaneously queued
	o.queue.Remove(newHandle)

	if oldHandle != newHandle {
		delete(o.participants, oldHandle)
	}

	p := o.participants[newHandle]
	if p == nil {
		p = &Participant{JoinedAt: time.Now()}
		o.participants[newHandle] = p
	}

	p.DurableID = s.DurableID
	p.Mood = s.Mood
	p.Mode = s.Mode
	p.RoomTag = s.RoomTag
	p.Status = StatusActive

	logger.Info("session resumed",
		"old_handle", oldHandle,
		"new_handle", newHandle,
	)

	o.notifier.ToGuest(newHandle, EventSessionStarted, o.startedPayloadLocked(true, false))
	o.notifier.ToOperator(EventSystemMessage, SystemMessagePayload{Text: "（ゲストが復帰しました）"})
}

// cancels every timer, marks the occupant finished, notifies both sides and
// clears the slot. Safe to call when no session exists.
func (o *Orchestrator) endLocked(reason string) {
	s := o.session
	if s == nil {
		return
	}

	s.timers.cancelAll()

	handle := s.GuestHandle
	if latest := o.registry.LatestHandle(s.DurableID); latest != "" {
		handle = latest
	}

	if p := o.participants[handle]; p != nil {
		p.Status = StatusFinished

		// a finished occupant with no live transport left is forgotten
		if o.presence == nil || !o.presence.IsConnected(handle) {
			delete(o.participants, handle)
		}
	}

	logger.Info("session ended",
		"guest_handle", handle,
		"reason", reason,
	)

	o.notifier.ToGuest(handle, EventSessionEnded, SessionEndedPayload{Reason: reason})
	o.notifier.ToOperator(EventSessionEnded, SessionEndedPayload{Reason: reason})

	o.session = nil

	o.broadcastQueueLocked()
}

// arms the expiry/warning pair anchored to StartedAt so their fire time is
// deterministic even if scheduling is delayed
func (o *Orchestrator) scheduleBudgetTimersLocked() {
	s := o.session
	gen := s.generation

	expireAt := s.StartedAt.Add(s.MaxDuration)

	// warning at least a second after start, so a lead longer than the budget
	// never fires the warning before the session exists on the wire
	warnAt := expireAt.Add(-o.durations.WarningLead)
	if earliest := s.StartedAt.Add(time.Second); warnAt.Before(earliest) {
		warnAt = earliest
	}

	s.timers.scheduleAt(TimerExpiry, expireAt, func() { //nolint:errcheck // fresh session, names free
		o.timerEnd(gen, ReasonTimeout)
	})

	s.timers.scheduleAt(TimerWarning, warnAt, func() { //nolint:errcheck // fresh session, names free
		o.timerWarn(gen)
	})
}

// arms the long grace window for an active guest with a tip in flight;
// first writer wins if one is already running
func (o *Orchestrator) schedulePayingGraceLocked() {
	if o.session.timers.armed(TimerPayingGrace) {
		return
	}

	gen := o.session.generation
	o.session.timers.schedule(TimerPayingGrace, o.durations.PayingGrace, func() { //nolint:errcheck // armed checked above
		o.timerEnd(gen, ReasonPayingTimeout)
	})
}

// terminal timer callback; a defensive no-op when the session it was armed
// for is already gone
func (o *Orchestrator) timerEnd(generation uint64, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil || o.session.generation != generation {
		return
	}

	o.endLocked(reason)
}

// warning timer callback; non-terminal
func (o *Orchestrator) timerWarn(generation uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil || o.session.generation != generation {
		return
	}

	o.notifier.ToGuest(o.session.GuestHandle, EventSessionWarning, struct{}{})
	o.notifier.ToOperator(EventSessionWarning, SessionWarningPayload{GuestHandle: o.session.GuestHandle})
}

// soft failure path for commands naming a vanished guest
func (o *Orchestrator) rejectStaleLocked(handle string) {
	logger.Warn("accept referenced a vanished guest", "handle", handle)

	o.notifier.ToOperator(EventSystemMessage, SystemMessagePayload{Text: "⚠️ そのお客さんは既に退店しました。"})
	o.broadcastQueueLocked()
}

// reports whether the handle is the active session's occupant, either
// directly or through its durable identity
func (o *Orchestrator) isActiveOccupantLocked(handle string) bool {
	if o.session == nil {
		return false
	}

	if o.session.GuestHandle == handle {
		return true
	}

	durableID := o.registry.Resolve(handle)

	return durableID != "" && durableID == o.session.DurableID
}

// sends the operator a pruned queue snapshot
func (o *Orchestrator) broadcastQueueLocked() {
	entries := o.queue.Snapshot(func(handle string) (waitlist.Entry, bool) {
		p := o.participants[handle]
		if p == nil {
			return waitlist.Entry{}, false
		}

		return waitlist.Entry{
			Handle:   handle,
			Mood:     p.Mood,
			Mode:     p.Mode,
			JoinedAt: p.JoinedAt.UnixMilli(),
		}, true
	})

	o.notifier.ToOperator(EventQueueUpdate, entries)
}

// builds a session.started payload for one side of the pairing
func (o *Orchestrator) startedPayloadLocked(resumed, forOperator bool) SessionStartedPayload {
	s := o.session

	payload := SessionStartedPayload{
		GuestHandle: s.GuestHandle,
		Mood:        s.Mood,
		Mode:        s.Mode,
		RoomTag:     s.RoomTag,
		StartedAt:   s.StartedAt.UnixMilli(),
		MaxMs:       s.MaxDuration.Milliseconds(),
		Resumed:     resumed,
		VoiceError:  s.VoiceError,
	}

	if s.voice != nil && s.Mode == ModeVoice {
		token := s.voice.GuestToken
		if forOperator {
			token = s.voice.MamaToken
		}

		payload.VoiceInfo = &VoiceGrant{RoomURL: s.voice.RoomURL, Token: token}
	}

	return payload
}

// requests voice tokens for both sides; failure is reported, not fatal
func (o *Orchestrator) issueVoiceGrants(ctx context.Context, mode string) (*voiceGrants, string) {
	if mode != ModeVoice {
		return nil, ""
	}

	if o.voice == nil || !o.voice.Enabled() {
		return nil, "voice is not configured"
	}

	ctx, cancel := context.WithTimeout(ctx, voiceIssueTimeout)
	defer cancel()

	guestToken, err := o.voice.CreateMeetingToken(ctx, "guest", false)
	if err != nil {
		logger.ErrorErr(err, "guest voice token issuance failed")
		return nil, err.Error()
	}

	mamaToken, err := o.voice.CreateMeetingToken(ctx, "mama", true)
	if err != nil {
		logger.ErrorErr(err, "operator voice token issuance failed")
		return nil, err.Error()
	}

	return &voiceGrants{
		RoomURL:    guestToken.RoomURL,
		GuestToken: guestToken.Token,
		MamaToken:  mamaToken.Token,
	}, ""
}
