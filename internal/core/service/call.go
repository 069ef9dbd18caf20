package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/callglue/callglue/internal/core/domain"
	"github.com/callglue/callglue/internal/core/port"
	"github.com/rs/zerolog/log"
)

// CallController owns the local call session and drives it through its
// lifecycle: Idle -> OutgoingPending -> Active, or Idle -> IncomingRinging
// -> Active/Idle. At most one call session exists per local user.
//
// It also implements port.PresenceHandler, so a presence transport can feed
// it directly: membership events go to the roster, invite and decline
// notices go to the call router.
//
// Token requests and media joins run asynchronously. Nothing in flight is
// cancelled; instead every attempt carries a generation number, and a
// completion whose generation is no longer current is discarded. Each join
// holds its own media handle, so a stale completion releases only the
// session it established and a successor call that is already live keeps
// its media untouched.
type CallController struct {
	local     domain.User
	roster    *Roster
	signaling port.SignalingClient
	media     port.MediaDialer
	presence  port.PresenceTransport

	mu      sync.Mutex
	session domain.CallSession
	conn    port.MediaSession
	tracks  domain.MediaTrackState
	gen     uint64

	onChange func(domain.CallSession)
	onFailed func(error)
}

func NewCallController(local domain.User, roster *Roster, signaling port.SignalingClient, media port.MediaDialer, presence port.PresenceTransport) *CallController {
	return &CallController{
		local:     local,
		roster:    roster,
		signaling: signaling,
		media:     media,
		presence:  presence,
		session:   idleSession(local.ID),
		tracks:    domain.MediaTrackState{AudioEnabled: true, VideoEnabled: true},
	}
}

func idleSession(local domain.UserID) domain.CallSession {
	return domain.CallSession{State: domain.StateIdle, LocalUser: local}
}

// OnStateChange registers an observer invoked after every session change.
// The UI is expected to be a pure subscriber of these snapshots.
func (c *CallController) OnStateChange(fn func(domain.CallSession)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// OnCallFailed registers an observer for failed call attempts.
func (c *CallController) OnCallFailed(fn func(error)) {
	c.mu.Lock()
	c.onFailed = fn
	c.mu.Unlock()
}

// Session returns a snapshot of the current call session.
func (c *CallController) Session() domain.CallSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Tracks returns the current local mute flags.
func (c *CallController) Tracks() domain.MediaTrackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracks
}

// Roster returns the presence roster fed by this controller.
func (c *CallController) Roster() *Roster {
	return c.roster
}

// PlaceCall starts an outgoing call to target. It returns immediately once
// the session is OutgoingPending; token fetch, placement and media join
// continue asynchronously. Rejected with domain.ErrInvalidState unless the
// session is Idle.
func (c *CallController) PlaceCall(ctx context.Context, target domain.UserID) error {
	c.mu.Lock()
	if c.session.State != domain.StateIdle {
		state := c.session.State
		c.mu.Unlock()
		return fmt.Errorf("%w: place call while %s", domain.ErrInvalidState, state)
	}
	channel := domain.ChannelFor(c.local.ID, target)
	name := ""
	if u, ok := c.roster.Lookup(target); ok {
		name = u.Name
	}
	c.gen++
	g := c.gen
	c.session = domain.CallSession{
		Channel:    channel,
		State:      domain.StateOutgoingPending,
		LocalUser:  c.local.ID,
		RemoteUser: target,
		RemoteName: name,
	}
	c.mu.Unlock()
	c.notifyChange()

	go c.connect(ctx, g, channel, target, true)
	return nil
}

// AcceptCall answers the pending incoming invite. Rejected unless the
// session is IncomingRinging.
func (c *CallController) AcceptCall(ctx context.Context) error {
	c.mu.Lock()
	if c.session.State != domain.StateIncomingRinging {
		state := c.session.State
		c.mu.Unlock()
		return fmt.Errorf("%w: accept call while %s", domain.ErrInvalidState, state)
	}
	c.gen++
	g := c.gen
	channel := c.session.Channel
	c.mu.Unlock()

	go c.connect(ctx, g, channel, 0, false)
	return nil
}

// DeclineCall rejects the pending incoming invite and returns the session
// to Idle. The decline notice to the caller is best effort: a failed notice
// is logged, never surfaced, and never keeps the session out of Idle.
func (c *CallController) DeclineCall(ctx context.Context) error {
	c.mu.Lock()
	if c.session.State != domain.StateIncomingRinging {
		state := c.session.State
		c.mu.Unlock()
		return fmt.Errorf("%w: decline call while %s", domain.ErrInvalidState, state)
	}
	caller := c.session.RemoteUser
	channel := c.session.Channel
	conn := c.conn
	c.conn = nil
	c.gen++
	c.session = idleSession(c.local.ID)
	c.mu.Unlock()

	if err := c.signaling.DeclineCall(ctx, caller, channel); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("decline notice failed")
	}
	if conn != nil {
		if err := conn.Leave(); err != nil {
			log.Error().Err(err).Str("channel", channel).Msg("leaving media session after decline")
		}
	}
	c.notifyChange()
	return nil
}

// EndCall hangs up an active call: releases local tracks, leaves the media
// session and unsubscribes from the presence topic. The session always
// returns to Idle, even when leave fails.
func (c *CallController) EndCall(ctx context.Context) error {
	c.mu.Lock()
	if c.session.State != domain.StateActive {
		state := c.session.State
		c.mu.Unlock()
		return fmt.Errorf("%w: end call while %s", domain.ErrInvalidState, state)
	}
	channel := c.session.Channel
	conn := c.conn
	c.conn = nil
	c.gen++
	c.session = idleSession(c.local.ID)
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Leave(); err != nil {
			log.Error().Err(err).Str("channel", channel).Msg("leaving media session")
		}
	}
	if err := c.presence.Unsubscribe(); err != nil {
		log.Error().Err(err).Msg("unsubscribing presence topic")
	}
	c.notifyChange()
	return nil
}

// ToggleAudio flips the local audio mute flag and applies it to the media
// session. Remote tracks are unaffected.
func (c *CallController) ToggleAudio() domain.MediaTrackState {
	c.mu.Lock()
	c.tracks.AudioEnabled = !c.tracks.AudioEnabled
	state := c.tracks
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		if err := conn.SetAudioEnabled(state.AudioEnabled); err != nil {
			log.Error().Err(err).Msg("toggling audio")
		}
	}
	return state
}

// ToggleVideo flips the local video mute flag and applies it to the media
// session.
func (c *CallController) ToggleVideo() domain.MediaTrackState {
	c.mu.Lock()
	c.tracks.VideoEnabled = !c.tracks.VideoEnabled
	state := c.tracks
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		if err := conn.SetVideoEnabled(state.VideoEnabled); err != nil {
			log.Error().Err(err).Msg("toggling video")
		}
	}
	return state
}

// Close shuts the controller down for good: any media session is released,
// the presence subscription dropped, and the session parked in Ended.
func (c *CallController) Close() error {
	c.mu.Lock()
	if c.session.State == domain.StateEnded {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.conn = nil
	c.gen++
	c.session = domain.CallSession{State: domain.StateEnded, LocalUser: c.local.ID}
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Leave(); err != nil {
			log.Error().Err(err).Msg("leaving media session on close")
		}
	}
	if err := c.presence.Unsubscribe(); err != nil {
		log.Error().Err(err).Msg("unsubscribing presence topic on close")
	}
	c.notifyChange()
	return nil
}

// connect runs the asynchronous half of an outgoing placement or an accept:
// token fetch, optional call placement, media join, publish. Each step
// re-checks generation g so a completion that lost its session is dropped,
// releasing only its own media handle.
func (c *CallController) connect(ctx context.Context, g uint64, channel string, target domain.UserID, place bool) {
	creds, err := c.signaling.RequestToken(ctx, channel)
	if err != nil {
		c.abort(g, fmt.Errorf("%w: %v", domain.ErrTokenRequest, err))
		return
	}
	if !c.advance(g, func(s *domain.CallSession) { s.Credentials = creds }) {
		return
	}

	if place {
		if err := c.signaling.PlaceCall(ctx, target, channel); err != nil {
			c.abort(g, fmt.Errorf("%w: %v", domain.ErrCallPlacement, err))
			return
		}
	}

	conn, err := c.media.Join(ctx, creds, channel, c.local.ID)
	if err != nil {
		c.abort(g, fmt.Errorf("%w: %v", domain.ErrMediaJoin, err))
		return
	}
	c.mu.Lock()
	if c.gen != g {
		c.mu.Unlock()
		c.releaseStale(conn, channel)
		return
	}
	c.conn = conn
	c.mu.Unlock()

	if err := conn.PublishLocalTracks(ctx); err != nil {
		c.release(conn, channel)
		c.abort(g, fmt.Errorf("%w: %v", domain.ErrPublish, err))
		return
	}

	if !c.advance(g, func(s *domain.CallSession) { s.State = domain.StateActive }) {
		c.releaseStale(conn, channel)
		return
	}
	log.Info().Str("channel", channel).Msg("call active")
	c.notifyChange()
}

// advance applies fn to the session iff generation g is still live.
func (c *CallController) advance(g uint64, fn func(*domain.CallSession)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != g {
		return false
	}
	fn(&c.session)
	return true
}

// abort resets a still-live attempt to Idle and surfaces the error. A stale
// failure is dropped silently: whoever bumped the generation already settled
// the session.
func (c *CallController) abort(g uint64, err error) {
	c.mu.Lock()
	if c.gen != g {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.session = idleSession(c.local.ID)
	c.mu.Unlock()

	log.Error().Err(err).Msg("call attempt failed")
	c.notifyFailed(err)
	c.notifyChange()
}

// release tears down conn and clears it from the controller when it is the
// stored session. Leave is idempotent, so racing another teardown is fine.
func (c *CallController) release(conn port.MediaSession, channel string) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	if err := conn.Leave(); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("leaving media session")
	}
}

// releaseStale tears down a media handle whose call attempt has been
// superseded. Only the stale attempt's own resources are released; the
// current session, if any, is untouched.
func (c *CallController) releaseStale(conn port.MediaSession, channel string) {
	log.Debug().Str("channel", channel).Msg("dropping stale media completion")
	c.release(conn, channel)
}

func (c *CallController) notifyChange() {
	c.mu.Lock()
	fn := c.onChange
	snapshot := c.session
	c.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}

func (c *CallController) notifyFailed(err error) {
	c.mu.Lock()
	fn := c.onFailed
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// --- port.PresenceHandler ---

func (c *CallController) OnSyncMembers(members []domain.User) {
	c.roster.Sync(members)
}

func (c *CallController) OnMemberAdded(u domain.User) {
	c.roster.Add(u)
}

func (c *CallController) OnMemberRemoved(id domain.UserID) {
	c.roster.Remove(id)
}

// OnInvite routes an inbound invite notice. Notices addressed to someone
// else are dropped. While already ringing, a newer invite overwrites the
// pending one (last write wins); in any other non-idle state the notice is
// ignored.
func (c *CallController) OnInvite(inv domain.CallInvite) {
	if inv.To != c.local.ID {
		return
	}
	c.mu.Lock()
	switch c.session.State {
	case domain.StateIdle, domain.StateIncomingRinging:
	default:
		state := c.session.State
		c.mu.Unlock()
		log.Warn().Str("channel", inv.Channel).Str("state", string(state)).Msg("invite ignored")
		return
	}
	// Caller missing from the roster only degrades the display name.
	name := ""
	if u, ok := c.roster.Lookup(inv.From); ok {
		name = u.Name
	}
	c.gen++
	c.session = domain.CallSession{
		Channel:    inv.Channel,
		State:      domain.StateIncomingRinging,
		LocalUser:  c.local.ID,
		RemoteUser: inv.From,
		RemoteName: name,
	}
	c.mu.Unlock()

	log.Info().Str("channel", inv.Channel).Str("caller", inv.From.String()).Msg("incoming call")
	c.notifyChange()
}

// OnDeclined tears down an outgoing or active call whose callee rejected it.
func (c *CallController) OnDeclined(d domain.CallDecline) {
	c.mu.Lock()
	busy := c.session.State == domain.StateOutgoingPending || c.session.State == domain.StateActive
	if !busy || c.session.Channel != d.Channel {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.gen++
	c.session = idleSession(c.local.ID)
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Leave(); err != nil {
			log.Error().Err(err).Str("channel", d.Channel).Msg("leaving media session after remote decline")
		}
	}
	log.Info().Str("channel", d.Channel).Msg("call declined by remote user")
	c.notifyChange()
}

func (c *CallController) OnSubscriptionError(err error) {
	log.Warn().Err(err).Msg("presence subscription error, roster may be stale")
}
