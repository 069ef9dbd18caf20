package pion

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/callglue/callglue/internal/core/domain"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const keyframeInterval = 3 * time.Second

type peer struct {
	id domain.UserID
	pc *webrtc.PeerConnection

	mu sync.Mutex
	// set when a renegotiation was needed while signaling was unstable
	negotiationPending bool
}

type relayTrack struct {
	track *webrtc.TrackLocalStaticRTP
	owner domain.UserID
}

// Engine is the relay-side media termination implementing port.MediaEngine:
// one peer connection per (session, user), published tracks forwarded to
// every other peer of the same session.
type Engine struct {
	api *webrtc.API

	mu       sync.RWMutex
	sessions map[domain.SessionID]map[domain.UserID]*peer
	tracks   map[domain.SessionID][]relayTrack
	onSignal func(sessionID domain.SessionID, userID domain.UserID, signal domain.Signal)
}

func NewEngine() (*Engine, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	return &Engine{
		api:      webrtc.NewAPI(webrtc.WithMediaEngine(me)),
		sessions: make(map[domain.SessionID]map[domain.UserID]*peer),
		tracks:   make(map[domain.SessionID][]relayTrack),
	}, nil
}

func (e *Engine) SetSignalCallback(cb func(sessionID domain.SessionID, userID domain.UserID, signal domain.Signal)) {
	e.mu.Lock()
	e.onSignal = cb
	e.mu.Unlock()
}

func (e *Engine) signal(sessionID domain.SessionID, userID domain.UserID, sig domain.Signal) {
	e.mu.RLock()
	cb := e.onSignal
	e.mu.RUnlock()
	if cb != nil {
		cb(sessionID, userID, sig)
	}
}

// AddPeer admits a user into a session and returns the offer to send back.
// The offer carries recvonly audio and video transceivers so the peer can
// publish onto them; tracks already present in the session are attached
// before the offer is created.
func (e *Engine) AddPeer(sessionID domain.SessionID, userID domain.UserID) (domain.Signal, error) {
	pc, err := e.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return domain.Signal{}, err
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return domain.Signal{}, err
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return domain.Signal{}, err
	}

	p := &peer{id: userID, pc: pc}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.Error().Err(err).Msg("marshaling relay candidate")
			return
		}
		e.signal(sessionID, userID, domain.NewSignal(domain.SignalCandidate, string(payload)))
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.forwardTrack(sessionID, userID, pc, remote)
	})

	e.mu.Lock()
	if _, ok := e.sessions[sessionID]; !ok {
		e.sessions[sessionID] = make(map[domain.UserID]*peer)
		e.tracks[sessionID] = []relayTrack{}
	}
	for _, t := range e.tracks[sessionID] {
		if t.owner == userID {
			continue
		}
		if _, err := pc.AddTrack(t.track); err != nil {
			log.Error().Err(err).Str("user_id", userID.String()).Msg("attaching existing track")
		}
	}
	e.sessions[sessionID][userID] = p
	e.mu.Unlock()

	// The lock is not held across negotiation: a track published meanwhile
	// finds this peer in the session map and queues a renegotiation.
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		e.RemovePeer(sessionID, userID)
		return domain.Signal{}, err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		e.RemovePeer(sessionID, userID)
		return domain.Signal{}, err
	}

	// Give ICE gathering a moment so the offer already carries candidates;
	// trickle covers the rest.
	gathered := webrtc.GatheringCompletePromise(pc)
	select {
	case <-gathered:
	case <-time.After(500 * time.Millisecond):
	}

	return domain.NewSignal(domain.SignalOffer, pc.LocalDescription().SDP), nil
}

// forwardTrack relays an inbound track to every other peer of the session
// and keeps requesting keyframes from the publisher.
func (e *Engine) forwardTrack(sessionID domain.SessionID, owner domain.UserID, pc *webrtc.PeerConnection, remote *webrtc.TrackRemote) {
	log.Debug().Str("kind", remote.Kind().String()).Str("user_id", owner.String()).Msg("relaying remote track")

	local, err := webrtc.NewTrackLocalStaticRTP(remote.Codec().RTPCodecCapability, remote.ID(), remote.StreamID())
	if err != nil {
		log.Error().Err(err).Msg("creating relay track")
		return
	}

	e.mu.Lock()
	e.tracks[sessionID] = append(e.tracks[sessionID], relayTrack{track: local, owner: owner})
	for otherID, other := range e.sessions[sessionID] {
		if otherID == owner || other.pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
			continue
		}
		if _, err := other.pc.AddTrack(local); err != nil {
			log.Error().Err(err).Str("user_id", otherID.String()).Msg("attaching relay track")
			continue
		}
		go e.renegotiate(sessionID, otherID, other)
	}
	e.mu.Unlock()

	go func() {
		buf := make([]byte, 1400)
		for {
			n, _, err := remote.Read(buf)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.Debug().Err(err).Msg("relay read loop ended")
				}
				return
			}
			if _, err := local.Write(buf[:n]); err != nil {
				return
			}
		}
	}()

	go func() {
		sendPLI := func() {
			// benign failure on a closed connection
			_ = pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(remote.SSRC())},
			})
		}
		sendPLI()

		ticker := time.NewTicker(keyframeInterval)
		defer ticker.Stop()
		for range ticker.C {
			if pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
				return
			}
			sendPLI()
		}
	}()
}

// renegotiate re-offers to a peer after its track set changed. When the
// signaling state is not stable the renegotiation is queued and triggered
// by the next answer.
func (e *Engine) renegotiate(sessionID domain.SessionID, userID domain.UserID, p *peer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
		return
	}
	if p.pc.SignalingState() != webrtc.SignalingStateStable {
		p.negotiationPending = true
		return
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("creating renegotiation offer")
		return
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("applying renegotiation offer")
		return
	}

	e.signal(sessionID, userID, domain.NewSignal(domain.SignalOffer, p.pc.LocalDescription().SDP))
}

func (e *Engine) HandleSignal(sessionID domain.SessionID, userID domain.UserID, signal domain.Signal) error {
	e.mu.RLock()
	session, ok := e.sessions[sessionID]
	if !ok {
		e.mu.RUnlock()
		return errors.New("session not found")
	}
	p, ok := session[userID]
	e.mu.RUnlock()
	if !ok {
		return errors.New("peer not found")
	}

	switch signal.Type {
	case domain.SignalAnswer:
		sdp := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: signal.Payload}
		if err := p.pc.SetRemoteDescription(sdp); err != nil {
			return err
		}

		p.mu.Lock()
		pending := p.negotiationPending
		p.negotiationPending = false
		p.mu.Unlock()
		if pending {
			go e.renegotiate(sessionID, userID, p)
		}
		return nil

	case domain.SignalCandidate:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(signal.Payload), &candidate); err != nil {
			return err
		}
		return p.pc.AddICECandidate(candidate)
	}
	return nil
}

// RemovePeer drops a user from a session, removing its relayed tracks from
// every remaining peer.
func (e *Engine) RemovePeer(sessionID domain.SessionID, userID domain.UserID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, ok := e.sessions[sessionID]
	if !ok {
		return
	}

	if p, ok := session[userID]; ok {
		p.pc.Close()
		delete(session, userID)
	}
	if len(session) == 0 {
		delete(e.sessions, sessionID)
		delete(e.tracks, sessionID)
		return
	}

	var remaining []relayTrack
	var removed []*webrtc.TrackLocalStaticRTP
	for _, t := range e.tracks[sessionID] {
		if t.owner == userID {
			removed = append(removed, t.track)
		} else {
			remaining = append(remaining, t)
		}
	}
	e.tracks[sessionID] = remaining
	if len(removed) == 0 {
		return
	}

	for otherID, other := range session {
		if other.pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
			continue
		}
		renegotiate := false
		for _, sender := range other.pc.GetSenders() {
			track := sender.Track()
			if track == nil {
				continue
			}
			for _, dead := range removed {
				if track != dead {
					continue
				}
				if err := other.pc.RemoveTrack(sender); err != nil {
					log.Error().Err(err).Str("user_id", otherID.String()).Msg("removing relay track")
				} else {
					renegotiate = true
				}
			}
		}
		if renegotiate {
			go e.renegotiate(sessionID, otherID, other)
		}
	}
}
