// Package pion terminates media sessions with pion/webrtc: Media dials the
// relay and yields one Session per join attempt, Engine is the relay-side
// forwarder.
package pion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/callglue/callglue/internal/core/domain"
	"github.com/callglue/callglue/internal/core/port"
	"github.com/callglue/callglue/internal/wire"
	"github.com/gorilla/websocket"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const negotiationTimeout = 20 * time.Second

// capturedTrack is the slice of a local capture track the session needs.
// mediadevices tracks satisfy it; nil means the device was unavailable.
type capturedTrack interface {
	webrtc.TrackLocal
	Close() error
}

// Media dials media sessions against the backend at serverURL. Every Join
// builds an independent Session, so releasing a superseded attempt never
// touches a newer one.
type Media struct {
	serverURL string
}

func NewMedia(serverURL string) *Media {
	return &Media{serverURL: serverURL}
}

// Join acquires local capture and connects to the relay's signaling socket.
// Camera and microphone are acquired independently; a failure on either
// side only degrades the session, never aborts the join. The relay speaks
// first: its offer is held until PublishLocalTracks answers it.
func (m *Media) Join(ctx context.Context, creds domain.MediaCredentials, channel string, localUser domain.UserID) (port.MediaSession, error) {
	audio, video, populate := captureLocalTracks()

	cleanup := func() {
		closeTrack(audio)
		closeTrack(video)
	}

	me := &webrtc.MediaEngine{}
	if err := populate(me); err != nil {
		cleanup()
		return nil, err
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, registry); err != nil {
		cleanup()
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithInterceptorRegistry(registry))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		cleanup()
		return nil, err
	}

	endpoint, err := m.endpoint(creds, channel, localUser)
	if err != nil {
		pc.Close()
		cleanup()
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		pc.Close()
		cleanup()
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(negotiationTimeout))
	var offer wire.SignalMessage
	if err := conn.ReadJSON(&offer); err != nil {
		conn.Close()
		pc.Close()
		cleanup()
		return nil, fmt.Errorf("waiting for relay offer: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	if offer.Type != string(domain.SignalOffer) {
		conn.Close()
		pc.Close()
		cleanup()
		return nil, fmt.Errorf("expected offer from relay, got %q", offer.Type)
	}

	log.Info().Str("channel", channel).Bool("audio", audio != nil).Bool("video", video != nil).Msg("joined media session")
	return &Session{
		pc:           pc,
		conn:         conn,
		audio:        audio,
		video:        video,
		pendingOffer: offer.Payload,
		closed:       make(chan struct{}),
	}, nil
}

func (m *Media) endpoint(creds domain.MediaCredentials, channel string, localUser domain.UserID) (string, error) {
	u, err := url.Parse(m.serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/media"
	q := u.Query()
	q.Set("channel", channel)
	q.Set("uid", localUser.String())
	q.Set("app_id", creds.AppID)
	q.Set("token", creds.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Session is one joined media attempt. PublishLocalTracks answers the
// relay's held offer with the captured tracks; Leave releases exactly the
// resources this attempt acquired and is idempotent.
type Session struct {
	mu           sync.Mutex
	writeMu      sync.Mutex
	pc           *webrtc.PeerConnection
	conn         *websocket.Conn
	audio        capturedTrack
	video        capturedTrack
	audioSender  *webrtc.RTPSender
	videoSender  *webrtc.RTPSender
	pendingOffer string
	closed       chan struct{}
	done         bool
}

// PublishLocalTracks completes negotiation: the relay's offer is answered
// with the captured tracks attached. Zero captured tracks yields a valid
// receive-only session.
func (s *Session) PublishLocalTracks(ctx context.Context) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return errors.New("media session closed")
	}
	pc := s.pc
	offer := s.pendingOffer
	audio, video := s.audio, s.video
	conn := s.conn
	closed := s.closed
	s.mu.Unlock()

	connected := make(chan struct{})
	var once sync.Once
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		log.Debug().Str("state", st.String()).Msg("media transport state")
		if st == webrtc.PeerConnectionStateConnected {
			once.Do(func() { close(connected) })
		}
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.Error().Err(err).Msg("marshaling local candidate")
			return
		}
		if err := s.writeSignal(wire.SignalMessage{Type: string(domain.SignalCandidate), Payload: string(payload)}); err != nil {
			log.Debug().Err(err).Msg("sending local candidate")
		}
	})
	pc.OnTrack(s.onRemoteTrack)

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		return err
	}

	if audio != nil {
		sender, err := pc.AddTrack(audio)
		if err != nil {
			return fmt.Errorf("publishing audio track: %w", err)
		}
		s.mu.Lock()
		s.audioSender = sender
		s.mu.Unlock()
	}
	if video != nil {
		sender, err := pc.AddTrack(video)
		if err != nil {
			return fmt.Errorf("publishing video track: %w", err)
		}
		s.mu.Lock()
		s.videoSender = sender
		s.mu.Unlock()
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return err
	}
	if err := s.writeSignal(wire.SignalMessage{Type: string(domain.SignalAnswer), Payload: answer.SDP}); err != nil {
		return err
	}

	go s.readSignals(pc, conn, closed)

	select {
	case <-connected:
		return nil
	case <-closed:
		return errors.New("media session closed during negotiation")
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(negotiationTimeout):
		return errors.New("timed out waiting for media transport")
	}
}

// SetAudioEnabled mutes or unmutes the published audio track. A no-op when
// no microphone was captured.
func (s *Session) SetAudioEnabled(enabled bool) error {
	s.mu.Lock()
	sender, track := s.audioSender, s.audio
	s.mu.Unlock()
	if sender == nil {
		return nil
	}
	if enabled {
		return sender.ReplaceTrack(track)
	}
	return sender.ReplaceTrack(nil)
}

// SetVideoEnabled mutes or unmutes the published video track. A no-op when
// no camera was captured.
func (s *Session) SetVideoEnabled(enabled bool) error {
	s.mu.Lock()
	sender, track := s.videoSender, s.video
	s.mu.Unlock()
	if sender == nil {
		return nil
	}
	if enabled {
		return sender.ReplaceTrack(track)
	}
	return sender.ReplaceTrack(nil)
}

// Leave tears the attempt down: capture devices closed, signaling socket
// and peer connection released. Safe to call repeatedly and on a session
// that never finished negotiating.
func (s *Session) Leave() error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	pc, conn := s.pc, s.conn
	audio, video := s.audio, s.video
	closed := s.closed
	s.audioSender, s.videoSender = nil, nil
	s.mu.Unlock()

	close(closed)

	var errs []error
	if audio != nil {
		if err := audio.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing audio track: %w", err))
		}
	}
	if video != nil {
		if err := video.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing video track: %w", err))
		}
	}
	if err := conn.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := pc.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Session) writeSignal(msg wire.SignalMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// readSignals pumps relay-originated candidates and renegotiation offers
// for the lifetime of the session.
func (s *Session) readSignals(pc *webrtc.PeerConnection, conn *websocket.Conn, closed chan struct{}) {
	for {
		var msg wire.SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-closed:
			default:
				log.Warn().Err(err).Msg("media signaling socket closed")
			}
			return
		}

		switch domain.SignalType(msg.Type) {
		case domain.SignalCandidate:
			var candidate webrtc.ICECandidateInit
			if err := json.Unmarshal([]byte(msg.Payload), &candidate); err != nil {
				log.Warn().Err(err).Msg("dropping malformed remote candidate")
				continue
			}
			if err := pc.AddICECandidate(candidate); err != nil {
				log.Warn().Err(err).Msg("adding remote candidate")
			}

		case domain.SignalOffer:
			// Renegotiation: the relay re-offers when another peer's tracks
			// appear or disappear.
			if err := s.answer(pc, msg.Payload); err != nil {
				log.Error().Err(err).Msg("renegotiation failed")
			}

		default:
			log.Debug().Str("type", msg.Type).Msg("ignoring unexpected signal")
		}
	}
}

func (s *Session) answer(pc *webrtc.PeerConnection, sdp string) error {
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return err
	}
	return s.writeSignal(wire.SignalMessage{Type: string(domain.SignalAnswer), Payload: answer.SDP})
}

// onRemoteTrack subscribes to a newly published remote track. Audio and
// video are handled independently; the drain loop ends when the remote
// side unpublishes or leaves.
func (s *Session) onRemoteTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	l := log.With().Str("kind", track.Kind().String()).Str("track_id", track.ID()).Logger()
	l.Info().Msg("subscribed to remote track")

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				l.Info().Msg("remote track ended")
				return
			}
		}
	}()
}

func closeTrack(t capturedTrack) {
	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		log.Debug().Err(err).Msg("closing capture track")
	}
}

func defaultCodecs(me *webrtc.MediaEngine) error {
	return me.RegisterDefaultCodecs()
}
