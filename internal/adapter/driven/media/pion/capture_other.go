//go:build !linux || !cgo

package pion

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// captureLocalTracks has no device backends on this platform; sessions join
// receive-only.
func captureLocalTracks() (audio, video capturedTrack, populate func(*webrtc.MediaEngine) error) {
	log.Info().Msg("local capture not supported on this platform, joining receive-only")
	return nil, nil, defaultCodecs
}
