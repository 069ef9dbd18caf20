//go:build linux && cgo

package pion

import (
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// captureLocalTracks acquires microphone and camera independently via
// pion/mediadevices (V4L2 + malgo). Either device failing leaves the other
// usable; both failing yields a receive-only session. The returned populate
// func registers the matching codecs on the media engine.
func captureLocalTracks() (audio, video capturedTrack, populate func(*webrtc.MediaEngine) error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		log.Warn().Err(err).Msg("vp8 encoder unavailable, local capture disabled")
		return nil, nil, defaultCodecs
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		log.Warn().Err(err).Msg("opus encoder unavailable, local capture disabled")
		return nil, nil, defaultCodecs
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	if stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: selector,
	}); err != nil {
		log.Warn().Err(err).Msg("microphone capture failed, continuing without audio")
	} else if tracks := stream.GetAudioTracks(); len(tracks) > 0 {
		audio = tracks[0]
	}

	if stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			// Raw formats only: some cameras expose an MJPEG node producing
			// malformed frames that poison the VP8 encoder.
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		},
		Codec: selector,
	}); err != nil {
		log.Warn().Err(err).Msg("camera capture failed, continuing without video")
	} else if tracks := stream.GetVideoTracks(); len(tracks) > 0 {
		video = tracks[0]
	}

	return audio, video, func(me *webrtc.MediaEngine) error {
		selector.Populate(me)
		return nil
	}
}
