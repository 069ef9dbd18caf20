package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/callglue/callglue/internal/adapter/driven/media/pion"
	presence "github.com/callglue/callglue/internal/adapter/driven/presence/ws"
	"github.com/callglue/callglue/internal/adapter/driven/signaling/httpapi"
	"github.com/callglue/callglue/internal/config"
	"github.com/callglue/callglue/internal/core/domain"
	"github.com/callglue/callglue/internal/core/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stderr}
	l := zerolog.New(w).With().Timestamp().Logger()
	log.Logger = l

	cfg, err := config.LoadClient()
	if err != nil {
		l.Fatal().Err(err).Msg("loading configuration")
	}

	id := flag.Int64("id", cfg.UserID, "local user id")
	name := flag.String("name", cfg.UserName, "local display name")
	server := flag.String("server", cfg.ServerURL, "backend base URL")
	flag.Parse()

	if *id == 0 {
		l.Fatal().Msg("a non-zero user id is required (-id or CALLGLUE_USER_ID)")
	}
	user := domain.User{ID: domain.UserID(*id), Name: *name}

	roster := service.NewRoster()
	signaling := httpapi.New(*server, cfg.CSRFToken, user.ID)
	media := pion.NewMedia(*server)
	transport := presence.NewTransport(*server, user)

	ctrl := service.NewCallController(user, roster, signaling, media, transport)
	ctrl.OnStateChange(func(s domain.CallSession) {
		l.Info().Str("state", string(s.State)).Str("channel", s.Channel).Str("remote", s.RemoteName).Msg("call state")
	})
	ctrl.OnCallFailed(func(err error) {
		l.Error().Err(err).Msg("call failed")
	})

	ctx := context.Background()
	if err := transport.Subscribe(ctx, ctrl); err != nil {
		l.Fatal().Err(err).Msg("subscribing to presence topic")
	}

	fmt.Println("commands: list | call <id> | accept | decline | end | mute | video | status | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "list":
			for _, u := range roster.Users() {
				fmt.Printf("%d\t%s\t%s\n", u.ID, u.Name, roster.Status(u.ID))
			}

		case "call":
			if len(fields) < 2 {
				fmt.Println("usage: call <id>")
				continue
			}
			target, err := domain.ParseUserID(fields[1])
			if err != nil {
				fmt.Println(err)
				continue
			}
			if err := ctrl.PlaceCall(ctx, target); err != nil {
				fmt.Println(err)
			}

		case "accept":
			if err := ctrl.AcceptCall(ctx); err != nil {
				fmt.Println(err)
			}

		case "decline":
			if err := ctrl.DeclineCall(ctx); err != nil {
				fmt.Println(err)
			}

		case "end":
			if err := ctrl.EndCall(ctx); err != nil {
				fmt.Println(err)
			}

		case "mute":
			st := ctrl.ToggleAudio()
			fmt.Printf("audio enabled: %v\n", st.AudioEnabled)

		case "video":
			st := ctrl.ToggleVideo()
			fmt.Printf("video enabled: %v\n", st.VideoEnabled)

		case "status":
			s := ctrl.Session()
			fmt.Printf("state=%s channel=%q remote=%q\n", s.State, s.Channel, s.RemoteName)

		case "quit":
			if err := ctrl.Close(); err != nil {
				l.Error().Err(err).Msg("closing controller")
			}
			return

		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}
