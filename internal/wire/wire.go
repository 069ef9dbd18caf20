// Package wire defines the JSON shapes exchanged over the presence topic
// and the media signaling socket. Payloads are validated here, at the
// transport boundary, before anything reaches the call router.
package wire

import (
	"errors"

	"github.com/callglue/callglue/internal/core/domain"
)

// Presence event names.
const (
	EventSync          = "sync"
	EventMemberAdded   = "member_added"
	EventMemberRemoved = "member_removed"
	EventInvite        = "invite"
	EventDeclined      = "declined"
)

type UserDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type InviteDTO struct {
	UserToCall  int64  `json:"user_to_call"`
	From        int64  `json:"from"`
	ChannelName string `json:"channel_name"`
}

type DeclineDTO struct {
	Caller      int64  `json:"caller"`
	ChannelName string `json:"channel_name"`
}

// PresenceEvent is the envelope for everything delivered on the presence
// topic. Exactly one of the optional fields is set, matching Event.
type PresenceEvent struct {
	Event   string      `json:"event"`
	Members []UserDTO   `json:"members,omitempty"`
	User    *UserDTO    `json:"user,omitempty"`
	Invite  *InviteDTO  `json:"invite,omitempty"`
	Decline *DeclineDTO `json:"decline,omitempty"`
}

// SignalMessage carries offer/answer/candidate payloads on the media
// signaling socket.
type SignalMessage struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

func (u UserDTO) ToDomain() domain.User {
	return domain.User{ID: domain.UserID(u.ID), Name: u.Name}
}

func FromUser(u domain.User) UserDTO {
	return UserDTO{ID: int64(u.ID), Name: u.Name}
}

func (i InviteDTO) ToDomain() (domain.CallInvite, error) {
	if i.ChannelName == "" {
		return domain.CallInvite{}, errors.New("invite without channel name")
	}
	return domain.CallInvite{
		From:    domain.UserID(i.From),
		To:      domain.UserID(i.UserToCall),
		Channel: i.ChannelName,
	}, nil
}

func (d DeclineDTO) ToDomain() (domain.CallDecline, error) {
	if d.ChannelName == "" {
		return domain.CallDecline{}, errors.New("decline without channel name")
	}
	return domain.CallDecline{
		Caller:  domain.UserID(d.Caller),
		Channel: d.ChannelName,
	}, nil
}
