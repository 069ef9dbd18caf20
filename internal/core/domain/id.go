package domain

import (
	"fmt"
	"strconv"
)

// UserID is the numeric identity a user carries on the presence topic.
type UserID int64

func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseUserID parses the decimal form used in wire payloads and CLI input.
func ParseUserID(s string) (UserID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", s, err)
	}
	return UserID(n), nil
}

// SessionID identifies a media session on the relay side. A call's channel
// name maps one-to-one onto a session id.
type SessionID string

func (s SessionID) String() string {
	return string(s)
}

// ChannelFor derives the shared channel name for a call between two users.
// The pair is sorted so both sides compute the same name regardless of who
// places the call.
func ChannelFor(a, b UserID) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("call-%d-%d", a, b)
}
