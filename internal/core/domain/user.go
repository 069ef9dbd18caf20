package domain

// User is an identity known through the presence topic. It lives exactly as
// long as its presence membership.
type User struct {
	ID   UserID
	Name string
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)
