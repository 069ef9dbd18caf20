package http

import (
	"encoding/json"
	"net/http"

	"github.com/callglue/callglue/internal/core/domain"
	"github.com/callglue/callglue/internal/wire"
	"github.com/rs/zerolog/log"
)

func (h *Handler) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	if h.CSRF == "" {
		return true
	}
	if r.Header.Get("X-CSRFToken") != h.CSRF {
		http.Error(w, "missing or invalid CSRF token", http.StatusForbidden)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("encoding response body")
	}
}

// MintToken issues media credentials for a channel.
func (h *Handler) MintToken(w http.ResponseWriter, r *http.Request) {
	if !h.checkCSRF(w, r) {
		return
	}

	var req struct {
		ChannelName string `json:"channelName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChannelName == "" {
		http.Error(w, "channelName required", http.StatusBadRequest)
		return
	}

	creds, err := h.Tokens.Mint(req.ChannelName)
	if err != nil {
		log.Error().Err(err).Str("channel", req.ChannelName).Msg("minting media token")
		http.Error(w, "could not mint token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		AppID string `json:"appID"`
		Token string `json:"token"`
	}{AppID: creds.AppID, Token: creds.Token})
}

// PlaceCall relays an invite notice to the callee's presence connection.
// An offline callee is not an error for the caller: the invite simply
// rings nowhere, like an unanswered phone.
func (h *Handler) PlaceCall(w http.ResponseWriter, r *http.Request) {
	if !h.checkCSRF(w, r) {
		return
	}

	var req struct {
		UserToCall  int64  `json:"user_to_call"`
		ChannelName string `json:"channel_name"`
		From        int64  `json:"from"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChannelName == "" || req.UserToCall == 0 {
		http.Error(w, "user_to_call and channel_name required", http.StatusBadRequest)
		return
	}

	ev := wire.PresenceEvent{
		Event: wire.EventInvite,
		Invite: &wire.InviteDTO{
			UserToCall:  req.UserToCall,
			From:        req.From,
			ChannelName: req.ChannelName,
		},
	}
	if err := h.Hub.SendToUser(r.Context(), domain.UserID(req.UserToCall), ev); err != nil {
		log.Warn().Err(err).Str("channel", req.ChannelName).Msg("invite not delivered")
	}

	writeJSON(w, http.StatusOK, struct {
		Message string `json:"message"`
	}{Message: "call placed"})
}

// DeclineCall relays a decline notice back to the caller.
func (h *Handler) DeclineCall(w http.ResponseWriter, r *http.Request) {
	if !h.checkCSRF(w, r) {
		return
	}

	var req struct {
		Caller      int64  `json:"caller"`
		ChannelName string `json:"channel_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChannelName == "" || req.Caller == 0 {
		http.Error(w, "caller and channel_name required", http.StatusBadRequest)
		return
	}

	ev := wire.PresenceEvent{
		Event: wire.EventDeclined,
		Decline: &wire.DeclineDTO{
			Caller:      req.Caller,
			ChannelName: req.ChannelName,
		},
	}
	if err := h.Hub.SendToUser(r.Context(), domain.UserID(req.Caller), ev); err != nil {
		log.Warn().Err(err).Str("channel", req.ChannelName).Msg("decline notice not delivered")
	}

	writeJSON(w, http.StatusOK, struct {
		Message string `json:"message"`
	}{Message: "call declined"})
}
