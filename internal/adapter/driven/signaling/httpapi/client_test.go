package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/callglue/callglue/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/token/", r.URL.Path)
		assert.Equal(t, "csrf-abc", r.Header.Get("X-CSRFToken"))

		var body struct {
			ChannelName string `json:"channelName"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "call-1-2", body.ChannelName)

		json.NewEncoder(w).Encode(map[string]string{
			"appID": "app-1",
			"token": "tok-xyz",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "csrf-abc", 1)
	creds, err := c.RequestToken(context.Background(), "call-1-2")
	require.NoError(t, err)
	assert.Equal(t, domain.MediaCredentials{AppID: "app-1", Token: "tok-xyz"}, creds)
}

func TestPlaceCall(t *testing.T) {
	var got struct {
		UserToCall  int64  `json:"user_to_call"`
		ChannelName string `json:"channel_name"`
		From        int64  `json:"from"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/call-user/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "", 1)
	require.NoError(t, c.PlaceCall(context.Background(), 2, "call-1-2"))

	assert.Equal(t, int64(2), got.UserToCall)
	assert.Equal(t, int64(1), got.From)
	assert.Equal(t, "call-1-2", got.ChannelName)
}

func TestDeclineCall(t *testing.T) {
	var got struct {
		Caller      int64  `json:"caller"`
		ChannelName string `json:"channel_name"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/decline-call/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "", 2)
	require.NoError(t, c.DeclineCall(context.Background(), 1, "call-1-2"))

	assert.Equal(t, int64(1), got.Caller)
	assert.Equal(t, "call-1-2", got.ChannelName)
}

func TestNon2xxStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, "", 1)
	_, err := c.RequestToken(context.Background(), "call-1-2")
	assert.Error(t, err)
	assert.Error(t, c.PlaceCall(context.Background(), 2, "call-1-2"))
}

func TestCSRFHeaderOmittedWhenUnset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["X-Csrftoken"]
		assert.False(t, present)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "", 1)
	require.NoError(t, c.PlaceCall(context.Background(), 2, "call-1-2"))
}
