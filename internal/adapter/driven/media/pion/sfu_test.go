package pion

import (
	"fmt"
	"sync"
	"testing"

	"github.com/callglue/callglue/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineAddPeerOffersRecvonlyMedia(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)

	offer, err := e.AddPeer("call-1-2", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.SignalOffer, offer.Type)
	assert.Contains(t, offer.Payload, "m=audio")
	assert.Contains(t, offer.Payload, "m=video")
	assert.Contains(t, offer.Payload, "a=recvonly")

	e.RemovePeer("call-1-2", 1)
}

func TestEngineRemovePeerCleansUpEmptySession(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)

	_, err = e.AddPeer("call-1-2", 1)
	require.NoError(t, err)

	e.RemovePeer("call-1-2", 1)

	e.mu.RLock()
	_, sessionLeft := e.sessions["call-1-2"]
	_, tracksLeft := e.tracks["call-1-2"]
	e.mu.RUnlock()
	assert.False(t, sessionLeft, "empty session must be dropped")
	assert.False(t, tracksLeft)

	err = e.HandleSignal("call-1-2", 1, domain.NewSignal(domain.SignalAnswer, "v=0"))
	assert.Error(t, err, "a removed session must not accept signals")
}

// Joins across different sessions proceed concurrently; none may block on
// another session's ICE gathering window.
func TestEngineConcurrentJoinsAcrossSessions(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)

	const peers = 4
	var wg sync.WaitGroup
	errs := make([]error, peers)
	for i := 0; i < peers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session := domain.SessionID(fmt.Sprintf("call-%d-%d", i, i+10))
			_, errs[i] = e.AddPeer(session, domain.UserID(i+1))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "peer %d failed to join", i)
	}

	e.mu.RLock()
	sessions := len(e.sessions)
	e.mu.RUnlock()
	assert.Equal(t, peers, sessions)
}
