package jwtoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerify(t *testing.T) {
	svc := New("secret", "app-1", time.Hour)

	creds, err := svc.Mint("call-1-2")
	require.NoError(t, err)
	assert.Equal(t, "app-1", creds.AppID)
	assert.NotEmpty(t, creds.Token)

	assert.NoError(t, svc.Verify(creds.Token, "call-1-2"))
}

func TestMintRequiresChannel(t *testing.T) {
	svc := New("secret", "app-1", time.Hour)

	_, err := svc.Mint("")
	assert.Error(t, err)
}

func TestVerifyRejectsWrongChannel(t *testing.T) {
	svc := New("secret", "app-1", time.Hour)

	creds, err := svc.Mint("call-1-2")
	require.NoError(t, err)

	assert.Error(t, svc.Verify(creds.Token, "call-3-4"))
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	svc := New("secret", "app-1", time.Hour)
	other := New("other-secret", "app-1", time.Hour)

	creds, err := other.Mint("call-1-2")
	require.NoError(t, err)

	assert.Error(t, svc.Verify(creds.Token, "call-1-2"))
}

func TestVerifyRejectsForeignApp(t *testing.T) {
	svc := New("secret", "app-1", time.Hour)
	other := New("secret", "app-2", time.Hour)

	creds, err := other.Mint("call-1-2")
	require.NoError(t, err)

	assert.Error(t, svc.Verify(creds.Token, "call-1-2"))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := New("secret", "app-1", -time.Minute)

	creds, err := svc.Mint("call-1-2")
	require.NoError(t, err)

	assert.Error(t, svc.Verify(creds.Token, "call-1-2"))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := New("secret", "app-1", time.Hour)
	assert.Error(t, svc.Verify("not-a-jwt", "call-1-2"))
}
