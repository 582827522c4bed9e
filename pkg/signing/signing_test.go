package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := NewSigner(StaticKeySet{Key: []byte("key-material")})
	sig, err := signer.Sign("agent_release_manager", "sha256:abc", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.NoError(t, signer.Verify(sig, "agent_release_manager", "sha256:abc"))
}

func TestVerifyRejectsWrongAgent(t *testing.T) {
	signer := NewSigner(StaticKeySet{Key: []byte("key-material")})
	sig, err := signer.Sign("agent_release_manager", "sha256:abc", time.Now())
	require.NoError(t, err)
	assert.Error(t, signer.Verify(sig, "agent_other", "sha256:abc"))
}

func TestVerifyRejectsTamperedHash(t *testing.T) {
	signer := NewSigner(StaticKeySet{Key: []byte("key-material")})
	sig, err := signer.Sign("agent_release_manager", "sha256:abc", time.Now())
	require.NoError(t, err)
	assert.Error(t, signer.Verify(sig, "agent_release_manager", "sha256:different"))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	signer := NewSigner(StaticKeySet{Key: []byte("key-material")})
	sig, err := signer.Sign("agent_release_manager", "sha256:abc", time.Now())
	require.NoError(t, err)

	other := NewSigner(StaticKeySet{Key: []byte("different-key")})
	assert.Error(t, other.Verify(sig, "agent_release_manager", "sha256:abc"))
}

func TestStaticKeySetRejectsEmptyKey(t *testing.T) {
	_, err := StaticKeySet{}.KeyFor("agent_release_manager")
	assert.Error(t, err)
}
