// Package signing signs release manifests and decision records "by name":
// an HS256 JWT keyed by the issuing release-manager agent's key, embedding
// the artifact's own content hash as a claim so a holder of the manifest
// can verify both who issued it and that it has not been altered since,
// entirely offline. Adapted from the principal-token pattern used
// elsewhere in this ecosystem for signing identity claims.
package signing

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims embeds the registered JWT claims plus the fields this module's
// signed artifacts need: which agent signed, and the sha256 of the
// document being vouched for.
type Claims struct {
	jwt.RegisteredClaims
	AgentID      string `json:"agent_id"`
	ArtifactSHA256 string `json:"artifact_sha256"`
}

// KeySet resolves the signing key for a given agent id. In production
// deployments this would be backed by a secrets store; tests and
// single-operator deployments can use a StaticKeySet.
type KeySet interface {
	KeyFor(agentID string) ([]byte, error)
}

// StaticKeySet returns the same key for every agent, suitable for a
// single-deployment HS256 setup where agent identity is established by
// filesystem placement rather than per-principal credentials.
type StaticKeySet struct {
	Key []byte
}

func (s StaticKeySet) KeyFor(agentID string) ([]byte, error) {
	if len(s.Key) == 0 {
		return nil, fmt.Errorf("signing: no key configured")
	}
	return s.Key, nil
}

// Signer signs artifacts by name using a KeySet.
type Signer struct {
	Keys KeySet
}

// NewSigner returns a Signer backed by keys.
func NewSigner(keys KeySet) *Signer {
	return &Signer{Keys: keys}
}

// Sign produces a compact JWT over artifactSHA256, issued by agentID, with
// the given issued-at time.
func (s *Signer) Sign(agentID, artifactSHA256 string, issuedAt time.Time) (string, error) {
	key, err := s.Keys.KeyFor(agentID)
	if err != nil {
		return "", err
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   agentID,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
		AgentID:        agentID,
		ArtifactSHA256: artifactSHA256,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(key)
}

// Verify parses signature and checks it was issued by agentID over
// artifactSHA256.
func (s *Signer) Verify(signature, agentID, artifactSHA256 string) error {
	key, err := s.Keys.KeyFor(agentID)
	if err != nil {
		return err
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(signature, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return fmt.Errorf("signing: parse failed: %w", err)
	}
	if !tok.Valid {
		return fmt.Errorf("signing: invalid token")
	}
	if claims.AgentID != agentID || claims.ArtifactSHA256 != artifactSHA256 {
		return fmt.Errorf("signing: claims mismatch")
	}
	return nil
}
