package auth_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/annai/internal/auth"
	"github.com/ashita-ai/annai/internal/model"
)

func TestHashAndVerifyAPIKey(t *testing.T) {
	hash, err := auth.HashAPIKey("test-key-123")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	valid, err := auth.VerifyAPIKey("test-key-123", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = auth.VerifyAPIKey("wrong-key", hash)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestVerifyAPIKeyMalformedHash(t *testing.T) {
	_, err := auth.VerifyAPIKey("key", "no-dollar-separator")
	assert.Error(t, err)

	_, err = auth.VerifyAPIKey("key", "!!!$alsobad")
	assert.Error(t, err)
}

func TestJWTIssueAndValidate(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", 1*time.Hour)
	require.NoError(t, err)

	user := model.User{
		ID:     uuid.New(),
		UserID: "alice",
		Name:   "Alice",
		Role:   model.RoleUser,
	}

	token, expiresAt, err := mgr.IssueToken(user)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, model.RoleUser, claims.Role)
	assert.Equal(t, user.ID, claims.SubjectID())
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", -1*time.Minute)
	require.NoError(t, err)

	token, _, err := mgr.IssueToken(model.User{ID: uuid.New(), UserID: "bob", Role: model.RoleUser})
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTRejectsForeignKey(t *testing.T) {
	mgr1, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	mgr2, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := mgr1.IssueToken(model.User{ID: uuid.New(), UserID: "carol", Role: model.RoleAdmin})
	require.NoError(t, err)

	_, err = mgr2.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTRejectsWrongSigningMethod(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  uuid.New().String(),
		Issuer:   "annai",
		Audience: jwt.ClaimStrings{"annai"},
	})
	tokenStr, err := forged.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = mgr.ValidateToken(tokenStr)
	assert.Error(t, err)
}

func TestJWTManagerFromPEMFiles(t *testing.T) {
	dir := t.TempDir()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)

	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")
	require.NoError(t, os.WriteFile(privPath,
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}), 0o600))
	require.NoError(t, os.WriteFile(pubPath,
		pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o644))

	mgr, err := auth.NewJWTManager(privPath, pubPath, time.Hour)
	require.NoError(t, err)

	token, _, err := mgr.IssueToken(model.User{ID: uuid.New(), UserID: "dave", Role: model.RoleUser})
	require.NoError(t, err)

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "dave", claims.UserID)
}

func TestJWTManagerRejectsMismatchedKeyPair(t *testing.T) {
	dir := t.TempDir()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(otherPub)
	require.NoError(t, err)

	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")
	require.NoError(t, os.WriteFile(privPath,
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}), 0o600))
	require.NoError(t, os.WriteFile(pubPath,
		pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o644))

	_, err = auth.NewJWTManager(privPath, pubPath, time.Hour)
	assert.Error(t, err)
}
