package integration

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const signingKeyID = "integration-signer"

// TestClaims describes the identity a minted token asserts.
type TestClaims struct {
	PrincipalID string
	TenantID    string
	Email       string
	Groups      []string
	Extra       map[string]any
}

// tokenIssuer signs test tokens with a throwaway RSA key and serves the
// matching JWKS document so the service under test can verify them.
type tokenIssuer struct {
	key      *rsa.PrivateKey
	jwks     *httptest.Server
	issuer   string
	audience string
}

func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}

	keySet, err := json.Marshal(map[string]any{
		"keys": []map[string]string{{
			"kid": signingKeyID,
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	})
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(keySet)
	}))
	t.Cleanup(srv.Close)

	return &tokenIssuer{
		key:      key,
		jwks:     srv,
		issuer:   "https://auth.test.lifeline.dev",
		audience: "lifeline-test",
	}
}

// GenerateToken mints a signed token valid for one hour.
func (ti *tokenIssuer) GenerateToken(claims TestClaims) string {
	return ti.mint(claims, time.Now(), time.Hour)
}

// GenerateExpiredToken mints a token whose validity window closed an hour ago.
func (ti *tokenIssuer) GenerateExpiredToken(claims TestClaims) string {
	return ti.mint(claims, time.Now().Add(-2*time.Hour), time.Hour)
}

func (ti *tokenIssuer) mint(claims TestClaims, issuedAt time.Time, lifetime time.Duration) string {
	mc := jwt.MapClaims{
		"iss":       ti.issuer,
		"aud":       ti.audience,
		"iat":       jwt.NewNumericDate(issuedAt),
		"exp":       jwt.NewNumericDate(issuedAt.Add(lifetime)),
		"sub":       claims.PrincipalID,
		"tenant_id": claims.TenantID,
	}
	if claims.Email != "" {
		mc["email"] = claims.Email
	}
	if len(claims.Groups) > 0 {
		// []any mirrors what jwt.Parse produces on the receiving side.
		groups := make([]any, 0, len(claims.Groups))
		for _, g := range claims.Groups {
			groups = append(groups, g)
		}
		mc["groups"] = groups
	}
	for k, v := range claims.Extra {
		mc[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, mc)
	token.Header["kid"] = signingKeyID
	signed, err := token.SignedString(ti.key)
	if err != nil {
		panic("sign test token: " + err.Error())
	}
	return signed
}

func (ti *tokenIssuer) JWKSURL() string   { return ti.jwks.URL }
func (ti *tokenIssuer) Issuer() string    { return ti.issuer }
func (ti *tokenIssuer) Audience() string  { return ti.audience }
