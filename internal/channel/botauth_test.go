package channel

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type jwksServer struct {
	*httptest.Server
	key       *rsa.PrivateKey
	kid       string
	jwksCalls atomic.Int32
}

func newJWKSServer(t *testing.T) *jwksServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	s := &jwksServer{key: key, kid: "key-1"}
	mux := http.NewServeMux()
	mux.HandleFunc("/metadata", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"jwks_uri": s.URL + "/keys"})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		s.jwksCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": s.kid,
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) sign(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	raw, err := tok.SignedString(s.key)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func validClaims(aud string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss": BotFrameworkIssuer,
		"aud": aud,
		"exp": time.Now().Add(time.Hour).Unix(),
		"nbf": time.Now().Add(-time.Minute).Unix(),
	}
}

func TestJWTVerifier_Valid(t *testing.T) {
	srv := newJWKSServer(t)
	v := NewJWTVerifier("app-123", srv.URL+"/metadata", srv.Client())

	for i := 0; i < 3; i++ {
		if err := v.Verify(context.Background(), "Bearer "+srv.sign(t, srv.kid, validClaims("app-123"))); err != nil {
			t.Fatalf("expected valid token, got %v", err)
		}
	}
	if n := srv.jwksCalls.Load(); n != 1 {
		t.Errorf("expected keys to be cached, fetched %d times", n)
	}
}

func TestJWTVerifier_Rejects(t *testing.T) {
	srv := newJWKSServer(t)
	v := NewJWTVerifier("app-123", srv.URL+"/metadata", srv.Client())

	expired := validClaims("app-123")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	wrongIssuer := validClaims("app-123")
	wrongIssuer["iss"] = "https://evil.example"
	noExp := validClaims("app-123")
	delete(noExp, "exp")

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong audience", "Bearer " + srv.sign(t, srv.kid, validClaims("someone-else"))},
		{"expired", "Bearer " + srv.sign(t, srv.kid, expired)},
		{"wrong issuer", "Bearer " + srv.sign(t, srv.kid, wrongIssuer)},
		{"no expiry", "Bearer " + srv.sign(t, srv.kid, noExp)},
		{"unknown key", "Bearer " + srv.sign(t, "other-kid", validClaims("app-123"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(context.Background(), tt.header)
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestJWTVerifier_UnknownKidRefetchIsThrottled(t *testing.T) {
	srv := newJWKSServer(t)
	v := NewJWTVerifier("app-123", srv.URL+"/metadata", srv.Client())
	ctx := context.Background()

	if err := v.Verify(ctx, "Bearer "+srv.sign(t, srv.kid, validClaims("app-123"))); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		err := v.Verify(ctx, "Bearer "+srv.sign(t, "rotated-kid", validClaims("app-123")))
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	}
	if n := srv.jwksCalls.Load(); n != 1 {
		t.Errorf("unknown kid refetched keys within the throttle window: %d fetches", n)
	}

	later := time.Now().Add(2 * jwksMinRefresh)
	v.now = func() time.Time { return later }
	_ = v.Verify(ctx, "Bearer "+srv.sign(t, "rotated-kid", validClaims("app-123")))
	if n := srv.jwksCalls.Load(); n != 2 {
		t.Errorf("expected a refetch after the throttle window, got %d fetches", n)
	}
}

func TestJWTVerifier_RejectsHS256(t *testing.T) {
	srv := newJWKSServer(t)
	v := NewJWTVerifier("app-123", srv.URL+"/metadata", srv.Client())

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("app-123"))
	raw, err := tok.SignedString([]byte("shared"))
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Verify(context.Background(), "Bearer "+raw); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected HS256 to be rejected, got %v", err)
	}
}

func TestTokenSource_FetchesAndCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		if r.Form.Get("grant_type") != "client_credentials" || r.Form.Get("client_id") != "app" ||
			r.Form.Get("client_secret") != "pw" || r.Form.Get("scope") != botTokenScope {
			t.Errorf("unexpected form %v", r.Form)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
	}))
	defer srv.Close()

	ts := NewTokenSource("app", "pw", srv.URL, srv.Client())
	for i := 0; i < 2; i++ {
		tok, err := ts.Token(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if tok != "tok-1" {
			t.Errorf("unexpected token %q", tok)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 token request, got %d", calls.Load())
	}

	ts.now = func() time.Time { return time.Now().Add(58 * time.Minute) }
	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected refresh near expiry, got %d requests", calls.Load())
	}
}

func TestTokenSource_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad creds", http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := NewTokenSource("app", "pw", srv.URL, srv.Client()).Token(context.Background()); err == nil {
		t.Error("expected error")
	}
}
