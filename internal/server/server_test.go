package server_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/floe/internal/auth"
	"github.com/gosuda/floe/internal/config"
	"github.com/gosuda/floe/internal/dispatch"
	"github.com/gosuda/floe/internal/interaction"
	"github.com/gosuda/floe/internal/server"
)

type nopSender struct{}

func (nopSender) Deliver(context.Context, string, *interaction.Response) error { return nil }

// testStack wires a real verifier and dispatcher behind an httptest server
// and returns a request signer for the generated key.
type testStack struct {
	srv  *httptest.Server
	sign func(timestamp string, body []byte) string
}

func newTestStack(t *testing.T, router *dispatch.Router) *testStack {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	verifier, err := auth.NewVerifier(hex.EncodeToString(pub))
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{
			Addr:           ":0",
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   5 * time.Second,
			RateLimitRPS:   1000,
			RateLimitBurst: 1000,
		},
	}

	d := dispatch.New(router, nopSender{})
	s := server.New(context.Background(), cfg, verifier, d)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return &testStack{
		srv: ts,
		sign: func(timestamp string, body []byte) string {
			msg := append([]byte(timestamp), body...)
			return hex.EncodeToString(ed25519.Sign(priv, msg))
		},
	}
}

func (ts *testStack) post(t *testing.T, body []byte, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/interactions", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testStack) postSigned(t *testing.T, body []byte) *http.Response {
	t.Helper()

	timestamp := "1700000000"
	return ts.post(t, body, map[string]string{
		"X-Signature-Timestamp": timestamp,
		"X-Signature-Ed25519":   ts.sign(timestamp, body),
	})
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return buf.String()
}

func TestServerPing(t *testing.T) {
	t.Parallel()

	ts := newTestStack(t, dispatch.NewRouter())

	resp := ts.postSigned(t, []byte(`{"id":"1","type":1,"token":"t","version":1}`))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"type":1}`, readBody(t, resp))
}

func TestServerCommand(t *testing.T) {
	t.Parallel()

	router := dispatch.NewRouter()
	require.NoError(t, router.RegisterCommand("hello", func(_ context.Context, in *interaction.Interaction) (*interaction.Response, error) {
		return interaction.NewMessage("hello there"), nil
	}))

	ts := newTestStack(t, router)

	resp := ts.postSigned(t, []byte(`{"id":"2","type":2,"token":"t","version":1,"data":{"name":"hello","type":1}}`))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"type":4,"data":{"content":"hello there"}}`, readBody(t, resp))
}

func TestServerUnknownCommand(t *testing.T) {
	t.Parallel()

	ts := newTestStack(t, dispatch.NewRouter())

	resp := ts.postSigned(t, []byte(`{"id":"3","type":2,"token":"t","version":1,"data":{"name":"ghost","type":1}}`))

	// A routing miss is still a valid acknowledgment: 200 with a visible error.
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, `"type":4`)
	assert.Contains(t, body, "Unknown command")
}

func TestServerRejectsBadSignature(t *testing.T) {
	t.Parallel()

	router := dispatch.NewRouter()
	invoked := false
	require.NoError(t, router.RegisterCommand("hello", func(context.Context, *interaction.Interaction) (*interaction.Response, error) {
		invoked = true
		return interaction.NewMessage("hi"), nil
	}))

	ts := newTestStack(t, router)
	body := []byte(`{"id":"4","type":2,"token":"t","version":1,"data":{"name":"hello","type":1}}`)

	t.Run("tampered body", func(t *testing.T) {
		timestamp := "1700000000"
		sig := ts.sign(timestamp, body)
		tampered := bytes.Replace(body, []byte("hello"), []byte("evil!"), 1)

		resp := ts.post(t, tampered, map[string]string{
			"X-Signature-Timestamp": timestamp,
			"X-Signature-Ed25519":   sig,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("missing headers", func(t *testing.T) {
		resp := ts.post(t, body, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("garbage signature", func(t *testing.T) {
		resp := ts.post(t, body, map[string]string{
			"X-Signature-Timestamp": "1700000000",
			"X-Signature-Ed25519":   "not-hex",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	assert.False(t, invoked, "unauthenticated requests must never reach a handler")
}

func TestServerMalformedPayload(t *testing.T) {
	t.Parallel()

	ts := newTestStack(t, dispatch.NewRouter())

	// Correctly signed but structurally invalid.
	resp := ts.postSigned(t, []byte(`{"id":`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.postSigned(t, []byte(`{"token":"t"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerHealthz(t *testing.T) {
	t.Parallel()

	ts := newTestStack(t, dispatch.NewRouter())

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, readBody(t, resp))
}
