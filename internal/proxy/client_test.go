package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/wamcp/internal/tools"
)

func TestSendMessageForwards(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mcp/run", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get(KeyHeader))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))

		var req tools.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, tools.SendMessageToolName, req.ToolName)
		assert.Equal(t, "3001234567", req.Parameters.String("phone_number"))

		_, _ = w.Write([]byte(`{"success":true,"messageId":"3EB0","to":"923001234567"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", Key: "secret"})
	res := c.SendMessage(context.Background(), "3001234567", "hi")
	require.True(t, res.Success)
	assert.Equal(t, "3EB0", res.Get("messageId"))
}

func TestSendMessageRelaysHostFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"qr_required":true,"error":"WhatsApp connecting..."}`))
	}))
	defer srv.Close()

	res := New(Config{BaseURL: srv.URL}).SendMessage(context.Background(), "1", "x")
	assert.False(t, res.Success)
	assert.True(t, res.Bool("qr_required"))
	assert.Equal(t, "WhatsApp connecting...", res.Error)
}

func TestSendMessageUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
	}{
		{"non-2xx", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"Invalid MCP key"}`))
		}, 0},
		{"bad body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}, 0},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}, 20 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := New(Config{BaseURL: srv.URL, Timeout: tt.timeout})
			res := c.SendMessage(context.Background(), "1", "x")
			assert.False(t, res.Success)
			assert.Equal(t, ErrUnavailable.Error(), res.Error)
		})
	}
}

func TestSendMessageConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{BaseURL: url}).Forward(context.Background(), tools.Request{ToolName: "x"})
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestSendMessageNotConfigured(t *testing.T) {
	res := New(Config{}).SendMessage(context.Background(), "1", "x")
	assert.Equal(t, NotConfiguredMessage, res.Error)
}

func TestProbe(t *testing.T) {
	var ready atomic.Bool
	ready.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "OK", "whatsapp_ready": ready.Load()})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	st := c.Probe(context.Background())
	assert.Equal(t, tools.ServiceConnected, st.ServiceFlag())

	ready.Store(false)
	st = c.Probe(context.Background())
	assert.Equal(t, tools.ServiceWaitingQR, st.ServiceFlag())
	assert.Equal(t, "WhatsApp server running but not connected", st.Message)

	srv.Close()
	st = c.Probe(context.Background())
	assert.Equal(t, tools.ServiceDisconnected, st.ServiceFlag())
	assert.Equal(t, "WhatsApp server not reachable", st.Message)

	st = New(Config{}).Probe(context.Background())
	assert.Equal(t, "WhatsApp server URL not configured", st.Message)
}
