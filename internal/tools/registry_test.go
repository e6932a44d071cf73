package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/wamcp/internal/clickup"
)

type fakeSender struct {
	calls []string
}

func (f *fakeSender) SendMessage(_ context.Context, phoneNumber, message string) Result {
	f.calls = append(f.calls, phoneNumber+":"+message)
	return OK(map[string]any{"to": phoneNumber})
}

type fakeTracker struct {
	configured bool
	err        error
	calls      int
}

func (f *fakeTracker) Configured() bool { return f.configured }

func (f *fakeTracker) CreateTask(_ context.Context, name, _ string) (clickup.Task, error) {
	f.calls++
	if f.err != nil {
		return clickup.Task{}, f.err
	}
	return clickup.Task{ID: "t1", Name: name, URL: "https://app.clickup.com/t/t1"}, nil
}

type panicTool struct{}

func (panicTool) Name() string                           { return "boom" }
func (panicTool) Description() string                    { return "panics" }
func (panicTool) Schema() map[string]any                 { return objectSchema(nil, nil) }
func (panicTool) Execute(context.Context, Params) Result { panic("kaboom") }

type staticProber struct{ status HostStatus }

func (p staticProber) Probe(context.Context) HostStatus { return p.status }

type staticSource struct{ status SessionStatus }

func (s staticSource) SessionStatus() SessionStatus { return s.status }

func TestDispatchUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Dispatch(context.Background(), Request{ToolName: "nonexistent_tool"})
	assert.False(t, res.Success)
	assert.Equal(t, "Unknown tool: nonexistent_tool", res.Error)
}

func TestDispatchEmptyToolName(t *testing.T) {
	r := NewRegistry()
	res := r.Dispatch(context.Background(), Request{ToolName: "  "})
	assert.False(t, res.Success)
	assert.Equal(t, "tool_name is required", res.Error)
}

func TestDispatchRecoversPanic(t *testing.T) {
	r := NewRegistry()
	r.Register(panicTool{})
	res := r.Dispatch(context.Background(), Request{ToolName: "boom"})
	assert.False(t, res.Success)
	assert.Equal(t, "boom failed: internal error", res.Error)
}

func TestSendMessageValidation(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   string
	}{
		{"missing phone", Params{"message": "hi"}, "Phone number (phone_number) is required"},
		{"missing message", Params{"phone_number": "3001234567"}, "Message content (message) is required"},
		{"empty message", Params{"phone_number": "3001234567", "message": ""}, "Message content (message) is required"},
		{"nil params", nil, "Phone number (phone_number) is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			r := NewRegistry()
			r.Register(NewSendMessageTool(sender))

			res := r.Dispatch(context.Background(), Request{ToolName: SendMessageToolName, Parameters: tt.params})
			assert.False(t, res.Success)
			assert.Equal(t, tt.want, res.Error)
			assert.Empty(t, sender.calls)
		})
	}
}

func TestSendMessageNumericPhone(t *testing.T) {
	sender := &fakeSender{}
	r := NewRegistry()
	r.Register(NewSendMessageTool(sender))

	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"tool_name":"send_whatsapp_message","parameters":{"phone_number":3001234567,"message":"hi"}}`), &req))

	res := r.Dispatch(context.Background(), req)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"3001234567:hi"}, sender.calls)
}

func TestCreateTask(t *testing.T) {
	t.Run("missing name", func(t *testing.T) {
		tracker := &fakeTracker{configured: true}
		res := NewCreateTaskTool(tracker).Execute(context.Background(), Params{})
		assert.Equal(t, "Task name (task_name) is required", res.Error)
		assert.Zero(t, tracker.calls)
	})

	t.Run("not configured", func(t *testing.T) {
		tracker := &fakeTracker{}
		res := NewCreateTaskTool(tracker).Execute(context.Background(), Params{"task_name": "x"})
		assert.Equal(t, "ClickUp API key not configured in environment variables", res.Error)
		assert.Zero(t, tracker.calls)
	})

	t.Run("upstream error", func(t *testing.T) {
		tracker := &fakeTracker{configured: true, err: errors.New("Token invalid")}
		res := NewCreateTaskTool(tracker).Execute(context.Background(), Params{"task_name": "x"})
		assert.False(t, res.Success)
		assert.Equal(t, "Token invalid", res.Error)
	})

	t.Run("created", func(t *testing.T) {
		tracker := &fakeTracker{configured: true}
		res := NewCreateTaskTool(tracker).Execute(context.Background(), Params{"task_name": "Ship it"})
		require.True(t, res.Success)
		assert.Equal(t, "t1", res.Get("taskId"))
		assert.Equal(t, "Ship it", res.Get("taskName"))
		assert.Equal(t, `Task "Ship it" created successfully in ClickUp!`, res.Get("message"))
	})

	t.Run("name is not escaped", func(t *testing.T) {
		tracker := &fakeTracker{configured: true}
		res := NewCreateTaskTool(tracker).Execute(context.Background(), Params{"task_name": `Say "hi" \ now`})
		require.True(t, res.Success)
		assert.Equal(t, `Task "Say "hi" \ now" created successfully in ClickUp!`, res.Get("message"))
	})
}

func TestGatewayStatusServicesStable(t *testing.T) {
	tool := NewGatewayStatusTool(true, staticProber{HostStatus{Reachable: true, Message: "WhatsApp server running but not connected"}}, "cloud")
	calls := 0
	tool.now = func() time.Time {
		calls++
		return time.Date(2026, 3, 1, 12, 0, calls, 0, time.UTC)
	}

	services := func() []byte {
		res := tool.Execute(context.Background(), nil)
		require.True(t, res.Success)
		data, err := json.Marshal(res.Get("services"))
		require.NoError(t, err)
		return data
	}

	first := services()
	second := services()
	assert.Equal(t, first, second)
	assert.JSONEq(t, `{"clickup":"configured","whatsapp":"waiting_qr","server":"healthy"}`, string(first))
}

func TestHostStatusFlags(t *testing.T) {
	tests := []struct {
		name   string
		status SessionStatus
		flag   string
		msg    string
		qr     string
	}{
		{"ready", SessionStatus{State: "ready", Ready: true}, ServiceConnected, "WhatsApp connected and ready", "WhatsApp already connected"},
		{"pairing", SessionStatus{State: "pairing", PairingAvailable: true}, ServiceWaitingQR, "Please scan QR code to connect WhatsApp", "QR code available - scan to connect"},
		{"degraded", SessionStatus{State: "degraded"}, ServiceDisconnected, "WhatsApp initializing...", "Generating QR code..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := staticSource{tt.status}
			assert.Equal(t, tt.flag, tt.status.ServiceFlag())

			res := NewWhatsAppStatusTool(src).Execute(context.Background(), nil)
			assert.Equal(t, tt.msg, res.Get("message"))
			assert.Equal(t, !tt.status.Ready && tt.status.PairingAvailable, res.Bool("qr_required"))

			res = NewWhatsAppQRTool(src).Execute(context.Background(), nil)
			assert.Equal(t, tt.qr, res.Get("message"))
		})
	}
}

func TestResultEnvelope(t *testing.T) {
	data, err := json.Marshal(OK(map[string]any{"to": "92300"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"to":"92300"}`, string(data))

	data, err = json.Marshal(Fail("").With("qr_required", true))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"unknown error","qr_required":true}`, string(data))

	var back Result
	require.NoError(t, json.Unmarshal([]byte(`{"success":false,"error":"nope","queued":true}`), &back))
	assert.False(t, back.Success)
	assert.Equal(t, "nope", back.Error)
	assert.True(t, back.Bool("queued"))
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	src := staticSource{}
	r.Register(NewWhatsAppQRTool(src))
	r.Register(NewSendMessageTool(&fakeSender{}))
	r.Register(NewHostStatusTool(src))

	assert.Equal(t, []string{ServerStatusToolName, WhatsAppQRToolName, SendMessageToolName}, r.List())
	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, []string{"phone_number", "message"}, defs[2].InputSchema["required"])
}
