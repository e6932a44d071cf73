package tools

import "context"

// SendMessageToolName is the registered name of the WhatsApp send tool.
const SendMessageToolName = "send_whatsapp_message"

// MessageSender delivers a WhatsApp message. The session host sends through
// its own connection; the gateway forwards to the session host.
type MessageSender interface {
	SendMessage(ctx context.Context, phoneNumber, message string) Result
}

// SendMessageTool validates a send request and hands it to a MessageSender.
type SendMessageTool struct {
	sender MessageSender
}

// NewSendMessageTool creates the send tool.
func NewSendMessageTool(sender MessageSender) *SendMessageTool {
	return &SendMessageTool{sender: sender}
}

func (t *SendMessageTool) Name() string {
	return SendMessageToolName
}

func (t *SendMessageTool) Description() string {
	return "Send a WhatsApp text message. Numbers without a country code get the configured default prepended."
}

func (t *SendMessageTool) Schema() map[string]any {
	return objectSchema([]string{"phone_number", "message"}, map[string]string{
		"phone_number": "Recipient phone number, e.g. +92 300 1234567",
		"message":      "Message text",
	})
}

func (t *SendMessageTool) Execute(ctx context.Context, params Params) Result {
	phoneNumber, err := params.Required("phone_number", "Phone number (phone_number)")
	if err != nil {
		return FailErr(err)
	}
	message, err := params.Required("message", "Message content (message)")
	if err != nil {
		return FailErr(err)
	}
	return t.sender.SendMessage(ctx, phoneNumber, message)
}
