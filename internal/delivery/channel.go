// Package delivery abstracts sending one message to one recipient over a
// transport (SMS or email). Implementations return the provider message id on
// success; any failure is an error the caller converts into a failure entry.
package delivery

import "context"

// Message is channel-agnostic rendered content. SMS transports ignore Subject.
type Message struct {
	Subject string
	Body    string
}

type Channel interface {
	// Name identifies the transport: "sms" or "email".
	Name() string
	// Send delivers msg to recipient and returns the provider message id.
	Send(ctx context.Context, recipient string, msg Message) (string, error)
}

const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)
