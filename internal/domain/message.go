package domain

import "time"

type Channel string

const (
	ChannelMail Channel = "mail"
	ChannelSMS  Channel = "sms"
)

// Message is a fetched notification. It is never persisted.
type Message struct {
	Channel    Channel
	ExternalID string
	From       string
	To         []string
	Subject    string
	Body       string
	Date       time.Time // keeps the sender's zone
}
