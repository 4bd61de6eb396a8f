package model

import "time"

// EmailMessage is one decoded mailbox message ready for classification.
// Body is plain text with HTML stripped and is capped by the mailbox adapter.
type EmailMessage struct {
	Date    time.Time
	ID      string
	Subject string
	Sender  string
	Body    string
}
