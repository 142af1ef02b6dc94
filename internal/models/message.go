package models

import "time"

// Message is an inbound operator message.
type Message struct {
	ID         string    `json:"message_id"`
	Text       string    `json:"text"`
	Area       string    `json:"area"`
	UserID     string    `json:"user_id"`
	ReceivedAt time.Time `json:"received_at"`
}

// ActionPayload is what an action delivers: the message that caused it and
// the rule or keyword that fired.
type ActionPayload struct {
	Message Message `json:"message"`
	Origin  string  `json:"origin"`
	Keyword string  `json:"keyword,omitempty"`
	Rule    string  `json:"rule,omitempty"`
}
