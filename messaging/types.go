package messaging

import (
	"time"

	"helprelay/requests"
)

// Render topic message types.
const (
	TypeRender   = "request.render"
	TypeUpdate   = "request.update"
	TypeRejected = "action.rejected"
)

// RequestMessage is published on the render topic whenever a request needs
// to be shown or redrawn. Consumers key their surface by Ref.
type RequestMessage struct {
	Type       string               `json:"type"`
	Ref        string               `json:"ref"`
	StatusLine string               `json:"status_line"`
	Request    requests.HelpRequest `json:"request"`
	SentAt     time.Time            `json:"sent_at"`
}

// RejectionMessage tells the bus consumer why an operator action it
// submitted was refused.
type RejectionMessage struct {
	Type      string    `json:"type"`
	RequestID string    `json:"request_id"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Error     string    `json:"error"`
	SentAt    time.Time `json:"sent_at"`
}
