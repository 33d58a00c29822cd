package protocol

import "strconv"

// Message is one decoded mesh frame. Fields returns the frame's fields in
// wire order, excluding the HELP prefix and the type.
type Message interface {
	Type() string
	Fields() []string
}

// --- Device -> relay ---

// Req opens a help request.
type Req struct {
	ReqID     string
	DeviceID  int
	Timestamp string
	Color     string // optional, opaque
}

func (Req) Type() string { return TypeReq }

func (m Req) Fields() []string {
	f := []string{m.ReqID, strconv.Itoa(m.DeviceID), m.Timestamp}
	if m.Color != "" {
		f = append(f, m.Color)
	}
	return f
}

// Cancel withdraws a help request from the device side.
type Cancel struct {
	ReqID     string
	DeviceID  int
	Timestamp string // optional
}

func (Cancel) Type() string { return TypeCancel }

func (m Cancel) Fields() []string {
	f := []string{m.ReqID, strconv.Itoa(m.DeviceID)}
	if m.Timestamp != "" {
		f = append(f, m.Timestamp)
	}
	return f
}

// Pong answers a liveness probe.
type Pong struct {
	PingID    string
	DeviceID  int
	Timestamp string
}

func (Pong) Type() string { return TypePong }

func (m Pong) Fields() []string {
	return []string{m.PingID, strconv.Itoa(m.DeviceID), m.Timestamp}
}

// --- Relay -> device ---

// Claim announces that an operator took a request.
type Claim struct {
	ReqID    string
	DeviceID int
	Actor    string
}

func (Claim) Type() string { return TypeClaim }

func (m Claim) Fields() []string {
	return []string{m.ReqID, strconv.Itoa(m.DeviceID), m.Actor}
}

// Resolve announces that the claiming operator closed a request.
type Resolve struct {
	ReqID    string
	DeviceID int
	Actor    string
}

func (Resolve) Type() string { return TypeResolve }

func (m Resolve) Fields() []string {
	return []string{m.ReqID, strconv.Itoa(m.DeviceID), m.Actor}
}

// Details carries the operator-facing description of a request.
// Text must already be sanitized.
type Details struct {
	ReqID    string
	DeviceID int
	Text     string
}

func (Details) Type() string { return TypeDetails }

func (m Details) Fields() []string {
	return []string{m.ReqID, strconv.Itoa(m.DeviceID), m.Text}
}

// Ping is a broadcast liveness probe.
type Ping struct {
	PingID string
}

func (Ping) Type() string { return TypePing }

func (m Ping) Fields() []string { return []string{m.PingID} }

// Mail queues an audio clip in one device's mailbox, or every device's
// when Target is MailTargetAll.
type Mail struct {
	Target string
	URL    string
}

func (Mail) Type() string { return TypeMail }

func (m Mail) Fields() []string { return []string{m.Target, m.URL} }

// Unparsed is the result of parsing text that is not a recognized frame.
type Unparsed struct {
	Raw string
}

func (Unparsed) Type() string { return "" }

func (Unparsed) Fields() []string { return nil }
