package protocol

import (
	"strconv"
	"strings"
)

// Encode renders a mesh message as HELP|TYPE|field|field...
func Encode(m Message) string {
	parts := append([]string{MeshPrefix, m.Type()}, m.Fields()...)
	return strings.Join(parts, Delimiter)
}

// SanitizeText makes operator free text safe to embed as a single field.
func SanitizeText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, Delimiter, "/"))
}

// Parse decodes a mesh frame. It never fails: anything that is not a
// recognized, well-formed frame comes back as Unparsed.
//
// Gateways sometimes forward the mesh text with a sender tag in front, so
// decoding starts at the first HELP| occurrence.
func Parse(text string) Message {
	raw := text
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, MeshPrefix+Delimiter) {
		i := strings.Index(text, MeshPrefix+Delimiter)
		if i < 0 {
			return Unparsed{Raw: raw}
		}
		text = text[i:]
	}

	parts := strings.Split(text, Delimiter)
	if len(parts) < 3 {
		return Unparsed{Raw: raw}
	}
	msgType := strings.ToUpper(parts[1])
	f := parts[2:]

	var (
		msg Message
		ok  bool
	)
	switch msgType {
	case TypeReq:
		msg, ok = parseReq(f)
	case TypeCancel:
		msg, ok = parseCancel(f)
	case TypeClaim:
		if id, dev, actor, good := parseAction(f); good {
			msg, ok = Claim{ReqID: id, DeviceID: dev, Actor: actor}, true
		}
	case TypeResolve:
		if id, dev, actor, good := parseAction(f); good {
			msg, ok = Resolve{ReqID: id, DeviceID: dev, Actor: actor}, true
		}
	case TypePong:
		msg, ok = parsePong(f)
	case TypeDetails:
		msg, ok = parseDetails(f)
	case TypePing:
		if f[0] != "" {
			msg, ok = Ping{PingID: f[0]}, true
		}
	case TypeMail:
		if len(f) >= 2 && f[0] != "" && f[1] != "" {
			msg, ok = Mail{Target: f[0], URL: strings.Join(f[1:], Delimiter)}, true
		}
	}
	if !ok {
		return Unparsed{Raw: raw}
	}
	return msg
}

func parseReq(f []string) (Message, bool) {
	if len(f) < 3 || f[0] == "" {
		return nil, false
	}
	dev, ok := parseDeviceID(f[1])
	if !ok {
		return nil, false
	}
	m := Req{ReqID: f[0], DeviceID: dev, Timestamp: f[2]}
	if len(f) >= 4 {
		m.Color = f[3]
	}
	return m, true
}

func parseCancel(f []string) (Message, bool) {
	if len(f) < 2 || f[0] == "" {
		return nil, false
	}
	dev, ok := parseDeviceID(f[1])
	if !ok {
		return nil, false
	}
	m := Cancel{ReqID: f[0], DeviceID: dev}
	if len(f) >= 3 {
		m.Timestamp = f[2]
	}
	return m, true
}

func parseAction(f []string) (string, int, string, bool) {
	if len(f) < 3 || f[0] == "" {
		return "", 0, "", false
	}
	dev, ok := parseDeviceID(f[1])
	if !ok {
		return "", 0, "", false
	}
	return f[0], dev, f[2], true
}

func parsePong(f []string) (Message, bool) {
	if len(f) < 3 || f[0] == "" {
		return nil, false
	}
	dev, ok := parseDeviceID(f[1])
	if !ok {
		return nil, false
	}
	return Pong{PingID: f[0], DeviceID: dev, Timestamp: f[2]}, true
}

func parseDetails(f []string) (Message, bool) {
	if len(f) < 3 || f[0] == "" {
		return nil, false
	}
	dev, ok := parseDeviceID(f[1])
	if !ok {
		return nil, false
	}
	return Details{ReqID: f[0], DeviceID: dev, Text: strings.Join(f[2:], Delimiter)}, true
}

func parseDeviceID(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}
