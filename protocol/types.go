package protocol

// Mesh frame types carried after the HELP prefix.
const (
	// Device -> relay
	TypeReq    = "REQ"
	TypeCancel = "CANCEL"
	TypePong   = "PONG"

	// Relay -> device (also echoed back by gateways that rebroadcast)
	TypeClaim   = "CLAIM"
	TypeResolve = "RESOLVE"
	TypeDetails = "DETAILS"
	TypePing    = "PING"
	TypeMail    = "MAIL"
)

// Frame prefixes for mesh and device-originated UDP traffic.
const (
	MeshPrefix      = "HELP"
	BeaconPrefix    = "LHREG"
	BeaconAckPrefix = "LHACK"
	DiscoveryPrefix = "HELPBOT_DISCOVERY"
	DiscoveryReply  = "HELPBOT_URL"
)

// Delimiter separates every field of every frame. It is never escaped.
const Delimiter = "|"

// MailTargetAll addresses a mailbox message to every device.
const MailTargetAll = "ALL"
