package protocol

import "context"

// NoOpHandler implements MessageHandler by acknowledging every recognized
// frame as a duplicate. Embed this and override only the methods you need.
type NoOpHandler struct{}

func (NoOpHandler) HandleReq(context.Context, *Req) Result         { return Duplicate }
func (NoOpHandler) HandleCancel(context.Context, *Cancel) Result   { return Duplicate }
func (NoOpHandler) HandlePong(context.Context, *Pong) Result       { return Duplicate }
func (NoOpHandler) HandleClaim(context.Context, *Claim) Result     { return Duplicate }
func (NoOpHandler) HandleResolve(context.Context, *Resolve) Result { return Duplicate }
func (NoOpHandler) HandleDetails(context.Context, *Details) Result { return Duplicate }
func (NoOpHandler) HandlePing(context.Context, *Ping) Result       { return Duplicate }
func (NoOpHandler) HandleMail(context.Context, *Mail) Result       { return Duplicate }

// Compile-time check that NoOpHandler implements MessageHandler.
var _ MessageHandler = NoOpHandler{}
