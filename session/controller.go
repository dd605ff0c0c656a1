package session

import (
	"context"

	"quizbench/protocol"
)

// Controller is the session owner's side of the channel: it joins its own
// session and drives question progression. The coordinator answers a Next
// past the last question with no_more_questions ("Fin du questionaire"),
// after which End is the only move left.
type Controller struct {
	ch *Channel
}

func NewController(ch *Channel) *Controller {
	return &Controller{ch: ch}
}

func (c *Controller) Channel() *Channel {
	return c.ch
}

// Join enters the controller's own session; the expected status is
// owner_join.
func (c *Controller) Join(ctx context.Context, joinCode string) (protocol.Ack, error) {
	return c.ch.Join(ctx, joinCode)
}

// Next starts the session or advances it to the following question.
func (c *Controller) Next(ctx context.Context) (protocol.Ack, error) {
	return c.ch.EmitWait(ctx, protocol.EventInitiateNext, nil)
}

// End terminates the session for every participant.
func (c *Controller) End(ctx context.Context) (protocol.Ack, error) {
	return c.ch.EmitWait(ctx, protocol.EventEndSession, nil)
}

func (c *Controller) Close() error {
	return c.ch.Close()
}
