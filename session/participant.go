package session

import (
	"context"
	"fmt"
	"time"

	"quizbench/protocol"
	"quizbench/strategy"

	jsoniter "github.com/json-iterator/go"
)

// JoinError carries the coordinator's rejection of a join attempt. The
// channel is still Connected; the caller decides whether to retry.
type JoinError struct {
	Ack protocol.Ack
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join rejected: %s (%s)", e.Ack.Status, e.Ack.Message)
}

// Participant drives one channel through the session lifecycle: join,
// answer every pushed question with its strategy, stop on session_end.
// The same loop serves the interactive client and the load harness; only
// the strategy and callbacks differ.
type Participant struct {
	Email string

	ch    *Channel
	strat strategy.Strategy

	// OnLatency fires once per resolved answer acknowledgment with the
	// send-to-ack round-trip time.
	OnLatency func(time.Duration)
	// OnAnswerAck fires with the coordinator's verdict on each submission.
	OnAnswerAck func(ack protocol.Ack)
	// OnSessionEnd fires with the results identifier.
	OnSessionEnd func(resultID string)
}

func NewParticipant(ch *Channel, email string, strat strategy.Strategy) *Participant {
	return &Participant{
		Email: email,
		ch:    ch,
		strat: strat,
	}
}

// Run joins the session and answers until it ends. It returns nil after a
// session_end event, a *JoinError when the coordinator refuses the join
// code, and ErrChannelClosed when the transport dies mid-session.
func (p *Participant) Run(ctx context.Context, joinCode string) error {
	questions := make(chan *protocol.QuestionPayload, 8)
	ended := make(chan string, 1)

	// handlers registered before the join so nothing pushed by the
	// coordinator can slip past
	p.ch.On(protocol.EventNextQuestion, func(payload jsoniter.RawMessage) {
		q := &protocol.QuestionPayload{}
		if err := json.Unmarshal(payload, q); err != nil {
			return
		}
		select {
		case questions <- q:
		default:
		}
	})
	p.ch.On(protocol.EventSessionEnd, func(payload jsoniter.RawMessage) {
		var end protocol.SessionEndPayload
		json.Unmarshal(payload, &end)
		select {
		case ended <- end.ResultID:
		default:
		}
	})

	ack, err := p.ch.Join(ctx, joinCode)
	if err != nil {
		return err
	}
	if !ack.OK() {
		return &JoinError{Ack: ack}
	}

	for {
		select {
		case q := <-questions:
			if err := p.answer(ctx, q); err != nil {
				return err
			}
		case resultID := <-ended:
			return p.finish(resultID)
		case <-p.ch.Closed():
			// the coordinator ends the session and drops the connection
			// right after; a session_end already dispatched wins over the
			// teardown racing it
			select {
			case resultID := <-ended:
				return p.finish(resultID)
			default:
			}
			return ErrChannelClosed
		case <-ctx.Done():
			p.ch.Close()
			return ctx.Err()
		}
	}
}

func (p *Participant) finish(resultID string) error {
	if p.OnSessionEnd != nil {
		p.OnSessionEnd(resultID)
	}
	return p.ch.Close()
}

func (p *Participant) answer(ctx context.Context, q *protocol.QuestionPayload) error {
	p.ch.setState(StateAnswering)

	if think := p.strat.ThinkTime(); think > 0 {
		timer := time.NewTimer(think)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-p.ch.Closed():
			timer.Stop()
			return ErrChannelClosed
		}
	}

	sub, err := p.strat.Answer(q)
	if err != nil {
		return err
	}

	start := time.Now()
	var ack protocol.Ack
	if sub.Open {
		ack, err = p.ch.EmitWait(ctx, protocol.EventUserOpenAnswer, protocol.OpenAnswerPayload{
			QuestionID: q.Question.ID,
			Text:       sub.Text,
		})
	} else {
		ack, err = p.ch.EmitWait(ctx, protocol.EventUserAnswer, sub.AnswerIDs)
	}
	if err != nil {
		return err
	}

	if p.OnLatency != nil {
		p.OnLatency(time.Since(start))
	}
	if p.OnAnswerAck != nil {
		p.OnAnswerAck(ack)
	}

	p.ch.setState(StateAwaitingNext)
	return nil
}
