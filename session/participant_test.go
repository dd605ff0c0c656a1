package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizbench/protocol"
	"quizbench/strategy"

	"github.com/coder/websocket"
)

// scriptedSession acks the join, pushes the given questions one at a time
// waiting for an answer between each, then ends the session.
func scriptedSession(t *testing.T, questions []protocol.QuestionPayload, resultID string) func(ctx context.Context, conn *websocket.Conn) {
	return func(ctx context.Context, conn *websocket.Conn) {
		join := readFrame(ctx, t, conn)
		if join.Event != protocol.EventSessionConnect {
			t.Errorf("expected session_connect first, got %q", join.Event)
			return
		}
		writeFrame(ctx, t, conn, protocol.NewAck(join.AckID, protocol.AckJoin))

		for i := range questions {
			writeFrame(ctx, t, conn, protocol.NewMessage(protocol.EventNextQuestion, questions[i]))

			answer := readFrame(ctx, t, conn)
			switch answer.Event {
			case protocol.EventUserAnswer:
				var ids []int
				if err := json.Unmarshal(answer.Payload, &ids); err != nil || len(ids) == 0 {
					t.Errorf("question %d: bad answer payload %s", i, answer.Payload)
				} else if !candidateOf(questions[i], ids[0]) {
					t.Errorf("question %d: answer id %d not among candidates", i, ids[0])
				}
			case protocol.EventUserOpenAnswer:
				var open protocol.OpenAnswerPayload
				if err := json.Unmarshal(answer.Payload, &open); err != nil || open.Text == "" {
					t.Errorf("question %d: bad open answer payload %s", i, answer.Payload)
				}
			default:
				t.Errorf("question %d: unexpected event %q", i, answer.Event)
			}
			writeFrame(ctx, t, conn, protocol.NewAck(answer.AckID, protocol.AckAnswerSaved))
		}

		writeFrame(ctx, t, conn, protocol.NewMessage(protocol.EventSessionEnd, protocol.SessionEndPayload{ResultID: resultID}))
		<-ctx.Done()
	}
}

func candidateOf(q protocol.QuestionPayload, id int) bool {
	for _, a := range q.Answers {
		if a.ID == id {
			return true
		}
	}
	return false
}

func TestParticipantAnswersEveryQuestion(t *testing.T) {
	questions := []protocol.QuestionPayload{
		{
			Question: protocol.Question{ID: 1, Text: "Capitale de la France ?"},
			Type:     protocol.QuestionSingleAnswer,
			Answers:  []protocol.Answer{{ID: 10, Text: "Paris"}, {ID: 11, Text: "Lyon"}},
		},
		{
			Question: protocol.Question{ID: 2, Text: "Plus long fleuve ?"},
			Type:     protocol.QuestionOpenRestricted,
		},
	}
	srv := fakeCoordinator(t, scriptedSession(t, questions, "result-42"))

	ch, err := Dial(context.Background(), wsURL(srv), "token", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	p := NewParticipant(ch, "guest-0@guest.com", strategy.NewRandom(1, strategy.WithMaxThink(0)))

	var latencies []time.Duration
	p.OnLatency = func(d time.Duration) { latencies = append(latencies, d) }

	var acks []protocol.Ack
	p.OnAnswerAck = func(ack protocol.Ack) { acks = append(acks, ack) }

	var gotResult string
	p.OnSessionEnd = func(resultID string) { gotResult = resultID }

	if err := p.Run(context.Background(), "ABC123"); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(latencies) != len(questions) {
		t.Fatalf("recorded %d latencies, want %d", len(latencies), len(questions))
	}
	for i, d := range latencies {
		if d < 0 {
			t.Errorf("latency %d is negative: %v", i, d)
		}
	}
	for i, ack := range acks {
		if ack.Status != protocol.StatusAnswerSaved {
			t.Errorf("ack %d: got status %q", i, ack.Status)
		}
	}
	if gotResult != "result-42" {
		t.Errorf("expected result id result-42, got %q", gotResult)
	}
	if ch.State() != StateEnded {
		t.Errorf("expected ended channel, got %v", ch.State())
	}
}

func TestParticipantSessionEndThenImmediateClose(t *testing.T) {
	// the coordinator broadcasts session_end and tears the connection
	// down right away; the participant must still report a clean finish,
	// not a dead transport
	for i := 0; i < 50; i++ {
		srv := fakeCoordinator(t, func(ctx context.Context, conn *websocket.Conn) {
			join := readFrame(ctx, t, conn)
			writeFrame(ctx, t, conn, protocol.NewAck(join.AckID, protocol.AckJoin))
			writeFrame(ctx, t, conn, protocol.NewMessage(protocol.EventSessionEnd, protocol.SessionEndPayload{ResultID: "result-7"}))
			conn.Close(websocket.StatusNormalClosure, "")
		})

		ch, err := Dial(context.Background(), wsURL(srv), "token", nil)
		if err != nil {
			t.Fatalf("iteration %d dial: %v", i, err)
		}

		var gotResult string
		p := NewParticipant(ch, "guest-0@guest.com", strategy.NewRandom(1, strategy.WithMaxThink(0)))
		p.OnSessionEnd = func(resultID string) { gotResult = resultID }

		if err := p.Run(context.Background(), "ABC123"); err != nil {
			t.Fatalf("iteration %d: clean session end reported as %v", i, err)
		}
		if gotResult != "result-7" {
			t.Fatalf("iteration %d: result id %q", i, gotResult)
		}
		srv.Close()
	}
}

func TestParticipantJoinRejected(t *testing.T) {
	srv := fakeCoordinator(t, ackEverything(protocol.AckNotJoinable))

	ch, err := Dial(context.Background(), wsURL(srv), "token", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ch.Close()

	p := NewParticipant(ch, "guest-1@guest.com", strategy.NewRandom(1, strategy.WithMaxThink(0)))
	err = p.Run(context.Background(), "NOPE00")

	var je *JoinError
	if !errors.As(err, &je) {
		t.Fatalf("expected *JoinError, got %v", err)
	}
	if je.Ack.Status != protocol.StatusNotJoinable {
		t.Errorf("expected not_joinable, got %q", je.Ack.Status)
	}
}

func TestParticipantStopsOnContextCancel(t *testing.T) {
	srv := fakeCoordinator(t, func(ctx context.Context, conn *websocket.Conn) {
		join := readFrame(ctx, t, conn)
		writeFrame(ctx, t, conn, protocol.NewAck(join.AckID, protocol.AckJoin))
		<-ctx.Done()
	})

	ch, err := Dial(context.Background(), wsURL(srv), "token", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	p := NewParticipant(ch, "guest-2@guest.com", strategy.NewRandom(1, strategy.WithMaxThink(0)))
	go func() { done <- p.Run(ctx, "ABC123") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("participant did not stop on cancel")
	}
}

func TestControllerDrivesSession(t *testing.T) {
	srv := fakeCoordinator(t, func(ctx context.Context, conn *websocket.Conn) {
		join := readFrame(ctx, t, conn)
		writeFrame(ctx, t, conn, protocol.NewAck(join.AckID, protocol.AckOwnerJoin))

		// one question, then exhausted
		next := readFrame(ctx, t, conn)
		if next.Event != protocol.EventInitiateNext {
			t.Errorf("expected initiate_next_question, got %q", next.Event)
		}
		writeFrame(ctx, t, conn, protocol.NewAck(next.AckID, protocol.AckNextQuestion))

		next = readFrame(ctx, t, conn)
		writeFrame(ctx, t, conn, protocol.NewAck(next.AckID, protocol.AckNoMoreQuestions))

		end := readFrame(ctx, t, conn)
		if end.Event != protocol.EventEndSession {
			t.Errorf("expected end_session, got %q", end.Event)
		}
		writeFrame(ctx, t, conn, protocol.NewAck(end.AckID, protocol.AckSessionEnds))
		<-ctx.Done()
	})

	ch, err := Dial(context.Background(), wsURL(srv), "token", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	ctl := NewController(ch)
	defer ctl.Close()

	ctx := context.Background()
	ack, err := ctl.Join(ctx, "ABC123")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if ack.Status != protocol.StatusOwnerJoin {
		t.Fatalf("expected owner_join, got %q", ack.Status)
	}

	ack, err = ctl.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ack.Status != protocol.StatusNextQuestion {
		t.Fatalf("expected next_question, got %q", ack.Status)
	}

	ack, err = ctl.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ack.Status != protocol.StatusNoMoreQuestions {
		t.Fatalf("expected no_more_questions, got %q", ack.Status)
	}
	if ack.Message != "Fin du questionaire" {
		t.Errorf("unexpected message %q", ack.Message)
	}

	ack, err = ctl.End(ctx)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ack.Status != protocol.StatusSessionEnds {
		t.Fatalf("expected session_ends, got %q", ack.Status)
	}
}
