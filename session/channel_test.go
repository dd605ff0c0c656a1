package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"quizbench/protocol"

	"github.com/coder/websocket"
	jsoniter "github.com/json-iterator/go"
)

// fakeCoordinator runs script against each accepted connection. The script
// owns the connection for the duration of the test.
func fakeCoordinator(t *testing.T, script func(ctx context.Context, conn *websocket.Conn)) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		script(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// readFrame decodes the next envelope off the server side.
func readFrame(ctx context.Context, t *testing.T, conn *websocket.Conn) *protocol.Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("server decode: %v", err)
	}
	return msg
}

func writeFrame(ctx context.Context, t *testing.T, conn *websocket.Conn, msg *protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(msg)
	if err != nil {
		t.Fatalf("server encode: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

// ackEverything answers every carried ack id with ack until the connection
// drops.
func ackEverything(ack protocol.Ack) func(ctx context.Context, conn *websocket.Conn) {
	return func(ctx context.Context, conn *websocket.Conn) {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			msg, err := protocol.Decode(data)
			if err != nil {
				continue
			}
			if msg.AckID != 0 {
				out, _ := protocol.Encode(protocol.NewAck(msg.AckID, ack))
				if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
					return
				}
			}
			protocol.ReleaseMessage(msg)
		}
	}
}

func TestDialRejectsBadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), wsURL(srv), "bad-token", nil)
	if !errors.Is(err, ErrAuthenticationRejected) {
		t.Fatalf("expected ErrAuthenticationRejected, got %v", err)
	}
}

func TestJoinSuccess(t *testing.T) {
	srv := fakeCoordinator(t, func(ctx context.Context, conn *websocket.Conn) {
		msg := readFrame(ctx, t, conn)
		if msg.Event != protocol.EventSessionConnect {
			t.Errorf("expected session_connect, got %q", msg.Event)
		}
		var join protocol.JoinPayload
		if err := json.Unmarshal(msg.Payload, &join); err != nil {
			t.Errorf("join payload: %v", err)
		}
		if join.JoinCode != "ABC123" {
			t.Errorf("expected join code ABC123, got %q", join.JoinCode)
		}
		writeFrame(ctx, t, conn, protocol.NewAck(msg.AckID, protocol.AckJoin))
		<-ctx.Done()
	})

	ch, err := Dial(context.Background(), wsURL(srv), "token", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ch.Close()

	if ch.State() != StateConnected {
		t.Fatalf("expected connected after dial, got %v", ch.State())
	}

	ack, err := ch.Join(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if ack.Status != protocol.StatusJoin {
		t.Errorf("expected join status, got %q", ack.Status)
	}
	if ch.State() != StateJoined {
		t.Errorf("expected joined state, got %v", ch.State())
	}
}

func TestJoinRejectedStaysConnected(t *testing.T) {
	srv := fakeCoordinator(t, ackEverything(protocol.AckNotJoinable))

	ch, err := Dial(context.Background(), wsURL(srv), "token", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ch.Close()

	ack, err := ch.Join(context.Background(), "GONE42")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if ack.OK() {
		t.Fatalf("expected rejection, got %+v", ack)
	}
	if ch.State() != StateConnected {
		t.Errorf("rejected join must leave the channel connected, got %v", ch.State())
	}
}

func TestHandlersRunInOrder(t *testing.T) {
	srv := fakeCoordinator(t, func(ctx context.Context, conn *websocket.Conn) {
		for i := 0; i < 3; i++ {
			writeFrame(ctx, t, conn, protocol.NewMessage(protocol.EventUserJoin, i))
		}
		<-ctx.Done()
	})

	ch, err := Dial(context.Background(), wsURL(srv), "token", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ch.Close()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	ch.On(protocol.EventUserJoin, func(payload jsoniter.RawMessage) {
		var n int
		json.Unmarshal(payload, &n)
		mu.Lock()
		got = append(got, n)
		if len(got) == 3 {
			close(done)
		}
		mu.Unlock()
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, n := range got {
		if n != i {
			t.Fatalf("events out of order: %v", got)
		}
	}
}

func TestAckResolvesExactlyOnce(t *testing.T) {
	srv := fakeCoordinator(t, func(ctx context.Context, conn *websocket.Conn) {
		msg := readFrame(ctx, t, conn)
		// answer the same request twice; the second frame must be ignored
		writeFrame(ctx, t, conn, protocol.NewAck(msg.AckID, protocol.AckAnswerSaved))
		writeFrame(ctx, t, conn, protocol.NewAck(msg.AckID, protocol.AckRefused))
		<-ctx.Done()
	})

	ch, err := Dial(context.Background(), wsURL(srv), "token", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ch.Close()

	var mu sync.Mutex
	calls := 0
	if err := ch.Emit(protocol.EventUserAnswer, []int{1}, func(ack protocol.Ack, err error) {
		mu.Lock()
		calls++
		mu.Unlock()
	}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("ack callback ran %d times, want 1", calls)
	}
}

func TestAckTimeout(t *testing.T) {
	// coordinator that never answers
	srv := fakeCoordinator(t, func(ctx context.Context, conn *websocket.Conn) {
		<-ctx.Done()
	})

	ch, err := Dial(context.Background(), wsURL(srv), "token", &Options{AckTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ch.Close()

	_, err = ch.EmitWait(context.Background(), protocol.EventUserAnswer, []int{1})
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("expected ErrAckTimeout, got %v", err)
	}
}

func TestClosePendingAcksFail(t *testing.T) {
	srv := fakeCoordinator(t, func(ctx context.Context, conn *websocket.Conn) {
		<-ctx.Done()
	})

	ch, err := Dial(context.Background(), wsURL(srv), "token", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	errc := make(chan error, 1)
	if err := ch.Emit(protocol.EventUserAnswer, []int{1}, func(ack protocol.Ack, err error) {
		errc <- err
	}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Logf("close: %v", err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, ErrChannelClosed) {
			t.Fatalf("expected ErrChannelClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending ack never resolved")
	}

	if ch.State() != StateEnded {
		t.Errorf("expected ended state, got %v", ch.State())
	}
	select {
	case <-ch.Closed():
	default:
		t.Error("Closed channel not signalled")
	}
}

func TestEmitAfterCloseFails(t *testing.T) {
	srv := fakeCoordinator(t, func(ctx context.Context, conn *websocket.Conn) {
		<-ctx.Done()
	})

	ch, err := Dial(context.Background(), wsURL(srv), "token", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	ch.Close()

	if err := ch.Emit(protocol.EventUserJoin, nil, nil); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
}
