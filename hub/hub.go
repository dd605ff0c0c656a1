package hub

import (
	"context"
	"log"
	"strings"
	"sync"

	"quizbench/protocol"
	"quizbench/store"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Hub owns every live session on this coordinator node. Presence (who has
// joined which code, who owns it) lives in the store so it survives this
// process when backed by Redis; question progression is in-memory state.
type Hub struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	store           store.Store
	maxParticipants int

	ctx    context.Context
	cancel context.CancelFunc
}

func New(st store.Store, maxParticipants int) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:        make(map[string]*Session),
		store:           st,
		maxParticipants: maxParticipants,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// CreateSession opens a session for a survey and returns its join code.
func (h *Hub) CreateSession(owner string, survey Survey) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	code := generateJoinCode()
	for _, taken := h.sessions[code]; taken; _, taken = h.sessions[code] {
		code = generateJoinCode()
	}
	sess := newSession(code, owner, survey)
	h.sessions[code] = sess
	return sess
}

func (h *Hub) GetSession(joinCode string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sess, ok := h.sessions[joinCode]
	return sess, ok
}

func (h *Hub) removeSession(joinCode string) {
	h.mu.Lock()
	delete(h.sessions, joinCode)
	h.mu.Unlock()
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HandleMessage routes one inbound frame from c. Requests carrying an ack
// id always get exactly one ack back, whatever the outcome.
func (h *Hub) HandleMessage(c *Client, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		return
	}

	switch msg.Event {
	case protocol.EventSessionConnect:
		h.handleSessionConnect(c, msg)
	case protocol.EventInitiateNext:
		h.handleInitiateNext(c, msg)
	case protocol.EventUserAnswer:
		h.handleUserAnswer(c, msg)
	case protocol.EventUserOpenAnswer:
		h.handleUserOpenAnswer(c, msg)
	case protocol.EventEndSession:
		h.handleEndSession(c, msg)
	default:
		log.Printf("unknown event %q from %s", msg.Event, c.Email)
	}

	protocol.ReleaseMessage(msg)
}

func (h *Hub) handleSessionConnect(c *Client, msg *protocol.Message) {
	var payload protocol.JoinPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.JoinCode == "" {
		c.SendAck(msg.AckID, protocol.AckNotJoinable)
		return
	}

	sess, ok := h.GetSession(payload.JoinCode)
	if !ok || !sess.Joinable() {
		c.SendAck(msg.AckID, protocol.AckNotJoinable)
		return
	}

	if c.Email == sess.Owner {
		sess.addClient(c)
		c.SetSession(sess.JoinCode, true)
		if err := h.store.SetOwner(h.ctx, sess.JoinCode, c.Email); err != nil {
			log.Printf("store set owner [%s]: %v", sess.JoinCode, err)
		}
		c.SendAck(msg.AckID, protocol.AckOwnerJoin)
		return
	}

	joined, err := h.store.IsJoined(h.ctx, sess.JoinCode, c.Email)
	if err != nil {
		log.Printf("store is joined [%s]: %v", sess.JoinCode, err)
	}
	if joined {
		c.SendAck(msg.AckID, protocol.AckAlreadyJoined)
		return
	}
	if sess.count() >= h.maxParticipants {
		c.SendAck(msg.AckID, protocol.AckJoinNotAllowed)
		return
	}

	if err := h.store.Join(h.ctx, sess.JoinCode, c.Email); err != nil {
		log.Printf("store join [%s]: %v", sess.JoinCode, err)
	}
	sess.addClient(c)
	c.SetSession(sess.JoinCode, false)

	sess.broadcast(protocol.NewMessage(protocol.EventUserJoin, c.Email), "")
	c.SendAck(msg.AckID, protocol.AckJoin)
}

func (h *Hub) handleInitiateNext(c *Client, msg *protocol.Message) {
	sess := h.sessionOf(c)
	if sess == nil || !c.IsOwner() {
		c.SendAck(msg.AckID, protocol.AckRefused)
		return
	}

	q, ok := sess.advance()
	if !ok {
		c.SendAck(msg.AckID, protocol.AckNoMoreQuestions)
		return
	}

	sess.broadcast(protocol.NewMessage(protocol.EventNextQuestion, q.payload()), "")
	c.SendAck(msg.AckID, protocol.AckNextQuestion)
}

func (h *Hub) handleUserAnswer(c *Client, msg *protocol.Message) {
	sess := h.sessionOf(c)
	if sess == nil {
		c.SendAck(msg.AckID, protocol.AckAnswerNotFound)
		return
	}

	var answerIDs []int
	if err := json.Unmarshal(msg.Payload, &answerIDs); err != nil || len(answerIDs) == 0 {
		c.SendAck(msg.AckID, protocol.AckAnswerNotFound)
		return
	}

	q := sess.currentQuestion()
	if q == nil || q.IsOpen() {
		c.SendAck(msg.AckID, protocol.AckAnswerNotFound)
		return
	}
	for _, id := range answerIDs {
		if !candidateExists(q, id) {
			c.SendAck(msg.AckID, protocol.AckAnswerNotFound)
			return
		}
	}

	sess.broadcast(protocol.NewMessage(protocol.EventUserAnswered, c.Email), "")
	c.SendAck(msg.AckID, protocol.AckAnswerSaved)
}

func (h *Hub) handleUserOpenAnswer(c *Client, msg *protocol.Message) {
	sess := h.sessionOf(c)
	if sess == nil {
		c.SendAck(msg.AckID, protocol.AckAnswerNotFound)
		return
	}

	var payload protocol.OpenAnswerPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.SendAck(msg.AckID, protocol.AckAnswerNotFound)
		return
	}

	q := sess.questionByID(payload.QuestionID)
	if q == nil {
		c.SendAck(msg.AckID, protocol.AckAnswerNotFound)
		return
	}
	if !q.IsOpen() {
		c.SendAck(msg.AckID, protocol.AckNotOpenAnswer)
		return
	}
	if q.Type == protocol.QuestionOpenRestricted && len(strings.Fields(payload.Text)) > 1 {
		c.SendAck(msg.AckID, protocol.AckOpenAnswerTooLong)
		return
	}

	sess.broadcast(protocol.NewMessage(protocol.EventUserAnswered, c.Email), "")
	if owner := sess.ownerClient(); owner != nil {
		owner.SendMessage(protocol.NewMessage(protocol.EventUserOpenAnswered, payload.Text))
	}
	c.SendAck(msg.AckID, protocol.AckAnswerSaved)
}

func (h *Hub) handleEndSession(c *Client, msg *protocol.Message) {
	sess := h.sessionOf(c)
	if sess == nil || !c.IsOwner() {
		c.SendAck(msg.AckID, protocol.AckRefused)
		return
	}

	sess.end()
	resultID := uuid.NewString()
	sess.broadcast(protocol.NewMessage(protocol.EventSessionEnd, protocol.SessionEndPayload{
		ResultID: resultID,
	}), c.Email)

	c.SendAck(msg.AckID, protocol.AckSessionEnds)

	sess.closeParticipants()
	if err := h.store.Clear(h.ctx, sess.JoinCode); err != nil {
		log.Printf("store clear [%s]: %v", sess.JoinCode, err)
	}
	h.removeSession(sess.JoinCode)
}

// Disconnect detaches a client that dropped off, releasing its presence
// entry and telling the room.
func (h *Hub) Disconnect(c *Client) {
	code := c.JoinCode()
	if code == "" {
		c.Close()
		return
	}

	if sess, ok := h.GetSession(code); ok {
		sess.removeClient(c.Email)
		if !c.IsOwner() {
			if err := h.store.Leave(h.ctx, code, c.Email); err != nil {
				log.Printf("store leave [%s]: %v", code, err)
			}
			sess.broadcast(protocol.NewMessage(protocol.EventUserLeave, c.Email), "")
		}
	}
	c.Close()
}

func (h *Hub) sessionOf(c *Client) *Session {
	code := c.JoinCode()
	if code == "" {
		return nil
	}
	sess, ok := h.GetSession(code)
	if !ok {
		return nil
	}
	return sess
}

func candidateExists(q *QuestionSpec, id int) bool {
	for _, a := range q.Answers {
		if a.ID == id {
			return true
		}
	}
	return false
}

func (h *Hub) Shutdown() {
	h.cancel()

	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		sessions = append(sessions, sess)
	}
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.RLock()
		for _, c := range sess.clients {
			c.Close()
		}
		sess.mu.RUnlock()
	}

	if err := h.store.Close(); err != nil {
		log.Printf("store close error: %v", err)
	}
}
