package hub

import (
	"crypto/rand"
	"sync"

	"quizbench/protocol"
)

// Survey is the question bank a session plays through, injected by whoever
// creates the session. Persistence and authoring live in the survey
// backend, not here.
type Survey struct {
	ID        int
	Questions []QuestionSpec
}

// QuestionSpec is a question with everything the coordinator knows about
// it; what participants see is cut down in payload().
type QuestionSpec struct {
	Question protocol.Question
	Type     string
	Answers  []protocol.Answer
}

func (q *QuestionSpec) IsOpen() bool {
	return q.Type == protocol.QuestionOpen || q.Type == protocol.QuestionOpenRestricted
}

func (q *QuestionSpec) payload() protocol.QuestionPayload {
	p := protocol.QuestionPayload{
		Question: q.Question,
		Type:     q.Type,
	}
	if !q.IsOpen() {
		p.Answers = q.Answers
	}
	return p
}

// Session is one live run of a survey. The owner drives progression; only
// one question is current at a time.
type Session struct {
	JoinCode string
	Owner    string

	survey  Survey
	current int
	started bool
	ended   bool
	clients map[string]*Client
	mu      sync.RWMutex
}

func newSession(joinCode, owner string, survey Survey) *Session {
	return &Session{
		JoinCode: joinCode,
		Owner:    owner,
		survey:   survey,
		current:  -1,
		clients:  make(map[string]*Client),
	}
}

// Joinable reports whether new participants may still enter: the session
// exists, has not started and has not ended.
func (s *Session) Joinable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.started && !s.ended
}

func (s *Session) addClient(c *Client) {
	s.mu.Lock()
	s.clients[c.Email] = c
	s.mu.Unlock()
}

func (s *Session) removeClient(email string) {
	s.mu.Lock()
	delete(s.clients, email)
	s.mu.Unlock()
}

func (s *Session) ownerClient() *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[s.Owner]
}

func (s *Session) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// advance marks the session started and moves to the next question.
// Returns false once the sequence is exhausted.
func (s *Session) advance() (*QuestionSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	if s.current+1 >= len(s.survey.Questions) {
		return nil, false
	}
	s.current++
	return &s.survey.Questions[s.current], true
}

// currentQuestion returns the question being played, or nil before the
// first advance.
func (s *Session) currentQuestion() *QuestionSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current < 0 || s.current >= len(s.survey.Questions) {
		return nil
	}
	return &s.survey.Questions[s.current]
}

// questionByID looks a question up anywhere in the survey.
func (s *Session) questionByID(id int) *QuestionSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.survey.Questions {
		if s.survey.Questions[i].Question.ID == id {
			return &s.survey.Questions[i]
		}
	}
	return nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}

// broadcast pre-encodes once and fans out to every client in the session,
// optionally skipping one email.
func (s *Session) broadcast(msg *protocol.Message, skip string) {
	data, err := protocol.Encode(msg)
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for email, c := range s.clients {
		if email == skip {
			continue
		}
		c.SendRaw(data)
	}
}

// closeParticipants closes every non-owner client, as the coordinator does
// when the owner ends the session.
func (s *Session) closeParticipants() {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for email, c := range s.clients {
		if email != s.Owner {
			clients = append(clients, c)
		}
	}
	s.mu.RUnlock()
	for _, c := range clients {
		c.Close()
	}
}

const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateJoinCode() string {
	b := make([]byte, 6)
	rand.Read(b)
	for i := range b {
		b[i] = joinCodeAlphabet[int(b[i])%len(joinCodeAlphabet)]
	}
	return string(b)
}
