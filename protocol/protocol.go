package protocol

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var messagePool = sync.Pool{
	New: func() interface{} {
		return &Message{}
	},
}

func AcquireMessage() *Message {
	msg := messagePool.Get().(*Message)
	msg.Event = ""
	msg.AckID = 0
	msg.Payload = nil
	return msg
}

func ReleaseMessage(msg *Message) {
	if msg == nil {
		return
	}
	msg.Event = ""
	msg.AckID = 0
	msg.Payload = nil
	messagePool.Put(msg)
}

// Events pushed by the coordinator.
const (
	EventNextQuestion     = "next_question"
	EventSessionEnd       = "session_end"
	EventUserJoin         = "user_join"
	EventUserLeave        = "user_leave"
	EventUserAnswered     = "user_answered"
	EventUserOpenAnswered = "user_open_answered"
	EventAck              = "ack"
)

// Events sent by participants. All of them carry an ack id and resolve
// to exactly one Ack on the same channel.
const (
	EventSessionConnect = "session_connect"
	EventUserAnswer     = "user_answer"
	EventUserOpenAnswer = "user_open_answer"
	EventInitiateNext   = "initiate_next_question"
	EventEndSession     = "end_session"
)

// Question types, as stored by the survey backend.
const (
	QuestionSingleAnswer    = "single_answer"
	QuestionMultipleAnswers = "multiple_answers"
	QuestionOpen            = "open"
	QuestionOpenRestricted  = "open_restricted"
)

// Message is the wire envelope. A non-zero AckID on an outbound event asks
// the coordinator for an Ack frame carrying the same id; on an EventAck
// frame it identifies the request being answered.
type Message struct {
	Event   string              `json:"event"`
	AckID   uint64              `json:"ack,omitempty"`
	Payload jsoniter.RawMessage `json:"payload,omitempty"`
}

// Ack is the (status, message) pair resolving a participant request.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Question struct {
	ID    int    `json:"id"`
	Text  string `json:"text"`
	Media string `json:"media,omitempty"`
}

type Answer struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// QuestionPayload is the body of a next_question event. Answers is null for
// open questions.
type QuestionPayload struct {
	Question Question `json:"question"`
	Type     string   `json:"type"`
	Answers  []Answer `json:"answers"`
}

func (q *QuestionPayload) IsOpen() bool {
	return q.Type == QuestionOpen || q.Type == QuestionOpenRestricted
}

type JoinPayload struct {
	JoinCode string `json:"join_code"`
}

type OpenAnswerPayload struct {
	QuestionID int    `json:"question_id"`
	Text       string `json:"text"`
}

type SessionEndPayload struct {
	ResultID string `json:"result_id"`
}

func Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

func Decode(data []byte) (*Message, error) {
	msg := AcquireMessage()
	err := json.Unmarshal(data, msg)
	return msg, err
}

// NewMessage marshals payload into an envelope. A nil payload leaves the
// envelope body empty.
func NewMessage(event string, payload interface{}) *Message {
	msg := &Message{Event: event}
	if payload != nil {
		data, _ := json.Marshal(payload)
		msg.Payload = data
	}
	return msg
}

// NewAck builds the ack frame answering request id.
func NewAck(id uint64, ack Ack) *Message {
	data, _ := json.Marshal(ack)
	return &Message{Event: EventAck, AckID: id, Payload: data}
}
