package strategy

import (
	"errors"
	"time"

	"quizbench/protocol"
)

var ErrNoCandidates = errors.New("choice question has no candidate answers")

// Submission is the payload a strategy produced for one question: either a
// set of candidate ids, or free text for open questions.
type Submission struct {
	AnswerIDs []int
	Text      string
	Open      bool
}

// Strategy decides what a participant answers, and how long it pretends to
// think first. One instance per participant; implementations need not be
// safe for concurrent use.
type Strategy interface {
	Answer(q *protocol.QuestionPayload) (Submission, error)
	ThinkTime() time.Duration
}
