package strategy

import (
	"math/rand"
	"time"

	"quizbench/protocol"
)

const DefaultOpenText = "SPQR"

// Random emulates a participant under load: a uniformly random candidate
// for choice questions, a fixed placeholder for open ones, and a random
// think-time in [0, MaxThink) so a fleet of participants does not answer
// in one synchronized burst.
type Random struct {
	rng      *rand.Rand
	maxThink time.Duration
	openText string
}

type RandomOption func(*Random)

func WithMaxThink(d time.Duration) RandomOption {
	return func(r *Random) { r.maxThink = d }
}

func WithOpenText(text string) RandomOption {
	return func(r *Random) { r.openText = text }
}

func NewRandom(seed int64, opts ...RandomOption) *Random {
	r := &Random{
		rng:      rand.New(rand.NewSource(seed)),
		maxThink: time.Second,
		openText: DefaultOpenText,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Random) Answer(q *protocol.QuestionPayload) (Submission, error) {
	if q.IsOpen() {
		return Submission{Text: r.openText, Open: true}, nil
	}
	if len(q.Answers) == 0 {
		return Submission{}, ErrNoCandidates
	}
	pick := q.Answers[r.rng.Intn(len(q.Answers))]
	return Submission{AnswerIDs: []int{pick.ID}}, nil
}

func (r *Random) ThinkTime() time.Duration {
	if r.maxThink <= 0 {
		return 0
	}
	return time.Duration(r.rng.Int63n(int64(r.maxThink)))
}
