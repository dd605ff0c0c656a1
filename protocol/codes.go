package protocol

// Ack status codes, with the coordinator's user-facing messages.

// Returned by session_connect.
const (
	StatusOwnerJoin      = "owner_join"
	StatusAlreadyJoined  = "already_joined"
	StatusJoin           = "join"
	StatusJoinNotAllowed = "join_not_allowed"
	StatusNotJoinable    = "not_joinable"
)

// Returned by initiate_next_question and end_session.
const (
	StatusRefused         = "refused"
	StatusNoMoreQuestions = "no_more_questions"
	StatusNextQuestion    = "next_question"
	StatusSessionEnds     = "session_ends"
)

// Returned by user_answer and user_open_answer.
const (
	StatusAnswerNotFound    = "answer_does_not_exist"
	StatusOpenAnswerTooLong = "open_answer_too_long"
	StatusNotOpenAnswer     = "not_open_answer"
	StatusAnswerSaved       = "answer_saved"
)

var (
	AckOwnerJoin      = Ack{StatusOwnerJoin, "Bienvenu, propriétaire de la session"}
	AckAlreadyJoined  = Ack{StatusAlreadyJoined, "Deja connecté a la session"}
	AckJoin           = Ack{StatusJoin, "Bienvenu dans la session, utilisateur"}
	AckJoinNotAllowed = Ack{StatusJoinNotAllowed, "Pas de droit de rejoindre la session"}
	AckNotJoinable    = Ack{StatusNotJoinable, "La session n'existe pas, a déjà commencé ou est finie"}

	AckRefused         = Ack{StatusRefused, "Vous n'êtes pas le propriétaire de la session"}
	AckNoMoreQuestions = Ack{StatusNoMoreQuestions, "Fin du questionaire"}
	AckNextQuestion    = Ack{StatusNextQuestion, "Passage à la question suivante"}
	AckSessionEnds     = Ack{StatusSessionEnds, "Fin de session"}

	// Sent for any throttled request, so the sender's wait still resolves.
	AckRateLimited = Ack{StatusRefused, "Trop de requêtes, réessayez plus tard"}

	AckAnswerNotFound    = Ack{StatusAnswerNotFound, "Une réponse choisi n'existe pas"}
	AckOpenAnswerTooLong = Ack{StatusOpenAnswerTooLong, "Seule une réponse d'un seul mot est autorisé pour cette question"}
	AckNotOpenAnswer     = Ack{StatusNotOpenAnswer, "La question n'accepte pas de réponses ouvertes"}
	AckAnswerSaved       = Ack{StatusAnswerSaved, "Réponse enregistrée"}
)

// OK reports whether the ack resolves its request successfully.
func (a Ack) OK() bool {
	switch a.Status {
	case StatusOwnerJoin, StatusJoin, StatusNextQuestion, StatusAnswerSaved, StatusSessionEnds:
		return true
	}
	return false
}
