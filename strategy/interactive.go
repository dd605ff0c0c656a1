package strategy

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"quizbench/protocol"
)

// Interactive prompts a human for the answer. No think-time beyond however
// long they take to type.
type Interactive struct {
	in  *bufio.Reader
	out io.Writer
}

func NewInteractive(in io.Reader, out io.Writer) *Interactive {
	return &Interactive{in: bufio.NewReader(in), out: out}
}

func (i *Interactive) Answer(q *protocol.QuestionPayload) (Submission, error) {
	fmt.Fprintf(i.out, "Question : %s\n", q.Question.Text)

	if q.IsOpen() {
		text, err := i.prompt("Votre réponse : ")
		if err != nil {
			return Submission{}, err
		}
		return Submission{Text: text, Open: true}, nil
	}

	for _, a := range q.Answers {
		fmt.Fprintf(i.out, "  %d. %s\n", a.ID, a.Text)
	}
	for {
		line, err := i.prompt("Numéro de la réponse : ")
		if err != nil {
			return Submission{}, err
		}
		id, err := strconv.Atoi(line)
		if err != nil {
			fmt.Fprintln(i.out, "Numéro invalide")
			continue
		}
		return Submission{AnswerIDs: []int{id}}, nil
	}
}

func (i *Interactive) ThinkTime() time.Duration {
	return 0
}

func (i *Interactive) prompt(text string) (string, error) {
	fmt.Fprint(i.out, text)
	line, err := i.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
