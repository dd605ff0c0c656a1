package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"quizbench/auth"
	"quizbench/protocol"
	"quizbench/session"

	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
)

func main() {
	godotenv.Load()

	baseURL := flag.String("url", envOr("QUIZ_URL", "http://localhost:8080"), "coordinator base URL")
	email := flag.String("email", os.Getenv("OWNER_EMAIL"), "controller account email")
	password := flag.String("password", os.Getenv("PASSWORD"), "controller account password")
	surveyID := flag.Int("survey", 1, "survey to run")
	flag.Parse()

	if *email == "" || *password == "" {
		log.Fatal("email and password are required (flags or OWNER_EMAIL/PASSWORD env)")
	}

	ctx := context.Background()
	stdin := bufio.NewReader(os.Stdin)

	// the owner account must already exist; no guest register fallback
	authc := auth.NewClient(*baseURL)
	fmt.Printf("Authentification de %s...\n", *email)
	token, err := authc.Login(ctx, *email, *password)
	if err != nil {
		log.Fatalf("authentication: %v", err)
	}
	fmt.Println("OK")

	fmt.Println("Création d'une nouvelle session...")
	joinCode, err := authc.CreateSession(ctx, token, *surveyID, true)
	if err != nil {
		log.Fatalf("session creation: %v", err)
	}
	fmt.Println("OK : " + joinCode)

	wsURL := "ws" + strings.TrimPrefix(*baseURL, "http") + "/ws"
	ch, err := session.Dial(ctx, wsURL, token, nil)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	fmt.Println("Connecté")

	ch.On(protocol.EventUserJoin, func(payload jsoniter.RawMessage) {
		fmt.Println(asString(payload) + " a rejoint")
	})
	ch.On(protocol.EventUserLeave, func(payload jsoniter.RawMessage) {
		fmt.Println(asString(payload) + " a quitté")
	})
	ch.On(protocol.EventUserAnswered, func(payload jsoniter.RawMessage) {
		fmt.Println(asString(payload) + " a répondu")
	})
	ch.On(protocol.EventUserOpenAnswered, func(payload jsoniter.RawMessage) {
		fmt.Println("Réponse ouverte : " + asString(payload))
	})
	ch.On(protocol.EventNextQuestion, func(payload jsoniter.RawMessage) {
		var q protocol.QuestionPayload
		if err := jsoniter.Unmarshal(payload, &q); err == nil {
			fmt.Println("Question : " + q.Question.Text)
		}
	})

	ctl := session.NewController(ch)
	ack, err := ctl.Join(ctx, joinCode)
	if err != nil {
		log.Fatalf("join: %v", err)
	}
	fmt.Printf("%s : %s\n", ack.Status, ack.Message)
	if ack.Status != protocol.StatusOwnerJoin {
		log.Fatal("not the session owner, aborting")
	}

	waitUntilInput(stdin, "start", "Ecrire 'start' pour démarrer : ")

	for {
		ack, err := ctl.Next(ctx)
		if err != nil {
			log.Fatalf("next question: %v", err)
		}
		fmt.Printf("%s : %s\n", ack.Status, ack.Message)

		if ack.Status == protocol.StatusNoMoreQuestions {
			break
		}
		waitUntilInput(stdin, "next", "Ecrire 'next' pour passer à la prochaine question : ")
	}

	waitUntilInput(stdin, "end", "Ecrire 'end' pour terminer la session : ")
	ack, err = ctl.End(ctx)
	if err != nil {
		log.Fatalf("end session: %v", err)
	}
	fmt.Printf("%s : %s\n", ack.Status, ack.Message)
	ctl.Close()
}

func waitUntilInput(r *bufio.Reader, match, prompt string) {
	for {
		fmt.Print(prompt)
		line, err := r.ReadString('\n')
		if err != nil {
			log.Fatalf("stdin: %v", err)
		}
		if strings.TrimSpace(line) == match {
			return
		}
	}
}

func asString(payload jsoniter.RawMessage) string {
	var s string
	if err := jsoniter.Unmarshal(payload, &s); err != nil {
		return string(payload)
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
