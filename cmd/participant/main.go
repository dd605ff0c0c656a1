package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"quizbench/auth"
	"quizbench/protocol"
	"quizbench/session"
	"quizbench/strategy"

	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()

	baseURL := flag.String("url", envOr("QUIZ_URL", "http://localhost:8080"), "coordinator base URL")
	email := flag.String("email", os.Getenv("GUEST_EMAIL"), "participant account email")
	password := flag.String("password", os.Getenv("PASSWORD"), "participant account password")
	joinCode := flag.String("code", "", "join code (prompted when empty)")
	flag.Parse()

	if *email == "" || *password == "" {
		log.Fatal("email and password are required (flags or GUEST_EMAIL/PASSWORD env)")
	}

	ctx := context.Background()
	stdin := bufio.NewReader(os.Stdin)

	code := strings.TrimSpace(*joinCode)
	for code == "" {
		fmt.Print("Code pour rejoindre la session : ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			log.Fatalf("stdin: %v", err)
		}
		code = strings.TrimSpace(line)
	}

	authc := auth.NewClient(*baseURL)
	fmt.Printf("Authentification de %s...\n", *email)
	token, err := authc.GuestToken(ctx, *email, *password)
	if err != nil {
		log.Fatalf("authentication: %v", err)
	}
	fmt.Println("OK")

	wsURL := "ws" + strings.TrimPrefix(*baseURL, "http") + "/ws"
	ch, err := session.Dial(ctx, wsURL, token, nil)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	fmt.Println("Connecté")

	p := session.NewParticipant(ch, *email, strategy.NewInteractive(stdin, os.Stdout))
	p.OnAnswerAck = func(ack protocol.Ack) {
		fmt.Printf("%s : %s\n", ack.Status, ack.Message)
	}
	p.OnSessionEnd = func(resultID string) {
		fmt.Println("Session terminée, résultats : " + resultID)
	}

	if err := p.Run(ctx, code); err != nil {
		var je *session.JoinError
		if errors.As(err, &je) {
			log.Fatalf("%s : %s", je.Ack.Status, je.Ack.Message)
		}
		log.Fatalf("session: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
