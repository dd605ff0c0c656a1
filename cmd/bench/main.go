package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"quizbench/bench"

	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()

	baseURL := flag.String("url", envOr("QUIZ_URL", "http://localhost:8080"), "coordinator base URL")
	joinCode := flag.String("code", "", "session join code (prompted when empty)")
	count := flag.Int("n", 300, "number of synthetic participants")
	stagger := flag.Duration("stagger", 250*time.Millisecond, "delay between connection attempts")
	maxThink := flag.Duration("think", time.Second, "upper bound of the random think-time")
	seed := flag.Int64("seed", time.Now().UnixNano(), "base seed for answer strategies")
	ackTimeout := flag.Duration("ack-timeout", 0, "per-request ack timeout (0 = wait forever)")
	flag.Parse()

	code := strings.TrimSpace(*joinCode)
	if code == "" {
		fmt.Print("Code pour rejoindre la session : ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			log.Fatalf("read join code: %v", err)
		}
		code = strings.TrimSpace(line)
	}
	if code == "" {
		log.Fatal("a join code is required")
	}

	runner := bench.New(bench.Options{
		BaseURL:    *baseURL,
		JoinCode:   code,
		Count:      *count,
		Stagger:    *stagger,
		MaxThink:   *maxThink,
		Seed:       *seed,
		AckTimeout: *ackTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGINT prints the running average once; a second one aborts the run
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		if mean, ok := runner.Recorder().Mean(); ok {
			log.Printf("moyenne des latences : %.4fs (%d réponses)", mean, runner.Recorder().Count())
		} else {
			log.Printf("aucune latence enregistrée pour l'instant")
		}
		<-sig
		cancel()
	}()

	log.Printf("starting %d participants against %s (stagger %v)", *count, *baseURL, *stagger)
	result := runner.Run(ctx)
	log.Printf("done: %s", result)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
