package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"quizbench/config"
	"quizbench/hub"
	"quizbench/protocol"
	"quizbench/server"
	"quizbench/store"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	configPath := flag.String("config", "", "path to config file")
	surveysPath := flag.String("surveys", "", "path to surveys JSON file (default: built-in demo survey)")
	flag.Parse()

	var cfg *config.Config
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(*configPath)
		if err != nil {
			log.Printf("config file error: %v, using defaults", err)
			cfg = config.LoadFromEnv()
		}
	} else {
		cfg = config.LoadFromEnv()
	}

	surveys, err := loadSurveys(*surveysPath)
	if err != nil {
		log.Fatalf("surveys file error: %v", err)
	}

	h := hub.New(createStore(cfg), cfg.MaxParticipants)
	srv := server.New(cfg, h, surveys)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	log.Printf("coordinator running [store=%s, max_participants=%d, dev_routes=%v]",
		cfg.StoreType, cfg.MaxParticipants, cfg.DevRoutes)

	<-quit
	log.Println("shutting down...")
	srv.Shutdown()
	log.Println("coordinator stopped")
}

func createStore(cfg *config.Config) store.Store {
	switch cfg.StoreType {
	case "redis":
		s, err := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		log.Println("using redis store")
		return s
	default:
		log.Println("using local store")
		return store.NewLocal()
	}
}

func loadSurveys(path string) (map[int]hub.Survey, error) {
	if path == "" {
		return map[int]hub.Survey{1: demoSurvey()}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []hub.Survey
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	surveys := make(map[int]hub.Survey, len(list))
	for _, s := range list {
		surveys[s.ID] = s
	}
	return surveys, nil
}

func demoSurvey() hub.Survey {
	return hub.Survey{
		ID: 1,
		Questions: []hub.QuestionSpec{
			{
				Question: protocol.Question{ID: 1, Text: "Quelle est la capitale de la France ?"},
				Type:     protocol.QuestionSingleAnswer,
				Answers: []protocol.Answer{
					{ID: 1, Text: "Paris"},
					{ID: 2, Text: "Lyon"},
					{ID: 3, Text: "Marseille"},
				},
			},
			{
				Question: protocol.Question{ID: 2, Text: "Quels langages sont compilés ?"},
				Type:     protocol.QuestionMultipleAnswers,
				Answers: []protocol.Answer{
					{ID: 4, Text: "Go"},
					{ID: 5, Text: "Python"},
					{ID: 6, Text: "Rust"},
				},
			},
			{
				Question: protocol.Question{ID: 3, Text: "Citez un fleuve français"},
				Type:     protocol.QuestionOpenRestricted,
			},
		},
	}
}
