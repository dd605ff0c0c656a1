package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		d.Duration = time.Duration(int64(val)) * time.Millisecond
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(val)
		return err
	default:
		return nil
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

type Config struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	JWTSecret       string   `json:"jwt_secret"`
	TokenTTL        Duration `json:"token_ttl"`
	DevRoutes       bool     `json:"dev_routes"`
	StoreType       string   `json:"store_type"`
	RedisAddr       string   `json:"redis_addr"`
	RedisPassword   string   `json:"redis_password"`
	RedisDB         int      `json:"redis_db"`
	WriteTimeout    Duration `json:"write_timeout"`
	ReadTimeout     Duration `json:"read_timeout"`
	PingInterval    Duration `json:"ping_interval"`
	MaxMessageSize  int64    `json:"max_message_size"`
	SendBufferSize  int      `json:"send_buffer_size"`
	RateLimitPerSec int      `json:"rate_limit_per_sec"`
	RateLimitBurst  int      `json:"rate_limit_burst"`
	MaxParticipants int      `json:"max_participants"`
	TLSCert         string   `json:"tls_cert"`
	TLSKey          string   `json:"tls_key"`
}

func Default() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8080,
		JWTSecret:       "dev-secret-change-me",
		TokenTTL:        Duration{15 * time.Minute},
		DevRoutes:       false,
		StoreType:       "local",
		RedisAddr:       "localhost:6379",
		RedisPassword:   "",
		RedisDB:         0,
		WriteTimeout:    Duration{10 * time.Second},
		ReadTimeout:     Duration{60 * time.Second},
		PingInterval:    Duration{30 * time.Second},
		MaxMessageSize:  65536,
		SendBufferSize:  32,
		RateLimitPerSec: 100,
		RateLimitBurst:  200,
		MaxParticipants: 1000,
		TLSCert:         "",
		TLSKey:          "",
	}
}

func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = json.Unmarshal(data, cfg)
	return cfg, err
}

func LoadFromEnv() *Config {
	// .env is optional, real env vars win
	godotenv.Load()

	cfg := Default()
	if v := os.Getenv("QUIZ_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("QUIZ_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("QUIZ_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("QUIZ_TOKEN_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			cfg.TokenTTL = Duration{ttl}
		}
	}
	if v := os.Getenv("QUIZ_DEV_ROUTES"); v == "true" || v == "1" {
		cfg.DevRoutes = true
	}
	if v := os.Getenv("QUIZ_STORE"); v != "" {
		cfg.StoreType = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = db
		}
	}
	if v := os.Getenv("QUIZ_MAX_PARTICIPANTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxParticipants = n
		}
	}
	if v := os.Getenv("QUIZ_SEND_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SendBufferSize = n
		}
	}
	if v := os.Getenv("TLS_CERT"); v != "" {
		cfg.TLSCert = v
	}
	if v := os.Getenv("TLS_KEY"); v != "" {
		cfg.TLSKey = v
	}
	return cfg
}
