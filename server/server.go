package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"quizbench/config"
	"quizbench/hub"
	"quizbench/middleware"
	"quizbench/protocol"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server exposes the coordinator: the REST surface the credential exchange
// talks to, and the websocket endpoint sessions run over.
type Server struct {
	cfg     *config.Config
	hub     *hub.Hub
	users   *UserRegistry
	surveys map[int]hub.Survey
	limiter *middleware.RateLimiter
}

func New(cfg *config.Config, h *hub.Hub, surveys map[int]hub.Survey) *Server {
	return &Server{
		cfg:     cfg,
		hub:     h,
		users:   NewUserRegistry(),
		surveys: surveys,
		limiter: middleware.NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst),
	}
}

func (s *Server) Users() *UserRegistry {
	return s.users
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Post("/api/users/login", s.handleLogin)
	r.Post("/api/users/register", s.handleRegister)
	if s.cfg.DevRoutes {
		r.Get("/api/users/dev_only_get_jwt/{email}", s.handleDevToken)
	}
	r.Post("/api/sessions/create", s.handleCreateSession)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/health", s.handleHealth)
	return r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	log.Printf("coordinator starting on %s", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.ReadTimeout.Duration,
		WriteTimeout: 0, // websocket connections outlive any write timeout
	}

	if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
		return srv.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
	}
	return srv.ListenAndServe()
}

func (s *Server) Shutdown() {
	s.limiter.Close()
	s.hub.Shutdown()
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed form body"})
		return
	}
	email := r.PostForm.Get("username")
	password := r.PostForm.Get("password")

	if !s.users.Authenticate(email, password) {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"detail": "incorrect email or password"})
		return
	}

	token, err := IssueToken(s.cfg.JWTSecret, email, s.cfg.TokenTTL.Duration)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"detail": "token signing failed"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"detail": "email and password required"})
		return
	}

	if err := s.users.Register(body.Email, body.Password); err != nil {
		respondJSON(w, http.StatusConflict, map[string]string{"detail": "email already registered"})
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"email": body.Email})
}

func (s *Server) handleDevToken(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	token, err := IssueToken(s.cfg.JWTSecret, email, s.cfg.TokenTTL.Duration)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"detail": "token signing failed"})
		return
	}
	respondJSON(w, http.StatusOK, token)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	email, err := s.emailFromRequest(r)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"detail": "could not validate credentials"})
		return
	}

	var body struct {
		SurveyID int  `json:"survey_id"`
		IsPublic bool `json:"is_public"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}

	survey, ok := s.surveys[body.SurveyID]
	if !ok {
		respondJSON(w, http.StatusNotFound, map[string]string{"detail": "survey not found"})
		return
	}

	sess := s.hub.CreateSession(email, survey)
	log.Printf("session %s created by %s (survey %d)", sess.JoinCode, email, body.SurveyID)
	respondJSON(w, http.StatusCreated, map[string]string{"join_code": sess.JoinCode})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	email, err := s.emailFromRequest(r)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("accept error: %v", err)
		return
	}
	conn.SetReadLimit(s.cfg.MaxMessageSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := hub.NewClient(conn, email, s.cfg.SendBufferSize)

	go s.writePump(ctx, c)
	s.readPump(ctx, c)
}

func (s *Server) readPump(ctx context.Context, c *hub.Client) {
	defer func() {
		s.limiter.Remove(c.ID)
		s.hub.Disconnect(c)
	}()

	for {
		_, data, err := c.Conn.Read(ctx)
		if err != nil {
			if !isExpectedCloseError(err) && ctx.Err() == nil {
				log.Printf("read error [%s]: %v", c.Email, err)
			}
			return
		}

		if !s.limiter.Allow(c.ID) {
			s.rejectThrottled(c, data)
			continue
		}

		s.hub.HandleMessage(c, data)
	}
}

// rejectThrottled still answers a throttled request: dropping a frame that
// carried an ack id would leave its sender waiting forever.
func (s *Server) rejectThrottled(c *hub.Client, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		return
	}
	c.SendAck(msg.AckID, protocol.AckRateLimited)
	protocol.ReleaseMessage(msg)
}

func (s *Server) writePump(ctx context.Context, c *hub.Client) {
	ticker := time.NewTicker(s.cfg.PingInterval.Duration)
	defer func() {
		ticker.Stop()
		c.Conn.CloseNow()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				c.Conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, s.cfg.WriteTimeout.Duration)
			err := c.Conn.Write(writeCtx, websocket.MessageText, data)
			writeCancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, s.cfg.WriteTimeout.Duration)
			err := c.Conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"sessions":  s.hub.SessionCount(),
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) emailFromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", ErrInvalidToken
	}
	return EmailFromToken(s.cfg.JWTSecret, token)
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		return true
	}
	errStr := err.Error()
	if strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "use of closed") {
		return true
	}
	return false
}
