// Package server provides the HTTP and WebSocket surface of the
// platform: session control, question triggers, batch lecture analysis,
// and the student/presenter event feed.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/classlive/platform/internal/errors"
	"github.com/classlive/platform/internal/observability/metrics"
	"github.com/classlive/platform/internal/placement"
	"github.com/classlive/platform/internal/question"
	"github.com/classlive/platform/internal/session"
	"github.com/classlive/platform/internal/trace"
)

// Authorizer answers whether the caller may manage a lecture.
type Authorizer interface {
	IsInstructor(ctx context.Context, token, lectureID string) (bool, error)
}

// Analyzer computes a pause point set for a lecture transcript.
type Analyzer interface {
	Analyze(ctx context.Context, req placement.AnalyzeRequest) ([]placement.PausePoint, error)
}

// PausePointStore persists and serves pause point sets and stored
// transcripts.
type PausePointStore interface {
	Replace(lectureID string, points []placement.PausePoint) error
	PausePoints(lectureID string) ([]placement.PausePoint, error)
	Transcript(lectureID string) ([]placement.TranscriptSegment, error)
}

// Websocket message types.
type wsEnvelope struct {
	Type string `json:"type"`
}

type joinMessage struct {
	Type string `json:"type"`
	Role string `json:"role"` // "student" or "presenter"
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type eventMessage struct {
	Type  string        `json:"type"`
	Event session.Event `json:"event"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	mu         sync.Mutex
	timestamps []time.Time
}

func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}

type client struct {
	conn    *websocket.Conn
	role    string
	limiter *rateLimiter
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	mgr      *session.Manager
	analyzer Analyzer
	store    PausePointStore
	auth     Authorizer
	validate *validator.Validate

	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
}

// New creates a server and starts the event broadcaster.
func New(mgr *session.Manager, analyzer Analyzer, store PausePointStore, auth Authorizer) *Server {
	s := &Server{
		mgr:      mgr,
		analyzer: analyzer,
		store:    store,
		auth:     auth,
		validate: validator.New(),
		clients:  make(map[*websocket.Conn]*client),
	}
	go s.broadcastEvents()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/session/status", s.handleStatus)
	mux.HandleFunc("POST /api/session/start", s.handleSessionStart)
	mux.HandleFunc("POST /api/session/stop", s.handleSessionStop)
	mux.HandleFunc("GET /api/session/metrics", s.handleSessionMetrics)
	mux.HandleFunc("POST /api/questions/manual", s.handleManualQuestion)
	mux.HandleFunc("POST /api/questions/auto", s.handleAutoToggle)
	mux.HandleFunc("POST /api/lectures/{id}/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/lectures/{id}/pause-points", s.handlePausePoints)

	mux.Handle("GET /metrics", metrics.Handler())

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	c := &client{conn: conn, limiter: &rateLimiter{}}
	s.mu.Lock()
	s.clients[conn] = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		s.refreshStudentCount()
	}()

	ctx := r.Context()
	log := trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !c.limiter.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(ctx, conn, errorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		// Browser clients may carry their own trace_id per message.
		msgCtx := ctx
		msgLog := log
		if tc, ok := trace.ExtractFromJSON(raw); ok {
			msgCtx = trace.WithContext(ctx, tc)
			msgLog = trace.Logger(msgCtx)
		}

		var base wsEnvelope
		if err := json.Unmarshal(raw, &base); err != nil {
			continue
		}

		switch base.Type {
		case "join":
			var join joinMessage
			if err := json.Unmarshal(raw, &join); err != nil {
				continue
			}
			if join.Role != "student" && join.Role != "presenter" {
				_ = wsjson.Write(msgCtx, conn, errorMessage{Type: "error", Message: "unknown role"})
				continue
			}
			s.mu.Lock()
			c.role = join.Role
			s.mu.Unlock()
			s.refreshStudentCount()
			msgLog.Info("client joined", "role", join.Role)
		}
	}
}

// refreshStudentCount recounts student connections and reports the
// audience size to the session manager.
func (s *Server) refreshStudentCount() {
	s.mu.RLock()
	n := 0
	for _, c := range s.clients {
		if c.role == "student" {
			n++
		}
	}
	s.mu.RUnlock()
	s.mgr.SetStudentCount(n)
}

// broadcastEvents forwards session bus events to every connected
// websocket client.
func (s *Server) broadcastEvents() {
	events, cancel := s.mgr.Events().Subscribe()
	defer cancel()

	for ev := range events {
		msg := eventMessage{Type: "session_event", Event: ev}

		s.mu.RLock()
		conns := make([]*websocket.Conn, 0, len(s.clients))
		for conn := range s.clients {
			conns = append(conns, conn)
		}
		s.mu.RUnlock()

		for _, conn := range conns {
			ctx, cancelWrite := context.WithTimeout(context.Background(), 2*time.Second)
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				slog.Debug("event broadcast failed", "error", err)
			}
			cancelWrite()
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Status())
}

type startRequest struct {
	LectureID string `json:"lecture_id" validate:"required"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "malformed request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "lecture_id is required"))
		return
	}

	// The session outlives this request; it ends on the stop call.
	if err := s.mgr.Start(context.WithoutCancel(r.Context()), req.LectureID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.mgr.Status())
}

func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	s.mgr.Stop()
	writeJSON(w, http.StatusOK, s.mgr.Status())
}

func (s *Server) handleSessionMetrics(w http.ResponseWriter, r *http.Request) {
	m := s.mgr.SchedulerMetrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"sent_count":            m.Sent(),
		"skipped_count":         m.Skipped(),
		"average_quality_score": m.AverageQuality(),
		"skip_reasons":          m.SkipReasons(),
	})
}

func (s *Server) handleManualQuestion(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.TriggerQuestion(r.Context(), question.OriginManual); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type autoToggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleAutoToggle(w http.ResponseWriter, r *http.Request) {
	var req autoToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "malformed request body"))
		return
	}
	s.mgr.SetAutoQuestions(req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "analyze_lecture")
	defer span.End()
	log := trace.Logger(ctx)

	lectureID := r.PathValue("id")
	token := bearerToken(r)
	ok, err := s.auth.IsInstructor(ctx, token, lectureID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperrors.New(apperrors.CodeUnauthorized, "caller is not an instructor for this lecture"))
		return
	}

	var req placement.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "malformed request body"))
		return
	}
	req.LectureID = lectureID
	if req.DomainProfile == "" {
		req.DomainProfile = placement.DomainGeneral
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid analyze request"))
		return
	}

	// A request without an inline transcript analyzes the stored one.
	if len(req.Transcript) == 0 {
		segments, err := s.store.Transcript(lectureID)
		if err != nil {
			writeError(w, err)
			return
		}
		req.Transcript = segments
	}

	points, err := s.analyzer.Analyze(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.Replace(lectureID, points); err != nil {
		writeError(w, err)
		return
	}

	log.Info("lecture analyzed", "lecture", lectureID, "points", len(points))
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handlePausePoints(w http.ResponseWriter, r *http.Request) {
	points, err := s.store.PausePoints(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}

// writeError maps error codes to HTTP statuses and renders the message
// plus remediation, when present, as the response body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeUnauthorized, apperrors.CodeCredentialInvalid:
		status = http.StatusUnauthorized
	case apperrors.CodeCooldownActive, apperrors.CodeQuotaExceeded:
		status = http.StatusTooManyRequests
	case apperrors.CodeTimeout:
		status = http.StatusGatewayTimeout
	case apperrors.CodeRelayUnavailable, apperrors.CodeGenerationFailed:
		status = http.StatusBadGateway
	}

	body := map[string]string{"error": err.Error()}
	if appErr, ok := apperrors.AsAppError(err); ok && appErr.Remediation != "" {
		body["remediation"] = appErr.Remediation
	}
	writeJSON(w, status, body)
}
