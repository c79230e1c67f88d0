package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrEthical07/fitAuth/internal/rate"
	"github.com/MrEthical07/fitAuth/jwt"
	"github.com/MrEthical07/fitAuth/password"
	"github.com/MrEthical07/fitAuth/session"
)

const maxBodyBytes = 64 << 10

// Server is the dev backend.
type Server struct {
	cfg    Config
	dir    *directory
	hasher *password.Argon2
	tokens *jwt.Manager
	limit  *rate.Limiter
	logger *slog.Logger
	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLoginLimiter throttles failed logins. Without one, logins are not
// throttled.
func WithLoginLimiter(l *rate.Limiter) Option {
	return func(s *Server) {
		s.limit = l
	}
}

// WithPasswordConfig overrides the Argon2 cost, mostly to keep tests fast.
func WithPasswordConfig(cfg password.Config) Option {
	return func(s *Server) {
		if h, err := password.NewArgon2(cfg); err == nil {
			s.hasher = h
		}
	}
}

// New builds a Server from cfg.
func New(cfg Config, opts ...Option) (*Server, error) {
	secret, err := cfg.secret()
	if err != nil {
		return nil, err
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    secret,
		Issuer:        cfg.Issuer,
	})
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		dir:    newDirectory(),
		hasher: hasher,
		tokens: tokens,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.SeedDemoUsers {
		if err := s.seed(); err != nil {
			return nil, err
		}
	}

	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           60 * 15,
	}))

	r.Route("/auth", func(rr chi.Router) {
		rr.Post("/login", s.handleLogin)
		rr.Post("/register", s.handleRegister)
		rr.With(s.authenticate).Post("/logout", s.handleLogout)
	})

	r.Group(func(rr chi.Router) {
		rr.Use(s.authenticate)
		rr.Get("/me", s.handleMe)
		rr.Get("/workouts", s.handleWorkouts)
	})

	if s.cfg.EnableRevoke {
		r.Post("/dev/sessions/revoke", s.handleRevoke)
	}

	return r
}

// Demo accounts created when SeedDemoUsers is set.
const (
	DemoCoachEmail   = "coach@fit.dev"
	DemoStudentEmail = "student@fit.dev"
	DemoPassword     = "workout-123"
	DemoCoachCode    = "DEMOCOACH"
)

func (s *Server) seed() error {
	hash, err := s.hasher.Hash(DemoPassword)
	if err != nil {
		return err
	}
	coach := &user{
		Name:         "Maya Torres",
		Email:        DemoCoachEmail,
		Phone:        "+15550199",
		AccountType:  session.AccountTypePersonalTrainer,
		PasswordHash: hash,
		CoachCode:    DemoCoachCode,
	}
	if err := s.dir.addUser(coach, ""); err != nil {
		return fmt.Errorf("devserver: seed coach: %w", err)
	}
	student := &user{
		Name:         "Leo Park",
		Email:        DemoStudentEmail,
		Phone:        "+15550100",
		AccountType:  session.AccountTypeStudent,
		PasswordHash: hash,
	}
	if err := s.dir.addUser(student, DemoCoachCode); err != nil {
		return fmt.Errorf("devserver: seed student: %w", err)
	}
	return nil
}

/*
====================================
AUTH
====================================
*/

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds session.Credentials
	if !decodeBody(w, r, &creds) {
		return
	}

	fields := fieldErrors{}
	if strings.TrimSpace(creds.Email) == "" {
		fields.add("email", "required")
	}
	if creds.Password == "" {
		fields.add("password", "required")
	}
	if len(fields) > 0 {
		writeValidation(w, fields)
		return
	}

	ip := clientIP(r)
	if s.throttled(r, creds.Email, ip) {
		writeError(w, http.StatusTooManyRequests, "too many login attempts", nil)
		return
	}

	u, ok := s.dir.userByEmail(creds.Email)
	if ok {
		match, err := s.hasher.Verify(creds.Password, u.PasswordHash)
		ok = err == nil && match
	}
	if !ok {
		s.recordFailure(r, creds.Email, ip)
		writeError(w, http.StatusUnauthorized, "invalid email or password", nil)
		return
	}

	if s.limit != nil {
		if err := s.limit.ResetLogin(r.Context(), creds.Email); err != nil {
			s.logger.Warn("devserver: reset login throttle failed", slog.Any("error", err))
		}
	}
	s.issue(w, r, u, http.StatusOK)
}

// throttled fails open when Redis is unavailable.
func (s *Server) throttled(r *http.Request, email, ip string) bool {
	if s.limit == nil {
		return false
	}
	err := s.limit.CheckLogin(r.Context(), email, ip)
	if errors.Is(err, rate.ErrRateLimited) {
		return true
	}
	if err != nil {
		s.logger.Warn("devserver: login throttle unavailable", slog.Any("error", err))
	}
	return false
}

func (s *Server) recordFailure(r *http.Request, email, ip string) {
	if s.limit == nil {
		return
	}
	err := s.limit.IncrementLogin(r.Context(), email, ip)
	if err != nil && !errors.Is(err, rate.ErrRateLimited) {
		s.logger.Warn("devserver: record login failure failed", slog.Any("error", err))
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg session.Registration
	if !decodeBody(w, r, &reg) {
		return
	}

	fields := validateRegistration(reg)
	if len(fields) > 0 {
		writeValidation(w, fields)
		return
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		writeValidation(w, fieldErrors{"password": {err.Error()}})
		return
	}

	u := &user{
		Name:         strings.TrimSpace(reg.Name),
		Email:        reg.Email,
		Phone:        strings.TrimSpace(reg.Phone),
		AccountType:  reg.AccountType,
		PasswordHash: hash,
	}
	coachCode := ""
	if reg.AccountType == session.AccountTypeStudent {
		coachCode = reg.CoachCode
	}

	switch err := s.dir.addUser(u, coachCode); {
	case errors.Is(err, errEmailTaken):
		writeError(w, http.StatusConflict, "account already exists", fieldErrors{"email": {"already registered"}})
		return
	case errors.Is(err, errUnknownCoach):
		writeValidation(w, fieldErrors{"coachCode": {"unknown coach code"}})
		return
	case err != nil:
		s.internalError(w, r, err)
		return
	}

	if u.CoachCode != "" {
		s.logger.Info("devserver: coach registered", slog.String("email", u.Email), slog.String("coach_code", u.CoachCode))
	}
	s.issue(w, r, u, http.StatusCreated)
}

func validateRegistration(reg session.Registration) fieldErrors {
	fields := fieldErrors{}
	if strings.TrimSpace(reg.Name) == "" {
		fields.add("name", "required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(reg.Email)); err != nil {
		fields.add("email", "must be a valid email address")
	}
	if len(reg.Password) < password.MinPasswordBytes {
		fields.add("password", "must be at least 8 characters")
	}
	if _, err := session.RoleFromAccountType(reg.AccountType); err != nil {
		fields.add("accountType", "must be STUDENT or PERSONAL_TRAINER")
	}
	return fields
}

// issue opens a server session and writes the auth result.
func (s *Server) issue(w http.ResponseWriter, r *http.Request, u *user, status int) {
	sid := s.dir.openSession(u.ID)

	access, err := s.tokens.CreateAccess(u.ID, sid, string(u.AccountType))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	refresh, err := s.tokens.CreateRefresh(u.ID, sid)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	writeData(w, status, session.AuthResult{
		Token:        access,
		RefreshToken: refresh,
		AccountType:  u.AccountType,
		Profile:      u.profile(),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	s.dir.closeSession(p.sessionID)
	w.WriteHeader(http.StatusNoContent)
}

/*
====================================
RESOURCES
====================================
*/

type workoutDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	CoachID     string `json:"coachId"`
	StudentID   string `json:"studentId"`
	ScheduledAt string `json:"scheduledAt"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.dir.userByID(principalFrom(r.Context()).userID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	writeData(w, http.StatusOK, u.profile())
}

func (s *Server) handleWorkouts(w http.ResponseWriter, r *http.Request) {
	u, err := s.dir.userByID(principalFrom(r.Context()).userID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	list := s.dir.workoutsFor(u)
	out := make([]workoutDTO, 0, len(list))
	for _, wo := range list {
		out = append(out, workoutDTO{
			ID:          wo.ID,
			Title:       wo.Title,
			CoachID:     wo.CoachID,
			StudentID:   wo.StudentID,
			ScheduledAt: wo.ScheduledAt.Format(time.RFC3339),
		})
	}
	writeData(w, http.StatusOK, out)
}

type revokeRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}
	n := s.dir.revoke(req.Email)
	s.logger.Info("devserver: sessions revoked", slog.String("email", req.Email), slog.Int("count", n))
	writeData(w, http.StatusOK, map[string]int{"revoked": n})
}

// Revoke closes sessions like POST /dev/sessions/revoke, for in-process tests.
func (s *Server) Revoke(email string) int {
	return s.dir.revoke(email)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("devserver: request failed",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, "internal error", nil)
}

/*
====================================
AUTH MIDDLEWARE
====================================
*/

type principal struct {
	userID    string
	sessionID string
}

type principalContextKey struct{}

func principalFrom(ctx context.Context) principal {
	p, _ := ctx.Value(principalContextKey{}).(principal)
	return p
}

// authenticate rejects requests without a valid bearer token bound to a live
// session with 401.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}

		claims, err := s.tokens.ParseAccess(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		if err := s.dir.checkSession(claims.SID, claims.Subject); err != nil {
			writeError(w, http.StatusUnauthorized, "session revoked", nil)
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey{}, principal{
			userID:    claims.Subject,
			sessionID: claims.SID,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

/*
====================================
RESPONSES
====================================
*/

type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorResponse struct {
	Message string      `json:"message"`
	Errors  fieldErrors `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string, fields fieldErrors) {
	writeJSON(w, status, errorResponse{Message: msg, Errors: fields})
}

func writeValidation(w http.ResponseWriter, fields fieldErrors) {
	writeError(w, http.StatusUnprocessableEntity, "validation failed", fields)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return false
	}
	return true
}
