// Package api is the admin HTTP surface: health, metrics, guild config and a
// manual rank sync trigger.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"faceit-rolebot/internal/modules/audit"
	"faceit-rolebot/internal/ranksync"
	"faceit-rolebot/internal/rolepanel"
	"faceit-rolebot/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ConfigStore is the part of the repository the API reads and writes.
type ConfigStore interface {
	GetGuildConfig(ctx context.Context, guildID string) (storage.GuildConfig, error)
	SetConfigurableRoles(ctx context.Context, guildID string, roleIDs []string) error
	SetRoleEmojiMappings(ctx context.Context, guildID string, mappings map[string]storage.RoleEmoji) error
	SetFaceitLevelRoles(ctx context.Context, guildID string, levelRoles map[string]string) error
	Ping(ctx context.Context) error
}

// SyncTrigger starts rank sync passes. *scheduler.Scheduler implements it.
type SyncTrigger interface {
	Trigger() bool
	Running() bool
	LastReport() ranksync.PassReport
}

type Options struct {
	Store     ConfigStore
	Sync      SyncTrigger
	Gatherer  prometheus.Gatherer
	Audit     *audit.Logger
	JWTSecret string
}

type Server struct {
	store    ConfigStore
	sync     SyncTrigger
	gatherer prometheus.Gatherer
	audit    *audit.Logger
	secret   []byte
	logger   *zap.Logger
}

func New(logger *zap.Logger, opts Options) *Server {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		store:    opts.Store,
		sync:     opts.Sync,
		gatherer: gatherer,
		audit:    opts.Audit,
		secret:   []byte(opts.JWTSecret),
		logger:   logger,
	}
}

// Handler builds the router. /api routes exist only when a JWT secret is set.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	if len(s.secret) == 0 {
		s.logger.Warn("http.jwt_secret is empty, admin api disabled")
		return r
	}
	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireJWT)
		r.Get("/guilds/{guildID}/config", s.handleGetConfig)
		r.Put("/guilds/{guildID}/config", s.handlePutConfig)
		r.Get("/rank-sync", s.handleSyncStatus)
		r.Post("/rank-sync", s.handleSyncTrigger)
	})
	return r
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin http listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type contextKey string

const subjectKey contextKey = "subject"

func (s *Server) requireJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		subject, _ := token.Claims.GetSubject()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey, subject)))
	})
}

func subjectFrom(ctx context.Context) string {
	subject, _ := ctx.Value(subjectKey).(string)
	return subject
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	cfg, err := s.store.GetGuildConfig(r.Context(), guildID)
	if err != nil {
		s.logger.Error("load guild config failed", zap.String("guild_id", guildID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// configPatch is a partial update; absent fields are left as they are.
type configPatch struct {
	ConfigurableRoleIDs *[]string                     `json:"configurableRoleIds"`
	RoleEmojiMappings   *map[string]storage.RoleEmoji `json:"roleEmojiMappings"`
	FaceitLevelRoles    *map[string]string            `json:"faceitLevelRoles"`
}

func (p configPatch) validate() error {
	if p.ConfigurableRoleIDs != nil {
		if len(*p.ConfigurableRoleIDs) > rolepanel.MaxOptions {
			return fmt.Errorf("configurableRoleIds allows at most %d roles", rolepanel.MaxOptions)
		}
		for _, id := range *p.ConfigurableRoleIDs {
			if strings.TrimSpace(id) == "" {
				return errors.New("configurableRoleIds contains an empty id")
			}
		}
	}
	if p.RoleEmojiMappings != nil {
		for roleID, emoji := range *p.RoleEmojiMappings {
			if roleID == "" || emoji.Name == "" {
				return fmt.Errorf("roleEmojiMappings[%q] needs a role id and an emoji name", roleID)
			}
		}
	}
	if p.FaceitLevelRoles != nil {
		for key, roleID := range *p.FaceitLevelRoles {
			level, err := strconv.Atoi(key)
			if err != nil || level < 1 {
				return fmt.Errorf("faceitLevelRoles key %q is not a level", key)
			}
			if roleID == "" {
				return fmt.Errorf("faceitLevelRoles[%q] has no role", key)
			}
		}
	}
	return nil
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	var patch configPatch
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := patch.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	var changed []string
	if patch.ConfigurableRoleIDs != nil {
		if err := s.store.SetConfigurableRoles(ctx, guildID, *patch.ConfigurableRoleIDs); err != nil {
			s.failWrite(w, guildID, err)
			return
		}
		changed = append(changed, "configurableRoleIds")
	}
	if patch.RoleEmojiMappings != nil {
		if err := s.store.SetRoleEmojiMappings(ctx, guildID, *patch.RoleEmojiMappings); err != nil {
			s.failWrite(w, guildID, err)
			return
		}
		changed = append(changed, "roleEmojiMappings")
	}
	if patch.FaceitLevelRoles != nil {
		if err := s.store.SetFaceitLevelRoles(ctx, guildID, *patch.FaceitLevelRoles); err != nil {
			s.failWrite(w, guildID, err)
			return
		}
		changed = append(changed, "faceitLevelRoles")
	}
	if len(changed) > 0 {
		s.audit.Log(ctx, audit.LevelInfo, guildID, subjectFrom(ctx), audit.EventConfigChanged,
			"api fields="+strings.Join(changed, ","))
	}

	cfg, err := s.store.GetGuildConfig(ctx, guildID)
	if err != nil {
		s.logger.Error("reload guild config failed", zap.String("guild_id", guildID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) failWrite(w http.ResponseWriter, guildID string, err error) {
	s.logger.Error("save guild config failed", zap.String("guild_id", guildID), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "could not save config")
}

type syncStatus struct {
	Running bool                 `json:"running"`
	Last    *ranksync.PassReport `json:"last,omitempty"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status := syncStatus{Running: s.sync.Running()}
	if last := s.sync.LastReport(); last.PassID != "" {
		status.Last = &last
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	if !s.sync.Trigger() {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "running"})
		return
	}
	s.audit.Log(r.Context(), audit.LevelInfo, "", subjectFrom(r.Context()), audit.EventSyncPass, "trigger=api")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
