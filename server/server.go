package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/wfunc/blinkduel/logger"
	"github.com/wfunc/blinkduel/monitor"
	"github.com/wfunc/blinkduel/persistence"
	"github.com/wfunc/blinkduel/services"
)

const HeaderRequestID = "X-Request-ID"

// Options tunes a GameServer. Zero values are usable.
type Options struct {
	AllowedOrigins []string
	Monitor        *monitor.Monitor
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// GameServer exposes the match service over HTTP JSON.
type GameServer struct {
	addr       string
	matches    *services.MatchService
	store      persistence.Store
	auth       Authenticator
	monitor    *monitor.Monitor
	origins    []string
	httpServer *http.Server
}

func NewGameServer(addr string, matches *services.MatchService, store persistence.Store, auth Authenticator, opts Options) *GameServer {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 15 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &GameServer{
		addr:    addr,
		matches: matches,
		store:   store,
		auth:    auth,
		monitor: opts.Monitor,
		origins: opts.AllowedOrigins,
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Handler returns the routed, CORS-wrapped handler.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "POST /api/pvp/create-room", s.authed(s.handleCreateRoom))
	s.route(mux, "POST /api/pvp/join-room", s.authed(s.handleJoinRoom))
	s.route(mux, "POST /api/pvp/player-ready", s.authed(s.handlePlayerReady))
	s.route(mux, "POST /api/pvp/report-blink", s.authed(s.handleReportBlink))
	s.route(mux, "GET /api/pvp/room-status", s.authed(s.handleRoomStatus))
	s.route(mux, "POST /api/pvp/report-disconnect", s.authed(s.handleReportDisconnect))
	s.route(mux, "POST /api/pvp/claim-winnings", s.authed(s.handleClaimWinnings))
	s.route(mux, "GET /health", s.handleHealth)

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", HeaderWallet, HeaderUsername, HeaderRequestID},
		ExposedHeaders: []string{HeaderRequestID},
	})
	return withRequestID(c.Handler(mux))
}

func (s *GameServer) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(pattern, h))
}

// Start serves until Shutdown.
func (s *GameServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *GameServer) Serve(ln net.Listener) error {
	logger.Log.Infof("Game server listening on %s", ln.Addr())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *GameServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type requestIDKey struct{}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

// withRequestID tags every request with an id, reusing the caller's.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// instrument records the latency and status of a route.
func (s *GameServer) instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done := s.monitor.TrackRequest(route)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		done(rec.status)
	})
}

// authed rejects requests without a resolvable caller.
func (s *GameServer) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.auth.Authenticate(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), id)))
	}
}
