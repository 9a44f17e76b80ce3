// Package health serves liveness, a configuration health report and
// Prometheus metrics over HTTP.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderbot/internal/broadcast"
	rtsup "orderbot/internal/runtime/supervisor"
	"orderbot/internal/task/scheduler"
	logx "orderbot/pkg/logx"
)

const RootText = "Telegram Bot is running!"

type Config struct {
	Addr string
	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Sources supplies the data behind /health. Nil sources are reported as missing or empty.
type Sources struct {
	StoreConfigured      func() bool
	ClassifierConfigured func() bool
	TokenConfigured      func() bool
	Users                func(ctx context.Context) (int, error)
	LastBroadcast        func() (broadcast.Report, bool)
	Schedules            func() scheduler.Snapshot
}

type Server struct {
	mu       sync.Mutex
	cfg      Config
	sources  Sources
	gatherer prometheus.Gatherer
	log      logx.Logger

	addr     string
	sup      *rtsup.Supervisor
	srv      *http.Server
	listenCh chan struct{}
}

// New returns a server. A nil gatherer uses the default Prometheus registry.
func New(cfg Config, sources Sources, gatherer prometheus.Gatherer, log logx.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":3000"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	return &Server{cfg: cfg, sources: sources, gatherer: gatherer, log: log, listenCh: make(chan struct{})}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(RootText))
	})
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	if s.cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", hpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	}
	return mux
}

// Start serves in the background under a restart loop. It is idempotent.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// health is observability; never hard-kill the app.
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

// Addr returns the bound address once listening, or "".
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Listening is closed after the first successful bind.
func (s *Server) Listening() <-chan struct{} { return s.listenCh }

// Stop shuts the server down gracefully within ctx.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	srv := s.srv
	s.sup = nil
	s.srv = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	sup.Cancel()
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
	_ = sup.Wait(ctx)
	s.log.Info("health server stopped")
}

func (s *Server) serveOnce(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	defer func() { _ = ln.Close() }()

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.mu.Lock()
	s.srv = srv
	first := s.addr == ""
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	if first {
		close(s.listenCh)
	}

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("health server started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", s.cfg.Pprof))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("health server exited unexpectedly")
	}
	return err
}

type healthReport struct {
	Status          string          `json:"status"`
	GoogleScriptURL string          `json:"googleScriptUrl"`
	OpenAIKey       string          `json:"openaiKey"`
	TelegramToken   string          `json:"telegramToken"`
	Users           int             `json:"users"`
	LastBroadcast   *broadcastInfo  `json:"lastBroadcast"`
	Schedules       []scheduleEntry `json:"schedules"`
	Timezone        string          `json:"timezone,omitempty"`
}

type broadcastInfo struct {
	ID        string    `json:"id"`
	Trigger   string    `json:"trigger"`
	Total     int       `json:"total"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Skipped   bool      `json:"skipped"`
	Reason    string    `json:"reason,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	Duration  string    `json:"duration"`
}

type scheduleEntry struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	Next    time.Time `json:"next,omitempty"`
	Runs    uint64    `json:"runs"`
	LastErr string    `json:"lastError,omitempty"`
}

func configured(fn func() bool) string {
	if fn != nil && fn() {
		return "configured"
	}
	return "missing"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := healthReport{
		Status:          "ok",
		GoogleScriptURL: configured(s.sources.StoreConfigured),
		OpenAIKey:       configured(s.sources.ClassifierConfigured),
		TelegramToken:   configured(s.sources.TokenConfigured),
		Schedules:       []scheduleEntry{},
	}
	if s.sources.Users != nil {
		n, err := s.sources.Users(r.Context())
		if err != nil {
			s.log.Warn("health: count users failed", logx.Err(err))
		}
		rep.Users = n
	}
	if s.sources.LastBroadcast != nil {
		if b, ok := s.sources.LastBroadcast(); ok {
			rep.LastBroadcast = &broadcastInfo{
				ID: b.ID, Trigger: b.Trigger, Total: b.Total, Sent: b.Sent, Failed: b.Failed,
				Skipped: b.Skipped, Reason: b.Reason, StartedAt: b.StartedAt, Duration: b.Duration.String(),
			}
		}
	}
	if s.sources.Schedules != nil {
		snap := s.sources.Schedules()
		rep.Timezone = snap.Timezone
		for _, it := range snap.Schedules {
			rep.Schedules = append(rep.Schedules, scheduleEntry{Name: it.Name, Spec: it.Spec, Next: it.Next, Runs: it.Runs, LastErr: it.LastErr})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rep)
}
