package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	analyticsoutadapter "focusguard/internal/modules/analytics/adapter/out"
	analyticsdomain "focusguard/internal/modules/analytics/domain"
	analyticsservice "focusguard/internal/modules/analytics/service"
	daemondomain "focusguard/internal/modules/daemon/domain"
	daemonout "focusguard/internal/modules/daemon/port/out"
	sessioninadapter "focusguard/internal/modules/session/adapter/in"
	sessionoutadapter "focusguard/internal/modules/session/adapter/out"
	sessiondto "focusguard/internal/modules/session/dto"
	sessionin "focusguard/internal/modules/session/port/in"
	sessionservice "focusguard/internal/modules/session/service"
	sessionusecase "focusguard/internal/modules/session/usecase"
	sitedomain "focusguard/internal/modules/site/domain"
	"focusguard/internal/platform/clock"
	"focusguard/internal/platform/config"
	apperrors "focusguard/internal/platform/errors"
	"focusguard/internal/platform/id"
	"focusguard/internal/platform/kv"
	"focusguard/internal/platform/kv/badgerkv"
	"focusguard/internal/platform/kv/sqlitekv"
	"focusguard/internal/platform/retry"
)

const shutdownTimeout = 5 * time.Second

// Host is the running focusguard core: store, coordinator, gateway.
type Host struct {
	cfg       config.Config
	logger    *slog.Logger
	raw       kv.Store
	store     kv.Store
	recorder  *analyticsservice.Recorder
	scheduler *sessionoutadapter.TimerScheduler
	usecase   sessionin.Usecase
	endpoint  *sessioninadapter.Endpoint
	gateway   *sessioninadapter.Gateway

	mu       sync.Mutex
	listener net.Listener
}

// Option adjusts host wiring; tests use it to shrink the wake unit.
type Option func(*hostOptions)

type hostOptions struct {
	clock    clock.Clock
	wakeUnit time.Duration
}

func WithClock(clk clock.Clock) Option {
	return func(o *hostOptions) { o.clock = clk }
}

func WithWakeUnit(unit time.Duration) Option {
	return func(o *hostOptions) { o.wakeUnit = unit }
}

func OpenStore(cfg config.Config, logger *slog.Logger) (kv.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverBadger:
		return badgerkv.Open(badgerkv.Config{Path: cfg.BadgerPath(), SyncWrites: true, Logger: logger})
	case config.DriverSQLite:
		return sqlitekv.Open(cfg.SQLitePath())
	case config.DriverMemory:
		return kv.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func NewHost(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*Host, error) {
	o := hostOptions{clock: clock.SystemClock{}, wakeUnit: time.Minute}
	for _, opt := range opts {
		opt(&o)
	}

	raw, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	store := kv.WithRetry(raw, retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.Retry.BaseDelay}, logger)

	recorder := analyticsservice.NewRecorder(store, o.clock, logger)
	if err := recorder.SeedTemplates(ctx); err != nil {
		logger.Warn("seeding intention templates failed", slog.String("error", err.Error()))
	}

	scheduler := sessionoutadapter.NewTimerScheduler(o.wakeUnit, logger)
	ids := id.UUID{}
	h := &Host{cfg: cfg, logger: logger, raw: raw, store: store, recorder: recorder, scheduler: scheduler}

	// coordinator -> notifier -> gateway -> endpoint -> usecase -> coordinator
	notifier := &lateNotifier{}
	coord := sessionservice.NewCoordinator(
		sessionoutadapter.NewKVStateStore(store),
		o.clock,
		scheduler,
		notifier,
		recorder,
		sessionservice.Options{Cooldown: cfg.Cooldown, StrictCooldown: cfg.StrictCooldown, Logger: logger},
	)
	scheduler.OnFire(coord.HandleWake)

	h.usecase = sessionusecase.NewInteractor(coord, Registry(cfg), recorder, logger)
	h.endpoint = sessioninadapter.NewEndpoint(h.usecase, logger)
	h.gateway = sessioninadapter.NewGateway(h.endpoint, ids, logger, sessioninadapter.WithAllowedOrigins(cfg.AllowedOrigins...))
	notifier.target = h.gateway

	if err := coord.Initialize(ctx); err != nil {
		logger.Warn("coordinator initialization failed", slog.String("error", err.Error()))
	}
	return h, nil
}

// Registry builds the site table: built-in domains plus configured ones.
func Registry(cfg config.Config) *sitedomain.Registry {
	entries := sitedomain.DefaultEntries()
	for _, site := range cfg.Sites {
		entries = append(entries, sitedomain.Entry{Domain: site.Domain, Site: sitedomain.SiteID(site.Name)})
	}
	return sitedomain.NewRegistry(entries...)
}

// Run serves HTTP and relays store changes until ctx ends.
func (h *Host) Run(ctx context.Context) error {
	defer h.scheduler.Stop()

	ln, err := net.Listen("tcp", h.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.cfg.ListenAddr, err)
	}
	h.mu.Lock()
	h.listener = ln
	h.mu.Unlock()
	srv := &http.Server{
		Handler:           sessioninadapter.NewRouter(h.gateway, h.usecase, h.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	h.logger.Info("gateway listening", slog.String("addr", ln.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return h.gateway.WatchStore(gctx, h.raw)
	})
	return g.Wait()
}

// Addr is the bound gateway address once Run is listening.
func (h *Host) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

func (h *Host) Dispatch(ctx context.Context, tabID int, raw []byte) ([]byte, error) {
	reply := h.endpoint.Handle(ctx, sessiondto.Sender{TabID: tabID}, raw)
	out, err := json.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}
	return out, nil
}

func (h *Host) Status(ctx context.Context) (sessiondto.Status, error) {
	return h.usecase.Status(ctx)
}

func (h *Host) Summary(ctx context.Context) (analyticsdomain.Summary, error) {
	return h.usecase.Summary(ctx)
}

func (h *Host) Export(ctx context.Context, format, dir string) (daemonout.ExportResult, error) {
	result := daemonout.ExportResult{Format: format}
	var buf bytes.Buffer
	switch format {
	case daemondomain.FormatJSON:
		if err := h.recorder.ExportJSON(ctx, &buf); err != nil {
			return result, err
		}
		result.Payload = buf.String()
	case daemondomain.FormatCSV:
		if err := h.recorder.ExportCSV(ctx, &buf); err != nil {
			return result, err
		}
		result.Payload = buf.String()
	case daemondomain.FormatNotes:
		if dir == "" {
			dir = h.cfg.NotesDir()
		}
		written, err := h.recorder.ExportNotes(ctx, analyticsoutadapter.NewMarkdownNoteWriter(dir))
		if err != nil {
			return result, err
		}
		result.Written = written
		result.Payload = dir
	default:
		return result, fmt.Errorf("%w: %q", daemondomain.ErrUnknownFormat, format)
	}
	return result, nil
}

func (h *Host) Reset(ctx context.Context) error {
	return h.recorder.Reset(ctx)
}

func (h *Host) Close() error {
	return h.raw.Close()
}

type lateNotifier struct {
	target interface {
		NotifyTimeUp(ctx context.Context, tabID int) error
	}
}

func (n *lateNotifier) NotifyTimeUp(ctx context.Context, tabID int) error {
	if n.target == nil {
		return fmt.Errorf("%w: gateway not ready for tab %d", apperrors.ErrTabUnreachable, tabID)
	}
	return n.target.NotifyTimeUp(ctx, tabID)
}
