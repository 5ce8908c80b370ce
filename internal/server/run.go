package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/r9s-ai/fieldproxy/internal/logx"
	"github.com/r9s-ai/fieldproxy/internal/proxy"
	"github.com/r9s-ai/fieldproxy/internal/telemetry"
	"github.com/r9s-ai/fieldproxy/pkg/config"
	"github.com/r9s-ai/fieldproxy/pkg/fieldfilter"
	"github.com/r9s-ai/fieldproxy/pkg/httpclient"
	"github.com/r9s-ai/fieldproxy/pkg/rules"
)

const shutdownGrace = 10 * time.Second

func Run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	accessLogger, accessClose, accessColor, err := openAccessLogger(cfg)
	if err != nil {
		return fmt.Errorf("init access log: %w", err)
	}
	if accessClose != nil {
		defer func() { _ = accessClose.Close() }()
	}

	pidCleanup, err := writePIDFile(cfg)
	if err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	if pidCleanup != nil {
		defer func() { _ = pidCleanup.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	reg := rules.NewRegistry()
	if f := strings.TrimSpace(cfg.Filter.RulesFile); f != "" {
		if err := reg.ReloadFromFile(f); err != nil {
			return fmt.Errorf("load rules file %q: %w", f, err)
		}
	}

	readTimeout := time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond
	writeTimeout := time.Duration(cfg.Server.WriteTimeoutMs) * time.Millisecond

	httpClient, err := httpclient.New(httpclient.Options{
		Timeout:  time.Duration(cfg.Upstream.TimeoutMs) * time.Millisecond,
		ProxyURL: cfg.Upstream.ProxyURL,
	})
	if err != nil {
		return fmt.Errorf("init upstream client: %w", err)
	}
	pclient, err := proxy.New(httpClient, cfg.Upstream.BaseURL, cfg.Upstream.PreserveHost)
	if err != nil {
		return fmt.Errorf("init proxy: %w", err)
	}

	st := newState(cfgPath, cfg, reg, fieldfilter.NewTreeCache(cfg.Filter.CacheSize))
	installReloadSignalHandler(st, accessClose)
	autoReloadClose, err := installRulesAutoReload(cfg, st)
	if err != nil {
		return fmt.Errorf("init rules auto reload: %w", err)
	}
	if autoReloadClose != nil {
		defer func() { _ = autoReloadClose.Close() }()
	}

	accessFormat, err := logx.ResolveAccessLogFormat(cfg.Logging.AccessLogFormat, cfg.Logging.AccessLogFormatPreset)
	if err != nil {
		return fmt.Errorf("resolve access log format: %w", err)
	}
	accessFormatter, err := logx.CompileAccessLogFormat(accessFormat)
	if err != nil {
		return fmt.Errorf("compile access_log_format: %w", err)
	}
	engine := NewRouter(cfg, st, pclient.Forward, accessLogger, accessColor, accessFormatter)

	var handler http.Handler = engine
	if cfg.Server.H2C {
		handler = h2c.NewHandler(engine, &http2.Server{})
	}
	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Printf("fieldproxy listening on %s upstream=%s h2c=%t rules=%d", cfg.Server.Listen, cfg.Upstream.BaseURL, cfg.Server.H2C, reg.Len())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("run: %w", err)
	case <-ctx.Done():
	}
	log.Printf("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openAccessLogger(cfg *config.Config) (*log.Logger, io.Closer, bool, error) {
	if cfg == nil || !cfg.Logging.AccessLogEnabled() {
		return nil, nil, false, nil
	}

	path := strings.TrimSpace(cfg.Logging.AccessLogPath)
	if path == "" {
		return log.New(os.Stdout, "", 0), nil, logx.ColorEnabled(), nil
	}

	if cfg.Logging.AccessLogRotate.Enabled {
		w, err := logx.NewRotateWriter(logx.RotateOptions{
			Path:       path,
			MaxSizeMB:  cfg.Logging.AccessLogRotate.MaxSizeMB,
			MaxBackups: cfg.Logging.AccessLogRotate.MaxBackups,
			MaxAgeDays: cfg.Logging.AccessLogRotate.MaxAgeDays,
			Compress:   cfg.Logging.AccessLogRotate.Compress,
		})
		if err != nil {
			return nil, nil, false, err
		}
		return log.New(w, "", 0), w, false, nil
	}

	dir := filepath.Dir(path)
	if strings.TrimSpace(dir) != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, false, err
		}
	}
	// #nosec G304 -- access_log_path comes from trusted config/env.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, false, err
	}
	return log.New(f, "", 0), f, false, nil
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

func writePIDFile(cfg *config.Config) (io.Closer, error) {
	if cfg == nil {
		return nil, nil
	}
	path := strings.TrimSpace(cfg.Server.PidFile)
	if path == "" {
		return nil, nil
	}
	dir := filepath.Dir(path)
	if strings.TrimSpace(dir) != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}

	tmp := path + ".tmp"
	pid := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(tmp, []byte(pid), 0o600); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	return closerFunc(func() error { return os.Remove(path) }), nil
}

type reopener interface {
	Reopen() error
}

// installReloadSignalHandler reloads config-backed state on SIGHUP and
// reopens a rotating access log so external rotation is picked up.
func installReloadSignalHandler(st *state, accessLog io.Closer) {
	if st == nil {
		return
	}
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGHUP)
	go func() {
		for range ch {
			if r, ok := accessLog.(reopener); ok {
				if err := r.Reopen(); err != nil {
					log.Printf("reopen access log failed: %v", err)
				}
			}
			res, err := st.reloadAll()
			if err != nil {
				log.Printf("reload failed (signal): %v", err)
				continue
			}
			log.Printf("reload ok (signal): config=%q rules_file=%q rules=%d", st.cfgPath, res.RulesFile, res.Rules)
		}
	}()
}
