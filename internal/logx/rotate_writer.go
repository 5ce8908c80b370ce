package logx

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const backupStampLayout = "20060102-150405.000000000"

type RotateOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	// MaxAgeDays removes backups older than this many days; 0 keeps them.
	MaxAgeDays int
	Compress   bool
	Now        func() time.Time
}

func (o RotateOptions) validate() error {
	switch {
	case strings.TrimSpace(o.Path) == "":
		return errors.New("access log rotate path is empty")
	case o.MaxSizeMB <= 0:
		return errors.New("max_size_mb must be > 0")
	case o.MaxBackups <= 0:
		return errors.New("max_backups must be > 0")
	case o.MaxAgeDays < 0:
		return errors.New("max_age_days must be >= 0")
	}
	return nil
}

// RotateWriter is an append-only log file that is moved aside to
// "<path>.<stamp>[.gz]" when it would grow past MaxSizeMB or when the local
// day changes.
type RotateWriter struct {
	opts  RotateOptions
	limit int64

	mu     sync.Mutex
	f      *os.File
	size   int64
	day    string
	closed bool
}

type backup struct {
	path  string
	stamp time.Time
}

func NewRotateWriter(opts RotateOptions) (*RotateWriter, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.Path = strings.TrimSpace(opts.Path)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	w := &RotateWriter{
		opts:  opts,
		limit: int64(opts.MaxSizeMB) << 20,
	}
	if err := w.openLocked(w.now()); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotateWriter) now() time.Time { return w.opts.Now().In(time.Local) }

func (w *RotateWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}
	now := w.now()
	if w.dueLocked(now, len(p)) {
		if err := w.rotateLocked(now); err != nil {
			return 0, err
		}
	}
	if w.f == nil {
		return 0, errors.New("access log writer is not initialized")
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotateWriter) dueLocked(now time.Time, incoming int) bool {
	if localDay(now) != w.day {
		return true
	}
	return w.size > 0 && w.size+int64(incoming) > w.limit
}

// Reopen closes and reopens the active file so external tools may move it.
func (w *RotateWriter) Reopen() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return os.ErrClosed
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	return w.openLocked(w.now())
}

func (w *RotateWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func (w *RotateWriter) rotateLocked(now time.Time) error {
	if w.f != nil {
		if err := w.f.Close(); err != nil {
			return err
		}
		w.f = nil
	}

	dst := w.opts.Path + "." + now.Format(backupStampLayout)
	err := os.Rename(w.opts.Path, dst)
	switch {
	case err == nil:
		if w.opts.Compress {
			if gzErr := gzipFile(dst); gzErr != nil {
				_ = w.openLocked(now)
				return fmt.Errorf("compress %s: %w", dst, gzErr)
			}
		}
	case errors.Is(err, os.ErrNotExist):
		// removed externally; start a fresh file
	default:
		if openErr := w.openLocked(now); openErr != nil {
			return openErr
		}
		return err
	}

	if err := w.openLocked(now); err != nil {
		return err
	}
	w.pruneLocked(now)
	return nil
}

func (w *RotateWriter) openLocked(now time.Time) error {
	// #nosec G304 -- access_log_path comes from trusted config/env.
	f, err := os.OpenFile(w.opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.size = st.Size()
	w.day = localDay(now)
	return nil
}

func (w *RotateWriter) pruneLocked(now time.Time) {
	backups, err := w.backups()
	if err != nil {
		return
	}
	var cutoff time.Time
	if w.opts.MaxAgeDays > 0 {
		cutoff = now.AddDate(0, 0, -w.opts.MaxAgeDays)
	}
	for i, b := range backups {
		if i >= w.opts.MaxBackups || (!cutoff.IsZero() && b.stamp.Before(cutoff)) {
			_ = os.Remove(b.path)
		}
	}
}

// backups lists rotated files, newest first.
func (w *RotateWriter) backups() ([]backup, error) {
	dir := filepath.Dir(w.opts.Path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	prefix := filepath.Base(w.opts.Path) + "."
	var out []backup
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		stamp, ok := strings.CutPrefix(ent.Name(), prefix)
		if !ok {
			continue
		}
		when, err := time.ParseInLocation(backupStampLayout, strings.TrimSuffix(stamp, ".gz"), time.Local)
		if err != nil {
			continue
		}
		out = append(out, backup{path: filepath.Join(dir, ent.Name()), stamp: when})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].stamp.After(out[j].stamp) })
	return out, nil
}

// gzipFile replaces path with path+".gz".
func gzipFile(path string) (err error) {
	// #nosec G304 -- rotated log file path.
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	tmp := path + ".gz.tmp"
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	gz := gzip.NewWriter(dst)
	if _, err = io.Copy(gz, src); err != nil {
		_ = gz.Close()
		_ = dst.Close()
		return err
	}
	if err = gz.Close(); err != nil {
		_ = dst.Close()
		return err
	}
	if err = dst.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp, path+".gz"); err != nil {
		return err
	}
	return os.Remove(path)
}

func localDay(ts time.Time) string {
	return ts.In(time.Local).Format("20060102")
}
