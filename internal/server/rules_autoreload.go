package server

import (
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/r9s-ai/fieldproxy/pkg/config"
)

// installRulesAutoReload watches the rules file's directory, since editors
// and config management usually replace the file rather than write it.
func installRulesAutoReload(cfg *config.Config, st *state) (io.Closer, error) {
	if cfg == nil || st == nil || !cfg.Filter.AutoReload.Enabled {
		return nil, nil
	}
	file := strings.TrimSpace(cfg.Filter.RulesFile)
	if file == "" {
		return nil, nil
	}
	file = filepath.Clean(file)
	debounce := time.Duration(cfg.Filter.AutoReload.DebounceMs) * time.Millisecond

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(file)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	triggerCh := make(chan struct{}, 1)

	go func() {
		defer close(doneCh)
		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		resetTimer := func() {
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)
			timerC = timer.C
		}
		runReload := func() {
			res, err := st.reloadRules()
			if err != nil {
				log.Printf("reload failed (rules auto): %v", err)
				return
			}
			log.Printf("reload ok (rules auto): rules_file=%q rules=%d", res.RulesFile, res.Rules)
		}

		for {
			select {
			case <-stopCh:
				if timer != nil {
					timer.Stop()
				}
				return
			case <-timerC:
				timerC = nil
				runReload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("rules auto-reload watcher error: %v", err)
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if shouldTriggerRulesReload(evt, file) {
					select {
					case triggerCh <- struct{}{}:
					default:
					}
				}
			case <-triggerCh:
				resetTimer()
			}
		}
	}()

	log.Printf("rules auto-reload enabled: file=%q debounce_ms=%d", file, cfg.Filter.AutoReload.DebounceMs)
	return closerFunc(func() error {
		close(stopCh)
		_ = watcher.Close()
		<-doneCh
		return nil
	}), nil
}

func shouldTriggerRulesReload(evt fsnotify.Event, file string) bool {
	if strings.TrimSpace(evt.Name) == "" {
		return false
	}
	if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Chmod) == 0 {
		return false
	}
	return filepath.Clean(evt.Name) == file
}
