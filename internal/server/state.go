package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/r9s-ai/fieldproxy/pkg/config"
	"github.com/r9s-ai/fieldproxy/pkg/fieldfilter"
	"github.com/r9s-ai/fieldproxy/pkg/rules"
)

// state is the part of the runtime that a reload may change.
type state struct {
	cfgPath   string
	startedAt time.Time

	rules *rules.Registry
	cache *fieldfilter.TreeCache

	mu        sync.RWMutex
	apiKey    string
	rulesFile string
	reloadMu  sync.Mutex
	reloads   atomic.Int64
}

func newState(cfgPath string, cfg *config.Config, reg *rules.Registry, cache *fieldfilter.TreeCache) *state {
	if reg == nil {
		reg = rules.NewRegistry()
	}
	return &state{
		cfgPath:   cfgPath,
		startedAt: time.Now(),
		rules:     reg,
		cache:     cache,
		apiKey:    cfg.Auth.APIKey,
		rulesFile: strings.TrimSpace(cfg.Filter.RulesFile),
	}
}

func (s *state) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey
}

func (s *state) RulesFile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rulesFile
}

type reloadResult struct {
	RulesFile string
	Rules     int
}

// reloadRules re-reads the rules file only.
func (s *state) reloadRules() (reloadResult, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	return s.reloadRulesLocked(s.RulesFile())
}

func (s *state) reloadRulesLocked(file string) (reloadResult, error) {
	if file == "" {
		s.rules.Replace(nil)
		return reloadResult{}, nil
	}
	if err := s.rules.ReloadFromFile(file); err != nil {
		return reloadResult{}, err
	}
	s.reloads.Add(1)
	return reloadResult{RulesFile: file, Rules: s.rules.Len()}, nil
}

// reloadAll re-reads the config file for the reloadable keys (auth.api_key
// and filter.rules_file) and then the rules file. Nothing changes on error.
func (s *state) reloadAll() (reloadResult, error) {
	if s.cfgPath == "" {
		return reloadResult{}, errors.New("reload: no config path")
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	cfg, err := config.Load(s.cfgPath)
	if err != nil {
		return reloadResult{}, fmt.Errorf("reload config %q: %w", s.cfgPath, err)
	}
	file := strings.TrimSpace(cfg.Filter.RulesFile)
	res, err := s.reloadRulesLocked(file)
	if err != nil {
		return reloadResult{}, err
	}
	s.mu.Lock()
	s.apiKey = cfg.Auth.APIKey
	s.rulesFile = file
	s.mu.Unlock()
	return res, nil
}
