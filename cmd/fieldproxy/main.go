package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/r9s-ai/fieldproxy/internal/server"
	"github.com/r9s-ai/fieldproxy/internal/version"
)

// Must match the pkg/config default.
const defaultPIDFile = "/var/run/fieldproxy.pid"

func main() {
	var cfgPath string
	var signalCmd string
	var showVersion bool
	flag.StringVar(&cfgPath, "config", "fieldproxy.yaml", "path to config yaml")
	flag.StringVar(&cfgPath, "c", "fieldproxy.yaml", "path to config yaml (alias of --config)")
	flag.StringVar(&signalCmd, "s", "", "send signal to a running fieldproxy (supported: reload)")
	flag.BoolVar(&showVersion, "version", false, "show version information")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Get())
		return
	}

	if cmd := strings.ToLower(strings.TrimSpace(signalCmd)); cmd != "" {
		if cmd != "reload" {
			_, _ = fmt.Fprintln(os.Stderr, "unsupported -s value: "+cmd+" (supported: reload)")
			os.Exit(2)
		}
		if err := sendReloadSignal(cfgPath); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		return
	}

	if err := server.Run(cfgPath); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func sendReloadSignal(cfgPath string) error {
	pidFile, err := pidFileFromConfig(cfgPath)
	if err != nil {
		return err
	}
	pid, err := readPID(pidFile)
	if err != nil {
		return err
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process pid=%d: %w", pid, err)
	}
	if err := p.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("send SIGHUP pid=%d: %w", pid, err)
	}
	return nil
}

func readPID(pidFile string) (int, error) {
	// #nosec G304 -- pid file path comes from trusted config/env.
	b, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, fmt.Errorf("read pid file %q: %w", pidFile, err)
	}
	s := strings.TrimSpace(string(b))
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %q: %q", pidFile, s)
	}
	return pid, nil
}

// pidFileFromConfig reads only server.pid_file so that -s works even when
// the rest of the config would not validate in this environment.
func pidFileFromConfig(cfgPath string) (string, error) {
	if v := strings.TrimSpace(os.Getenv("FP_PID_FILE")); v != "" {
		return v, nil
	}
	path := strings.TrimSpace(cfgPath)
	if path == "" {
		return defaultPIDFile, nil
	}
	// #nosec G304 -- config path comes from trusted flag.
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read config %q: %w", path, err)
	}
	var partial struct {
		Server struct {
			PidFile string `yaml:"pid_file"`
		} `yaml:"server"`
	}
	if err := yaml.Unmarshal(b, &partial); err != nil {
		return "", fmt.Errorf("parse config %q: %w", path, err)
	}
	if v := strings.TrimSpace(partial.Server.PidFile); v != "" {
		return v, nil
	}
	return defaultPIDFile, nil
}
