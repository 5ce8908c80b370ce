package logx

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
)

const (
	colorReset  = "\x1b[0m"
	colorGreen  = "\x1b[97;42m"
	colorWhite  = "\x1b[90;47m"
	colorYellow = "\x1b[90;43m"
	colorRed    = "\x1b[97;41m"
)

// ColorEnabled reports whether stdout is a terminal and NO_COLOR is unset.
func ColorEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ColorizeStatusWith wraps the status code in an ANSI colour by class.
func ColorizeStatusWith(status int, color bool) string {
	s := fmt.Sprintf("%3d", status)
	if !color {
		return s
	}
	var c string
	switch {
	case status >= 200 && status < 300:
		c = colorGreen
	case status >= 300 && status < 400:
		c = colorWhite
	case status >= 400 && status < 500:
		c = colorYellow
	default:
		c = colorRed
	}
	return c + " " + s + " " + colorReset
}

// FormatRequestLineWithColor is the default access line used when no
// template is configured. Fields are appended as sorted key=value pairs.
func FormatRequestLineWithColor(e Entry, color bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[FP] %s | %s | %13v | %15s | %-7s %s",
		e.Time.Format("2006/01/02 - 15:04:05"),
		ColorizeStatusWith(e.Status, color),
		e.Latency,
		strings.TrimSpace(e.ClientIP),
		strings.TrimSpace(e.Method),
		e.Path,
	)
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fieldString(e.Fields[k])
		if v == "" {
			continue
		}
		if strings.ContainsAny(v, " \t\"") {
			v = fmt.Sprintf("%q", v)
		}
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(v)
	}
	return b.String()
}
