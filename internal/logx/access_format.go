package logx

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Entry is one finished request as seen by the access logger.
type Entry struct {
	Time     time.Time
	Status   int
	Latency  time.Duration
	ClientIP string
	Method   string
	Path     string
	// Fields carries request-scoped values such as request_id or filter.
	Fields map[string]any
}

type segment struct {
	text  string
	isVar bool
}

// AccessLogFormatter renders entries with an nginx-style "$var" template.
type AccessLogFormatter struct {
	segs []segment
}

var accessLogFormatPresets = map[string]string{
	"fieldproxy_combined": "$time_local | $status | $latency | $client_ip | $method $path | request_id=$request_id rule=$rule fields=$fields filter=$filter upstream_status=$upstream_status bytes_in=$bytes_in bytes_out=$bytes_out",
	"fieldproxy_minimal":  "$time_local | $status | $latency | $method $path | filter=$filter bytes_out=$bytes_out",
}

// Variables filled from Entry; everything else comes from Entry.Fields.
var builtinVars = []string{"time_local", "status", "latency", "latency_ms", "client_ip", "method", "path"}

var fieldVars = []string{"request_id", "rule", "fields", "filter", "upstream_status", "bytes_in", "bytes_out", "user_agent"}

var allowedAccessLogVars = func() map[string]struct{} {
	m := make(map[string]struct{}, len(builtinVars)+len(fieldVars))
	for _, v := range builtinVars {
		m[v] = struct{}{}
	}
	for _, v := range fieldVars {
		m[v] = struct{}{}
	}
	return m
}()

// ResolveAccessLogFormat returns format when set, otherwise the named preset.
func ResolveAccessLogFormat(format string, preset string) (string, error) {
	if strings.TrimSpace(format) != "" {
		return format, nil
	}
	name := strings.ToLower(strings.TrimSpace(preset))
	if name == "" {
		return "", nil
	}
	tpl, ok := accessLogFormatPresets[name]
	if !ok {
		return "", fmt.Errorf("invalid access_log_format_preset: %q", preset)
	}
	return tpl, nil
}

// CompileAccessLogFormat parses a template. "$$" is a literal dollar.
// A blank template yields a nil formatter.
func CompileAccessLogFormat(format string) (*AccessLogFormatter, error) {
	if strings.TrimSpace(format) == "" {
		return nil, nil
	}
	var (
		segs []segment
		lit  strings.Builder
	)
	for i := 0; i < len(format); i++ {
		if format[i] != '$' {
			lit.WriteByte(format[i])
			continue
		}
		if i+1 < len(format) && format[i+1] == '$' {
			lit.WriteByte('$')
			i++
			continue
		}
		end := i + 1
		for end < len(format) && isVarByte(format[end]) {
			end++
		}
		name := format[i+1 : end]
		if name == "" {
			return nil, fmt.Errorf("invalid access_log_format: missing variable name after '$' at pos %d", i)
		}
		if _, ok := allowedAccessLogVars[name]; !ok {
			return nil, fmt.Errorf("invalid access_log_format: unknown variable $%s", name)
		}
		if lit.Len() > 0 {
			segs = append(segs, segment{text: lit.String()})
			lit.Reset()
		}
		segs = append(segs, segment{text: name, isVar: true})
		i = end - 1
	}
	if lit.Len() > 0 {
		segs = append(segs, segment{text: lit.String()})
	}
	return &AccessLogFormatter{segs: segs}, nil
}

func isVarByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

// Format renders e. Missing or empty variables render as "-".
func (f *AccessLogFormatter) Format(e Entry, color bool) string {
	if f == nil || len(f.segs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range f.segs {
		if !s.isVar {
			b.WriteString(s.text)
			continue
		}
		v := e.lookup(s.text, color)
		if v == "" {
			v = "-"
		}
		b.WriteString(v)
	}
	return b.String()
}

func (e Entry) lookup(name string, color bool) string {
	switch name {
	case "time_local":
		return e.Time.Format("2006/01/02 - 15:04:05")
	case "status":
		return ColorizeStatusWith(e.Status, color)
	case "latency":
		return e.Latency.String()
	case "latency_ms":
		return strconv.FormatInt(e.Latency.Milliseconds(), 10)
	case "client_ip":
		return strings.TrimSpace(e.ClientIP)
	case "method":
		return strings.TrimSpace(e.Method)
	case "path":
		return e.Path
	}
	return fieldString(e.Fields[name])
}

func fieldString(v any) string {
	if v == nil {
		return ""
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "<nil>" {
		return ""
	}
	return s
}

// AccessLogAllowedVars lists every variable a template may use.
func AccessLogAllowedVars() []string {
	out := make([]string, 0, len(allowedAccessLogVars))
	for k := range allowedAccessLogVars {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
