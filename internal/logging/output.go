package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"
)

// stderr receives ERROR and FATAL lines. Tests swap it.
var stderr io.Writer = os.Stderr

// write formats one line as
//
//	[timestamp] [LEVEL] name: message | k1=v1 k2=v2
//
// with fields sorted by key. Field priority, lowest first: context fields,
// persistent fields, call fields.
func (l *Logger) write(level LogLevel, msg string, fields []LogField) {
	merged := extractContextFields(l.ctx)
	if merged == nil && (len(l.fields) > 0 || len(fields) > 0) {
		merged = make(map[string]interface{}, len(l.fields)+len(fields))
	}
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s: %s", GetTimestamp(), level, l.name, msg)
	if len(merged) > 0 {
		keys := make([]string, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, merged[k])
		}
	}

	if level >= ERROR {
		fmt.Fprintln(stderr, b.String())
		return
	}
	log.Println(b.String())
}

func (l *Logger) logf(level LogLevel, msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.write(level, msg, nil)
}

// GetTimestamp returns the current time in RFC3339, or LOG_TIMESTAMP when set.
func GetTimestamp() string {
	if override := os.Getenv("LOG_TIMESTAMP"); override != "" {
		return override
	}
	return time.Now().Format(time.RFC3339)
}
