// Package log builds the process logger.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
)

// Logger is a go-kit logger whose level can be changed at runtime.
type Logger struct {
	base log.Logger

	mtx      sync.RWMutex
	level    dslog.Level
	filtered log.Logger
}

// NewLogger returns a Logger writing to w in the given format. Entries below
// lvl are dropped.
func NewLogger(format dslog.Format, lvl dslog.Level, w io.Writer) *Logger {
	var base log.Logger
	if format.String() == "json" {
		base = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		base = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}
	base = log.With(base, "ts", log.DefaultTimestampUTC, "caller", log.Caller(4))

	l := &Logger{base: base}
	l.SetLevel(lvl)
	return l
}

// Log implements log.Logger.
func (l *Logger) Log(keyvals ...interface{}) error {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.filtered.Log(keyvals...)
}

// SetLevel changes the minimum level of logged entries.
func (l *Logger) SetLevel(lvl dslog.Level) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	l.level = lvl
	if lvl.Option == nil {
		l.filtered = l.base
		return
	}
	l.filtered = level.NewFilter(l.base, lvl.Option)
}

// Level returns the current minimum level.
func (l *Logger) Level() dslog.Level {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.level
}

// LevelHandler returns an HTTP handler which reports the current log level
// on GET and changes it to the log_level form value on POST.
func LevelHandler(l *Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.Method {
		case http.MethodGet:
			current := l.Level()
			writeJSON(w, http.StatusOK, map[string]string{
				"message": fmt.Sprintf("Current log level is %s", current.String()),
			})

		case http.MethodPost:
			var lvl dslog.Level
			if err := lvl.Set(r.FormValue("log_level")); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"status":  "failed",
					"message": err.Error(),
				})
				return
			}

			l.SetLevel(lvl)
			level.Info(l).Log("msg", "log level changed", "level", lvl.String())
			writeJSON(w, http.StatusOK, map[string]string{
				"status":  "success",
				"message": fmt.Sprintf("Log level set to %s", lvl.String()),
			})

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
