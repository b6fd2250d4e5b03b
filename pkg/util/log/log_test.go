package log

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLevel(t *testing.T, s string) dslog.Level {
	t.Helper()

	var lvl dslog.Level
	require.NoError(t, lvl.Set(s))
	return lvl
}

func newFormat(t *testing.T, s string) dslog.Format {
	t.Helper()

	var format dslog.Format
	require.NoError(t, format.Set(s))
	return format
}

func TestNewLogger(t *testing.T) {
	t.Run("Filters by level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(newFormat(t, "logfmt"), newLevel(t, "info"), &buf)

		level.Debug(logger).Log("msg", "hidden")
		level.Info(logger).Log("msg", "shown")

		require.NotContains(t, buf.String(), "hidden")
		require.Contains(t, buf.String(), "msg=shown")
		require.Contains(t, buf.String(), "level=info")
	})

	t.Run("JSON format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(newFormat(t, "json"), newLevel(t, "debug"), &buf)

		level.Debug(logger).Log("msg", "hello")
		require.Contains(t, buf.String(), `"msg":"hello"`)
	})

	t.Run("Level can be changed", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(newFormat(t, "logfmt"), newLevel(t, "warn"), &buf)

		level.Info(logger).Log("msg", "first")
		logger.SetLevel(newLevel(t, "info"))
		level.Info(logger).Log("msg", "second")

		require.NotContains(t, buf.String(), "first")
		require.Contains(t, buf.String(), "second")
		require.Equal(t, "info", logger.Level().String())
	})
}

func TestLevelHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(newFormat(t, "logfmt"), newLevel(t, "info"), &buf)

	testCases := []struct {
		testName           string
		method             string
		targetLogLevel     string
		expectedLogLevel   string
		expectedStatusCode int
	}{
		{"GetLogLevel", http.MethodGet, "", "info", http.StatusOK},
		{"PostLogLevelInvalid", http.MethodPost, "invalid", "info", http.StatusBadRequest},
		{"PostLogLevelEmpty", http.MethodPost, "", "info", http.StatusBadRequest},
		{"PostLogLevelDebug", http.MethodPost, "debug", "debug", http.StatusOK},
		{"DeleteNotAllowed", http.MethodDelete, "", "debug", http.StatusMethodNotAllowed},
	}

	for _, testCase := range testCases {
		t.Run(testCase.testName, func(t *testing.T) {
			form := url.Values{"log_level": {testCase.targetLogLevel}}
			req := httptest.NewRequest(testCase.method, "/", strings.NewReader(form.Encode()))
			req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

			rr := httptest.NewRecorder()
			LevelHandler(logger).ServeHTTP(rr, req)

			assert.Equal(t, testCase.expectedStatusCode, rr.Code)
			assert.Equal(t, testCase.expectedLogLevel, logger.Level().String())
		})
	}
}
