// Package logging provides structured logging for the dispatch core and
// its collaborators.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var (
	mu     sync.Mutex
	logger = newDefault()
)

func newDefault() zerolog.Logger {
	var w io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// SetVerbose raises the global level to Debug.
func SetVerbose(verbose bool) {
	mu.Lock()
	defer mu.Unlock()
	if verbose {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
}

// SetOutput redirects the logger's writer, primarily for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Output(w)
}

// L returns the current process-wide logger.
func L() *zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return &logger
}

// LogAPIRequest logs an outbound AiClient call at debug level.
func LogAPIRequest(provider, model string, promptLength int) {
	L().Debug().Str("provider", provider).Str("model", model).Int("prompt_length", promptLength).Msg("dispatching request")
}

// LogAPIResponse logs a completed AiClient call at debug level.
func LogAPIResponse(provider string, responseLength int, duration time.Duration) {
	L().Debug().Str("provider", provider).Int("response_length", responseLength).Dur("duration", duration).Msg("request completed")
}

// LogRetry logs a retry attempt at warn level.
func LogRetry(attempt, maxAttempts int, err error, delay time.Duration) {
	L().Warn().Int("attempt", attempt).Int("max_attempts", maxAttempts).Err(err).Dur("delay", delay).Msg("retrying after failure")
}

// LogDispatchProgress logs an "N/M processed" diagnostic line to stdout,
// matching spec §6's required diagnostic output format exactly.
func LogDispatchProgress(completed, total int, verb string) {
	os.Stdout.WriteString(progressLine(completed, total, verb))
}

func progressLine(completed, total int, verb string) string {
	return itoa(completed) + "/" + itoa(total) + " commits " + verb + "\n"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// LogCircuitBreaker logs a circuit breaker state transition at debug level.
func LogCircuitBreaker(state string, failures int) {
	L().Debug().Str("state", state).Int("consecutive_failures", failures).Msg("circuit breaker state")
}
