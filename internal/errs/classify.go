package errs

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
)

// ClassifyHTTP classifies a failed upstream call by its HTTP status code
// (0 if the call never got a response) and the lowercased error text, the
// same heuristics spec.md §4.2/§4.4 describe: 401/403/429, any 5xx,
// timeouts, connection/network/SSL errors and "banned"/"blocked" text are
// switchable; everything else is terminal.
func ClassifyHTTP(statusCode int, err error) Classification {
	if statusCode == 429 {
		return ClassRateLimited
	}
	if statusCode == 401 || statusCode == 403 || (statusCode >= 500 && statusCode < 600) {
		return ClassTransient
	}
	if err == nil {
		if statusCode != 0 && statusCode < 200 || statusCode >= 300 {
			return ClassTerminal
		}
		return ClassSuccess
	}
	if isTimeoutOrNetwork(err) {
		return ClassTransient
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"banned", "blocked", "rate limit", "too many requests"} {
		if strings.Contains(msg, needle) {
			return ClassRateLimited
		}
	}
	for _, needle := range []string{"timeout", "timed out", "connection", "ssl", "network", "tls", "eof", "reset by peer"} {
		if strings.Contains(msg, needle) {
			return ClassTransient
		}
	}
	return ClassTerminal
}

func isTimeoutOrNetwork(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// StatusFromText extracts a leading HTTP-style status code from an
// upstream error message such as "503 service unavailable", returning 0
// if none is present. Several adapters in the corpus surface HTTP
// failures as plain strings rather than typed errors.
func StatusFromText(msg string) int {
	msg = strings.TrimSpace(msg)
	i := 0
	for i < len(msg) && msg[i] >= '0' && msg[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0
	}
	code, err := strconv.Atoi(msg[:i])
	if err != nil {
		return 0
	}
	return code
}
