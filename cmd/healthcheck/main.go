// Command healthcheck is the Docker HEALTHCHECK probe: it GETs the
// service health endpoint and exits 0 when the service answers 200.
//
// Optional environment variables:
//   - HEALTHCHECK_URL (default: http://127.0.0.1:8000/health)
//   - HEALTHCHECK_TIMEOUT (seconds, default: 5)
package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultURL     = "http://127.0.0.1:8000/health"
	defaultTimeout = 5 * time.Second
)

func main() {
	if !checkHealth() {
		os.Exit(1)
	}
}

func checkHealth() bool {
	url := os.Getenv("HEALTHCHECK_URL")
	if url == "" {
		url = defaultURL
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		fmt.Fprintf(os.Stderr, "warning: invalid HEALTHCHECK_URL %q, using default\n", url)
		url = defaultURL
	}

	client := &http.Client{Timeout: loadTimeout()}
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func loadTimeout() time.Duration {
	v := os.Getenv("HEALTHCHECK_TIMEOUT")
	if v == "" {
		return defaultTimeout
	}
	seconds, err := strconv.ParseFloat(v, 64)
	if err != nil || seconds <= 0 {
		return defaultTimeout
	}
	return time.Duration(seconds * float64(time.Second))
}
