// Command dummy-upstream is a stand-in adapter service for local runs. It
// answers every path with a JSON envelope the marketplace can annotate.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func main() {
	addr := flag.String("addr", ":3001", "listen address")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "dummy-upstream").Logger()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": true, "code": http.StatusOK})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Info().Str("method", r.Method).Str("path", r.URL.Path).Str("request_id", r.Header.Get("X-Request-ID")).Msg("received request")

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": true,
			"code":   http.StatusOK,
			"data": map[string]interface{}{
				"message": "Hello from dummy upstream on " + *addr,
				"path":    r.URL.Path,
				"query":   r.URL.RawQuery,
				"at":      time.Now().UTC(),
			},
		})
	})

	log.Info().Str("addr", *addr).Msg("dummy upstream starting")
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal().Err(err).Msg("dummy upstream stopped")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
