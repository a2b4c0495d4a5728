package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	generationRequested atomic.Int64
	generationSucceeded atomic.Int64
	generationFailed    atomic.Int64
	publishAttempts     atomic.Int64
	publishSucceeded    atomic.Int64
	publishFailed       atomic.Int64
	credentialRefreshes atomic.Int64
	credentialInvalid   atomic.Int64
)

func IncGenerationRequested() { generationRequested.Add(1) }
func IncGenerationSucceeded() { generationSucceeded.Add(1) }
func IncGenerationFailed()    { generationFailed.Add(1) }
func IncPublishAttempt()      { publishAttempts.Add(1) }
func IncPublishSucceeded()    { publishSucceeded.Add(1) }
func IncPublishFailed()       { publishFailed.Add(1) }
func IncCredentialRefresh()   { credentialRefreshes.Add(1) }
func IncCredentialInvalid()   { credentialInvalid.Add(1) }

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	writeCounter(w, "brickfolio_marketing_generation_requested_total", "Content generation pair requests received.", generationRequested.Load())
	writeCounter(w, "brickfolio_marketing_generation_succeeded_total", "Content generation pairs that produced a draft.", generationSucceeded.Load())
	writeCounter(w, "brickfolio_marketing_generation_failed_total", "Content generation pairs that failed.", generationFailed.Load())
	writeCounter(w, "brickfolio_marketing_publish_attempts_total", "Publish attempts dispatched to channel publishers.", publishAttempts.Load())
	writeCounter(w, "brickfolio_marketing_publish_succeeded_total", "Publish attempts that reached published.", publishSucceeded.Load())
	writeCounter(w, "brickfolio_marketing_publish_failed_total", "Publish attempts that failed.", publishFailed.Load())
	writeCounter(w, "brickfolio_marketing_credential_refreshes_total", "OAuth token refreshes performed by the vault.", credentialRefreshes.Load())
	writeCounter(w, "brickfolio_marketing_credential_invalid_total", "Credentials marked invalid after a failed refresh.", credentialInvalid.Load())
}

func writeCounter(w http.ResponseWriter, name, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %d\n", name, value)
}

func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WritePrometheus(w)
	})
}
