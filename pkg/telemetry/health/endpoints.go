package health

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// VersionInfo contains build and version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// LivenessHandler serves the liveness probe.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, c.CheckLiveness(r.Context()))
	}
}

// ReadinessHandler serves the readiness probe. It answers 200 when ready or
// degraded and 503 when a critical check fails or the broker is draining.
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "counters":    {"status": "ok", "critical": true, "duration_ms": 0.4},
//	        "request_log": {"status": "unhealthy", "critical": false, "message": "database is locked"}
//	    },
//	    "timestamp": "2026-10-19T10:30:00Z"
//	}
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.CheckReadiness(r.Context())

		code := http.StatusOK
		if status.Status == StatusUnhealthy || status.Status == StatusDraining {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, r, code, status)
	}
}

// VersionHandler serves build information.
func VersionHandler(version, commit, buildTime string) http.HandlerFunc {
	info := VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, info)
	}
}

// Mount registers /health, /ready and /version on mux for GET and HEAD.
func Mount(mux *http.ServeMux, checker *Checker, version, commit, buildTime string) {
	mux.HandleFunc("GET /health", checker.LivenessHandler())
	mux.HandleFunc("GET /ready", checker.ReadinessHandler())
	mux.HandleFunc("GET /version", VersionHandler(version, commit, buildTime))
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(v)
	}
}
