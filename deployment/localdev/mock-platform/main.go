package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

type anomaly struct {
	ID          string             `json:"id"`
	Severity    string             `json:"severity"`
	Source      string             `json:"source"`
	Description string             `json:"description"`
	Confidence  float64            `json:"confidence"`
	Metrics     map[string]float64 `json:"metrics"`
	Status      string             `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type mockPlatform struct {
	mu        sync.Mutex
	anomalies map[string]*anomaly
	records   []json.RawMessage
}

func newMockPlatform() *mockPlatform {
	now := time.Now().UTC()
	return &mockPlatform{
		anomalies: map[string]*anomaly{
			"anom-001": {
				ID:          "anom-001",
				Severity:    "critical",
				Source:      "api-gateway",
				Description: "cpu saturation on api tier",
				Confidence:  0.92,
				Metrics:     map[string]float64{"cpu_usage": 94, "error_rate": 6.2},
				Status:      "open",
				CreatedAt:   now,
				UpdatedAt:   now,
			},
			"anom-002": {
				ID:          "anom-002",
				Severity:    "low",
				Source:      "batch-jobs",
				Description: "slow nightly export",
				Confidence:  0.41,
				Metrics:     map[string]float64{"cpu_usage": 35},
				Status:      "open",
				CreatedAt:   now,
				UpdatedAt:   now,
			},
		},
	}
}

func main() {
	platform := newMockPlatform()
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/anomalies", func(w http.ResponseWriter, r *http.Request) {
		platform.mu.Lock()
		defer platform.mu.Unlock()
		open := make([]*anomaly, 0)
		for _, a := range platform.anomalies {
			if a.Status == "open" {
				open = append(open, a)
			}
		}
		writeJSON(w, map[string]any{"anomalies": open})
	})

	mux.HandleFunc("/api/v1/anomalies/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/anomalies/")
		id := strings.TrimSuffix(rest, "/status")

		platform.mu.Lock()
		defer platform.mu.Unlock()
		a, ok := platform.anomalies[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if strings.HasSuffix(rest, "/status") && r.Method == http.MethodPut {
			var payload struct {
				Status string `json:"status"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			a.Status = payload.Status
			a.UpdatedAt = time.Now().UTC()
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, a)
	})

	mux.HandleFunc("/api/v1/system-state/latest", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"cpu_usage":       55 + rand.Float64()*20,
			"memory_usage":    60 + rand.Float64()*10,
			"disk_usage":      40.0,
			"error_rate":      rand.Float64() * 3,
			"network_latency": 25 + rand.Float64()*15,
			"timestamp":       time.Now().UTC(),
		})
	})

	mux.HandleFunc("/api/v1/remediations", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var record json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		platform.mu.Lock()
		platform.records = append(platform.records, record)
		platform.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("/api/v1/execute", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var payload struct {
			ActionType string `json:"action_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		// Simulate work and an occasional failure.
		time.Sleep(time.Duration(100+rand.Intn(400)) * time.Millisecond)
		writeJSON(w, map[string]any{
			"success":        rand.Float64() > 0.2,
			"execution_time": rand.Float64() * 2,
			"message":        "executed " + payload.ActionType,
		})
	})

	logger := log.New(log.Writer(), "platform-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8080",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8080")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
