package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pulseboard/internal/engine"
	"pulseboard/internal/metrics"
	"pulseboard/internal/models"
)

// IngestHandler accepts webhook readings over HTTP and feeds them to the
// engine. Each reading triggers one propagation pass; the response reports
// which alerts newly fired.
type IngestHandler struct {
	engine      *engine.Engine
	maxBodySize int64
}

// IngestConfig holds configuration for the ingest handler
type IngestConfig struct {
	Engine      *engine.Engine
	MaxBodySize int64
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(cfg IngestConfig) *IngestHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = 1 * 1024 * 1024 // 1MB default
	}
	return &IngestHandler{engine: cfg.Engine, maxBodySize: maxBodySize}
}

// ReadingInput is the input format for one webhook reading. Timestamp is
// optional; missing or unparseable timestamps default to the arrival time.
type ReadingInput struct {
	SourceID  string   `json:"source_id"`
	Value     *float64 `json:"value"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// IngestRequest represents the incoming JSON payload (single or batch)
type IngestRequest struct {
	// Single reading (if Readings is empty)
	Reading *ReadingInput `json:"reading,omitempty"`

	// Batch of readings
	Readings []ReadingInput `json:"readings,omitempty"`
}

// IngestResponse is the response returned to clients
type IngestResponse struct {
	Success  bool                `json:"success"`
	Accepted int                 `json:"accepted"`
	Rejected int                 `json:"rejected"`
	Errors   []IngestError       `json:"errors,omitempty"`
	Fired    []models.AlertEvent `json:"fired,omitempty"`
}

// IngestError describes a validation error for a specific reading
type IngestError struct {
	Index    int    `json:"index"`
	SourceID string `json:"source_id,omitempty"`
	Error    string `json:"error"`
}

// ServeHTTP handles the ingest HTTP request
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" && contentType != "" {
		h.writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	readings, err := h.parseBody(body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(readings) == 0 {
		h.writeError(w, http.StatusBadRequest, "no readings provided")
		return
	}

	response := h.processReadings(readings)

	w.Header().Set("Content-Type", "application/json")
	if response.Rejected > 0 && response.Accepted == 0 {
		w.WriteHeader(http.StatusBadRequest)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// parseBody parses the JSON body into a slice of ReadingInput
func (h *IngestHandler) parseBody(body []byte) ([]ReadingInput, error) {
	// Try parsing as IngestRequest first
	var req IngestRequest
	if err := json.Unmarshal(body, &req); err == nil {
		if len(req.Readings) > 0 {
			return req.Readings, nil
		}
		if req.Reading != nil {
			return []ReadingInput{*req.Reading}, nil
		}
	}

	// Try parsing as array of readings
	var readings []ReadingInput
	if err := json.Unmarshal(body, &readings); err == nil && len(readings) > 0 {
		return readings, nil
	}

	// Try parsing as single reading
	var single ReadingInput
	if err := json.Unmarshal(body, &single); err == nil && single.SourceID != "" {
		return []ReadingInput{single}, nil
	}

	return nil, fmt.Errorf("invalid JSON format: expected reading object or array of readings")
}

// processReadings validates readings and runs one propagation pass each
func (h *IngestHandler) processReadings(inputs []ReadingInput) IngestResponse {
	response := IngestResponse{
		Success: true,
		Errors:  make([]IngestError, 0),
	}

	for i, input := range inputs {
		if input.SourceID == "" {
			response.Errors = append(response.Errors, IngestError{
				Index: i, Error: "source_id is required",
			})
			response.Rejected++
			metrics.IngestReadingsTotal.WithLabelValues("rejected").Inc()
			continue
		}
		if input.Value == nil {
			response.Errors = append(response.Errors, IngestError{
				Index: i, SourceID: input.SourceID, Error: "value is required",
			})
			response.Rejected++
			metrics.IngestReadingsTotal.WithLabelValues("rejected").Inc()
			continue
		}

		ts := time.Now().UTC()
		if input.Timestamp != "" {
			if parsed, err := time.Parse(time.RFC3339, input.Timestamp); err == nil {
				ts = parsed.UTC()
			}
		}

		fired := h.engine.Ingest(input.SourceID, *input.Value, ts)
		response.Fired = append(response.Fired, fired...)
		response.Accepted++
		metrics.IngestReadingsTotal.WithLabelValues("accepted").Inc()
	}

	response.Success = response.Rejected == 0
	return response
}

// writeError writes an error response
func (h *IngestHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
