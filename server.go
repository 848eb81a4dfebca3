package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/config"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/history"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/inference"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/pipeline"
)

type AppState struct {
	Cfg            *config.Config
	Analyzer       pipeline.Analyzer
	DetectorPool   *inference.SessionPool
	ClassifierPool *inference.SessionPool
	History        history.Store
	Log            *logrus.Logger
}

// Remote mode reports true when analysis is proxied to the remote runtime
// instead of local ONNX sessions.
func (s *AppState) remoteMode() bool {
	return s.DetectorPool == nil
}

type podResponse struct {
	BBox          [4]float64      `json:"bbox"`
	Confidence    float64         `json:"confidence"`
	YieldCategory models.Category `json:"yield_category"`
	YieldScore    float64         `json:"yield_score"`
}

type detectResponse struct {
	Success           bool            `json:"success"`
	Message           string          `json:"message,omitempty"`
	PodCount          int             `json:"pod_count"`
	OverallYield      models.Category `json:"overall_yield"`
	OverallYieldScore *float64        `json:"overall_yield_score,omitempty"`
	Pods              []podResponse   `json:"pods"`
	ImageWidth        int             `json:"image_width,omitempty"`
	ImageHeight       int             `json:"image_height,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *AppState) addRoutes(r *mux.Router) {
	r.HandleFunc("/api/detect", s.handleDetect).Methods("POST")
	r.HandleFunc("/api/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/history", s.handleHistory).Methods("GET")
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	r.HandleFunc("/ws/live", s.handleLive)
}

// handleDetect is the single-shot analyze path. Errors propagate to the
// caller verbatim so the UI can offer a retry, unlike live mode where they
// become dropped frames.
func (s *AppState) handleDetect(w http.ResponseWriter, r *http.Request) {
	imgBytes, err := readImageRequest(r)
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	img, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		sendErrorResponse(w, "invalid_image", "Failed to decode image", http.StatusBadRequest)
		return
	}
	frame := models.FrameFromImage(img)

	result, err := s.Analyzer.Analyze(r.Context(), frame)
	if err != nil {
		code, status := classifyError(err)
		sendErrorResponse(w, code, err.Error(), status)
		return
	}

	if result.Count > 0 {
		rec := history.Record{
			Timestamp:       time.Now().UTC(),
			ImageRef:        uuid.NewString(),
			OverallCategory: result.Category,
			DetectionCount:  result.Count,
		}
		if err := s.History.Append(r.Context(), rec); err != nil {
			s.Log.Warnf("failed to append history record: %v", err)
		}
	}

	resp := toDetectResponse(result)
	resp.ImageWidth = frame.Width
	resp.ImageHeight = frame.Height
	writeJSON(w, http.StatusOK, resp)
}

func (s *AppState) handleHealth(w http.ResponseWriter, _ *http.Request) {
	mode := "local"
	if s.remoteMode() {
		mode = "remote"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"mode":              mode,
		"detector_loaded":   s.DetectorPool != nil,
		"classifier_loaded": s.ClassifierPool != nil,
	})
}

func (s *AppState) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.History.List(r.Context())
	if err != nil {
		sendErrorResponse(w, "history_error", err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	metrics := map[string]interface{}{}
	if s.DetectorPool != nil {
		metrics["detector"] = s.DetectorPool.Metrics()
	}
	if s.ClassifierPool != nil {
		metrics["classifier"] = s.ClassifierPool.Metrics()
	}
	writeJSON(w, http.StatusOK, metrics)
}

// toDetectResponse maps an AggregateResult to the wire contract. An empty
// result is success:false with pod_count 0, not an error.
func toDetectResponse(result *models.AggregateResult) detectResponse {
	resp := detectResponse{
		Success:           result.Count > 0,
		PodCount:          result.Count,
		OverallYield:      result.Category,
		OverallYieldScore: result.Score,
		Pods:              make([]podResponse, 0, len(result.Detections)),
	}
	if result.Count == 0 {
		resp.Message = "No cacao pods detected"
	}
	for _, d := range result.Detections {
		resp.Pods = append(resp.Pods, podResponse{
			BBox:          d.Box.Array(),
			Confidence:    d.Confidence,
			YieldCategory: d.YieldCategory,
			YieldScore:    d.YieldScore,
		})
	}
	return resp
}

func classifyError(err error) (string, int) {
	switch {
	case errors.Is(err, models.ErrUnsupportedFormat):
		return "invalid_image", http.StatusBadRequest
	case errors.Is(err, models.ErrModelNotLoaded):
		return "model_not_loaded", http.StatusServiceUnavailable
	case errors.Is(err, models.ErrInferenceTimeout):
		return "inference_timeout", http.StatusGatewayTimeout
	case errors.Is(err, models.ErrInferenceFailure):
		return "inference_failure", http.StatusBadGateway
	default:
		return "processing_error", http.StatusInternalServerError
	}
}

func readImageRequest(r *http.Request) ([]byte, error) {
	contentType := r.Header.Get("Content-Type")
	switch {
	case contentType == "application/json":
		return readJSONImage(r)
	case len(contentType) >= 19 && contentType[:19] == "multipart/form-data":
		return readMultipartImage(r)
	default:
		return io.ReadAll(r.Body)
	}
}

func readJSONImage(r *http.Request) ([]byte, error) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(req.Image)
}

func readMultipartImage(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		return nil, err
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:    code,
		Message: message,
	})
}
