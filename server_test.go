package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/config"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/history"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"
)

type fakeAnalyzer struct {
	result *models.AggregateResult
	err    error
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _ *models.Frame) (*models.AggregateResult, error) {
	return a.result, a.err
}

func newTestState(analyzer *fakeAnalyzer) (*AppState, *history.MemStore) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	store := history.NewMemStore()
	return &AppState{
		Cfg:      &config.Config{},
		Analyzer: analyzer,
		History:  store,
		Log:      log,
	}, store
}

func pngBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 16, 16))))
	return &buf
}

func postDetect(t *testing.T, state *AppState, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	r := mux.NewRouter()
	state.addRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/api/detect", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleDetectSuccess(t *testing.T) {
	score := 0.72
	analyzer := &fakeAnalyzer{result: &models.AggregateResult{
		Category: models.CategoryHigh,
		Score:    &score,
		Count:    1,
		Detections: []models.Detection{{
			Confidence:    0.9,
			Box:           models.Box{X1: 10, Y1: 20, X2: 110, Y2: 220},
			YieldScore:    0.72,
			YieldCategory: models.CategoryHigh,
		}},
	}}
	state, store := newTestState(analyzer)

	// Multipart upload with field name "image", per the wire contract.
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "pods.png")
	require.NoError(t, err)
	_, err = io.Copy(part, pngBody(t))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := postDetect(t, state, &body, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, w.Code)

	var resp detectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.PodCount)
	assert.Equal(t, models.CategoryHigh, resp.OverallYield)
	require.NotNil(t, resp.OverallYieldScore)
	assert.InDelta(t, 0.72, *resp.OverallYieldScore, 1e-9)
	require.Len(t, resp.Pods, 1)
	assert.Equal(t, [4]float64{10, 20, 110, 220}, resp.Pods[0].BBox)
	assert.Equal(t, 16, resp.ImageWidth)

	records, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.CategoryHigh, records[0].OverallCategory)
	assert.Equal(t, 1, records[0].DetectionCount)
	assert.NotEmpty(t, records[0].ImageRef)
}

func TestHandleDetectEmptyResult(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &models.AggregateResult{Category: models.CategoryLow}}
	state, store := newTestState(analyzer)

	w := postDetect(t, state, pngBody(t), "application/octet-stream")
	require.Equal(t, http.StatusOK, w.Code)

	var resp detectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, 0, resp.PodCount)
	assert.Nil(t, resp.OverallYieldScore)
	assert.NotEmpty(t, resp.Message)

	// Empty runs are not recorded.
	records, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHandleDetectErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{models.ErrModelNotLoaded, http.StatusServiceUnavailable, "model_not_loaded"},
		{models.ErrInferenceTimeout, http.StatusGatewayTimeout, "inference_timeout"},
		{models.ErrInferenceFailure, http.StatusBadGateway, "inference_failure"},
		{models.ErrUnsupportedFormat, http.StatusBadRequest, "invalid_image"},
	}
	for _, tt := range tests {
		state, _ := newTestState(&fakeAnalyzer{err: tt.err})
		w := postDetect(t, state, pngBody(t), "application/octet-stream")
		assert.Equal(t, tt.status, w.Code, tt.err.Error())

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tt.code, resp.Code, tt.err.Error())
	}
}

func TestHandleDetectBadImage(t *testing.T) {
	state, _ := newTestState(&fakeAnalyzer{result: &models.AggregateResult{}})
	w := postDetect(t, state, bytes.NewBufferString("not an image"), "application/octet-stream")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHealthAndHistory(t *testing.T) {
	state, store := newTestState(&fakeAnalyzer{result: &models.AggregateResult{}})
	require.NoError(t, store.Append(context.Background(), history.Record{ImageRef: "x"}))

	r := mux.NewRouter()
	state.addRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "remote", health["mode"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var records []history.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "x", records[0].ImageRef)
}
