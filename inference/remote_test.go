package inference

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"
)

func testFrame() *models.Frame {
	return models.FrameFromImage(image.NewNRGBA(image.Rect(0, 0, 32, 32)))
}

func TestRemoteAnalyzeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(10<<20))
		file, _, err := r.FormFile("image")
		require.NoError(t, err)
		file.Close()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":             true,
			"pod_count":           2,
			"overall_yield":       "Medium",
			"overall_yield_score": 0.55,
			"pods": []map[string]interface{}{
				{"bbox": []float64{10, 20, 110, 220}, "confidence": 0.9, "yield_category": "High", "yield_score": 0.8},
				{"bbox": []float64{300, 40, 400, 140}, "confidence": 0.7, "yield_category": "Low", "yield_score": 0.3},
			},
		})
	}))
	defer srv.Close()

	r := NewRemoteAnalyzer(srv.URL, 5*time.Second)
	result, err := r.Analyze(context.Background(), testFrame())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Count)
	assert.Equal(t, models.CategoryMedium, result.Category)
	require.NotNil(t, result.Score)
	assert.InDelta(t, 0.55, *result.Score, 1e-9)

	require.Len(t, result.Detections, 2)
	assert.Equal(t, models.Box{X1: 10, Y1: 20, X2: 110, Y2: 220}, result.Detections[0].Box)
	assert.Equal(t, models.CategoryHigh, result.Detections[0].YieldCategory)
	assert.InDelta(t, 0.8, result.Detections[0].YieldScore, 1e-9)
}

func TestRemoteAnalyzeNoDetectionsIsEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":   false,
			"pod_count": 0,
			"pods":      []interface{}{},
		})
	}))
	defer srv.Close()

	r := NewRemoteAnalyzer(srv.URL, 5*time.Second)
	result, err := r.Analyze(context.Background(), testFrame())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Count)
	assert.Equal(t, models.CategoryLow, result.Category)
	assert.Nil(t, result.Score)
	assert.Empty(t, result.Detections)
}

func TestRemoteAnalyzeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewRemoteAnalyzer(srv.URL, 5*time.Second)
	_, err := r.Analyze(context.Background(), testFrame())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInferenceFailure))
}

func TestRemoteAnalyzeUnknownCategoryRecomputed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":             true,
			"pod_count":           1,
			"overall_yield":       "banana",
			"overall_yield_score": 0.8,
			"pods": []map[string]interface{}{
				{"bbox": []float64{0, 0, 10, 10}, "confidence": 0.9, "yield_category": "", "yield_score": 0.8},
			},
		})
	}))
	defer srv.Close()

	r := NewRemoteAnalyzer(srv.URL, 5*time.Second)
	result, err := r.Analyze(context.Background(), testFrame())
	require.NoError(t, err)
	assert.Equal(t, models.CategoryHigh, result.Category)
	assert.Equal(t, models.CategoryHigh, result.Detections[0].YieldCategory)
}
