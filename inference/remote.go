package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"
)

// detectResponse is the remote runtime's wire contract.
type detectResponse struct {
	Success           bool        `json:"success"`
	PodCount          int         `json:"pod_count"`
	OverallYield      string      `json:"overall_yield"`
	OverallYieldScore float64     `json:"overall_yield_score"`
	Pods              []remotePod `json:"pods"`
}

type remotePod struct {
	BBox          [4]float64 `json:"bbox"`
	Confidence    float64    `json:"confidence"`
	YieldCategory string     `json:"yield_category"`
	YieldScore    float64    `json:"yield_score"`
}

// RemoteAnalyzer runs the whole detect-and-score pipeline on a remote
// inference service. It is the single-shot path's fallback when no local
// models are available.
type RemoteAnalyzer struct {
	client *resty.Client
	url    string
}

func NewRemoteAnalyzer(detectURL string, timeout time.Duration) *RemoteAnalyzer {
	return &RemoteAnalyzer{
		client: resty.New().SetTimeout(timeout),
		url:    detectURL,
	}
}

// Analyze posts the frame as a JPEG multipart upload and maps the JSON
// response to an AggregateResult. success:false and pod_count:0 are valid
// empty results, not errors.
func (r *RemoteAnalyzer) Analyze(ctx context.Context, frame *models.Frame) (*models.AggregateResult, error) {
	img, err := frame.Image()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	var body detectResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetFileReader("image", "frame.jpg", bytes.NewReader(buf.Bytes())).
		SetResult(&body).
		Post(r.url)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, models.ErrInferenceTimeout
		}
		return nil, fmt.Errorf("remote inference: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: remote returned status %d", models.ErrInferenceFailure, resp.StatusCode())
	}

	if !body.Success || body.PodCount == 0 || len(body.Pods) == 0 {
		return &models.AggregateResult{Category: models.CategoryLow}, nil
	}

	result := &models.AggregateResult{
		Count:      len(body.Pods),
		Detections: make([]models.Detection, 0, len(body.Pods)),
	}
	for _, pod := range body.Pods {
		result.Detections = append(result.Detections, models.Detection{
			Confidence: models.Clamp01(pod.Confidence),
			Box: models.Box{
				X1: pod.BBox[0], Y1: pod.BBox[1],
				X2: pod.BBox[2], Y2: pod.BBox[3],
			},
			YieldScore:    models.Clamp01(pod.YieldScore),
			YieldCategory: parseCategory(pod.YieldCategory, pod.YieldScore),
		})
	}
	score := models.Clamp01(body.OverallYieldScore)
	result.Score = &score
	result.Category = parseCategory(body.OverallYield, score)
	return result, nil
}

// parseCategory accepts the remote's category string, recomputing it from the
// score when the string is not one of the three known buckets.
func parseCategory(s string, score float64) models.Category {
	switch c := models.Category(s); c {
	case models.CategoryLow, models.CategoryMedium, models.CategoryHigh:
		return c
	default:
		return models.Categorize(models.Clamp01(score))
	}
}
