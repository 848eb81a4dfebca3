// Package pipeline is the canonical detect-and-score pipeline: one frame in,
// one AggregateResult out. Both the single-shot endpoint and the live
// streaming loop run through it, so thresholds and postprocessing cannot
// drift between the two paths.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/codec"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/detections"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/inference"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/yield"
)

// Analyzer runs the full pipeline on one frame. The local Pipeline and the
// remote fallback (inference.RemoteAnalyzer) both satisfy it.
type Analyzer interface {
	Analyze(ctx context.Context, frame *models.Frame) (*models.AggregateResult, error)
}

type Config struct {
	ConfThreshold  float64
	IoUThreshold   float64
	InferTimeout   time.Duration
	Postprocessors []detections.Postprocessor
}

// Pipeline is the handle returned by loading the two models; callers own its
// lifecycle and pass it into every invocation (there is no ambient session
// state).
type Pipeline struct {
	detector   inference.Engine
	classifier *yield.RegionClassifier
	cfg        Config
	log        *logrus.Logger
}

func New(detector, classifier inference.Engine, cfg Config, log *logrus.Logger) *Pipeline {
	if cfg.ConfThreshold <= 0 {
		cfg.ConfThreshold = detections.DefaultConfThreshold
	}
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = detections.DefaultIoUThreshold
	}
	return &Pipeline{
		detector:   detector,
		classifier: yield.NewRegionClassifier(classifier),
		cfg:        cfg,
		log:        log,
	}
}

// Analyze decodes the frame, runs detection, suppresses duplicates, maps
// boxes to source space, scores each region and aggregates. Detections whose
// crop degenerates after clamping are skipped rather than failing the frame.
func (p *Pipeline) Analyze(ctx context.Context, frame *models.Frame) (*models.AggregateResult, error) {
	if p == nil || p.detector == nil || p.classifier == nil {
		return nil, models.ErrModelNotLoaded
	}
	if p.cfg.InferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.InferTimeout)
		defer cancel()
	}

	startTotal := time.Now()
	timings := &models.ProcessingTimings{RequestID: uuid.NewString()}

	decodeStart := time.Now()
	img, err := frame.Image()
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		return nil, err
	}

	encodeStart := time.Now()
	input, letterbox, err := codec.EncodeDetector(frame, detections.InputSize)
	timings.Encode = time.Since(encodeStart)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	inferStart := time.Now()
	output, err := p.detector.Infer(ctx, input)
	timings.Inference = time.Since(inferStart)
	if err != nil {
		return nil, fmt.Errorf("detector inference: %w", err)
	}

	postStart := time.Now()
	candidates, err := detections.DecodeCandidates(output, p.cfg.ConfThreshold)
	if err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}
	kept := detections.Suppress(candidates, p.cfg.IoUThreshold)

	mapped := make([]models.Detection, 0, len(kept))
	for _, d := range kept {
		d.Box = detections.ToSourceSpace(d.Box, letterbox, frame.Width, frame.Height)
		if d.Box.Width() <= 0 || d.Box.Height() <= 0 {
			continue
		}
		mapped = append(mapped, d)
	}
	for _, post := range p.cfg.Postprocessors {
		mapped = post(mapped)
	}
	timings.Postprocess = time.Since(postStart)

	classifyStart := time.Now()
	scored := make([]models.Detection, 0, len(mapped))
	for _, d := range mapped {
		score, category, err := p.classifier.Classify(ctx, img, d.Box)
		if errors.Is(err, models.ErrEmptyRegion) {
			p.log.WithField("request_id", timings.RequestID).Debugf("skipping degenerate region: %v", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		d.YieldScore = score
		d.YieldCategory = category
		scored = append(scored, d)
	}
	timings.Classify = time.Since(classifyStart)

	result := yield.Aggregate(scored)
	timings.Total = time.Since(startTotal)
	p.logTimings(timings, result)
	return result, nil
}

func (p *Pipeline) logTimings(t *models.ProcessingTimings, result *models.AggregateResult) {
	p.log.WithFields(logrus.Fields{
		"request_id":   t.RequestID,
		"image_decode": t.ImageDecode,
		"encode":       t.Encode,
		"inference":    t.Inference,
		"postprocess":  t.Postprocess,
		"classify":     t.Classify,
		"total":        t.Total,
		"pod_count":    result.Count,
		"category":     result.Category,
	}).Debug("pipeline run complete")
}
