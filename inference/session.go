// Package inference wraps the ONNX runtime behind a small Engine interface,
// pools sessions for concurrent use, and provides the remote-runtime fallback
// client. Sessions are read-only after load and shared between the
// single-shot and live paths.
package inference

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/codec"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"
)

// Engine runs one fixed-shape model: input tensor in, output tensor out.
type Engine interface {
	Infer(ctx context.Context, in *models.Tensor) (*models.Tensor, error)
}

// SessionConfig binds a model file to its named input and output tensors.
type SessionConfig struct {
	ModelPath   string
	InputName   string
	OutputName  string
	InputShape  []int64
	OutputShape []int64
}

// Session owns one ONNX session with pre-allocated input/output tensors.
// A Session must not be used by more than one Infer call at a time; the pool
// enforces that.
type Session struct {
	session     *ort.AdvancedSession
	input       *ort.Tensor[float32]
	output      *ort.Tensor[float32]
	outputShape []int64
	expired     atomic.Bool
}

// NewSession loads the model and allocates its IO tensors.
func NewSession(cfg SessionConfig) (*Session, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(runtime.NumCPU())

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &Session{
		session:     session,
		input:       inputTensor,
		output:      outputTensor,
		outputShape: cfg.OutputShape,
	}, nil
}

// Infer copies in into the session's input tensor, runs the model, and
// returns a copy of the output. Cancellation or deadline expiry abandons the
// run: the session is marked expired and torn down once the runtime call
// returns, so its tensors are never handed out mid-run.
func (s *Session) Infer(ctx context.Context, in *models.Tensor) (*models.Tensor, error) {
	if s == nil || s.session == nil {
		return nil, models.ErrModelNotLoaded
	}
	dst := s.input.GetData()
	if len(in.Data) != len(dst) {
		return nil, fmt.Errorf("%w: input has %d values, session expects %d",
			models.ErrInferenceFailure, len(in.Data), len(dst))
	}
	copy(dst, in.Data)

	done := make(chan error, 1)
	go func() { done <- s.session.Run() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInferenceFailure, err)
		}
	case <-ctx.Done():
		s.expired.Store(true)
		go func() {
			<-done
			s.Destroy()
		}()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, models.ErrInferenceTimeout
		}
		return nil, ctx.Err()
	}

	raw := s.output.GetData()
	out := make([]float32, len(raw))
	copy(out, raw)
	return codec.DecodeOutput(out, s.outputShape)
}

// Expired reports whether an abandoned run poisoned this session.
func (s *Session) Expired() bool {
	return s.expired.Load()
}

func (s *Session) Destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
	if s.input != nil {
		s.input.Destroy()
	}
	if s.output != nil {
		s.output.Destroy()
	}
}
