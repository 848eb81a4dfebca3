// Package stream drives the continuous acquire -> analyze -> render loop for
// live mode. One controller serves one stream; exactly one pipeline run is in
// flight at a time, results are published in capture order, and stopping is
// observed at the next iteration boundary rather than by aborting a run.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/detections"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/pipeline"
)

// ErrSourceClosed is returned by a FrameSource that can produce no further
// frames. The controller treats it as end of stream, not a skipped frame.
var ErrSourceClosed = errors.New("frame source closed")

// FrameSource supplies frames for a live stream. NextFrame blocks until the
// newest frame is available or ctx is done.
type FrameSource interface {
	NextFrame(ctx context.Context) (*models.Frame, error)
	Stop()
}

// Renderer receives each completed run's result with boxes already mapped to
// display space.
type Renderer interface {
	Publish(result *models.AggregateResult, display []models.Detection)
}

type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateDetecting
)

func (s State) String() string {
	switch s {
	case StateCapturing:
		return "capturing"
	case StateDetecting:
		return "detecting"
	default:
		return "idle"
	}
}

// Controller owns one live stream's state machine:
// Idle -> Capturing -> Detecting -> Capturing -> Idle.
type Controller struct {
	source   FrameSource
	analyzer pipeline.Analyzer
	renderer Renderer
	log      *logrus.Logger
	meter    *Meter

	state atomic.Int32

	mu            sync.Mutex
	baseCtx       context.Context
	baseCancel    context.CancelFunc
	acquireCancel context.CancelFunc
	loopDone      chan struct{}
	wg            sync.WaitGroup
	released      bool
}

func NewController(source FrameSource, analyzer pipeline.Analyzer, renderer Renderer, log *logrus.Logger) *Controller {
	return NewControllerWithClock(source, analyzer, renderer, log, clock.New())
}

func NewControllerWithClock(source FrameSource, analyzer pipeline.Analyzer, renderer Renderer, log *logrus.Logger, clk clock.Clock) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		source:     source,
		analyzer:   analyzer,
		renderer:   renderer,
		log:        log,
		meter:      NewMeter(clk),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	c.state.Store(int32(StateIdle))
	return c
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

// FPS reports the instantaneous processing rate of the stream.
func (c *Controller) FPS() float64 {
	return c.meter.FPS()
}

// StartCapture transitions Idle -> Capturing.
func (c *Controller) StartCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return errors.New("controller already released")
	}
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateCapturing)) {
		return errors.New("capture already started")
	}
	return nil
}

// StartDetection transitions Capturing -> Detecting and starts the loop.
// A restart after StopDetection waits for the previous loop to finish its
// in-flight run first: starting a second loop alongside it would put two
// runs in flight and let the old loop's exit path reset the new session's
// state.
func (c *Controller) StartDetection() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return errors.New("controller already released")
	}
	if c.State() != StateCapturing {
		return errors.New("detection requires capturing state")
	}
	if c.loopDone != nil {
		<-c.loopDone
		c.loopDone = nil
	}
	if !c.state.CompareAndSwap(int32(StateCapturing), int32(StateDetecting)) {
		return errors.New("detection requires capturing state")
	}
	acquireCtx, cancel := context.WithCancel(c.baseCtx)
	c.acquireCancel = cancel
	done := make(chan struct{})
	c.loopDone = done
	c.wg.Add(1)
	go c.loop(acquireCtx, done)
	return nil
}

// StopDetection transitions Detecting -> Capturing. A run already in flight
// completes and publishes; it is simply not followed by another. A loop
// blocked waiting for a frame is unblocked by cancelling only the acquire
// context, never the run context.
func (c *Controller) StopDetection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.CompareAndSwap(int32(StateDetecting), int32(StateCapturing)) {
		if c.acquireCancel != nil {
			c.acquireCancel()
			c.acquireCancel = nil
		}
	}
}

// Release transitions to Idle and deterministically frees the capture
// resource, whatever state the controller is in.
func (c *Controller) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	c.state.Store(int32(StateIdle))
	if c.acquireCancel != nil {
		c.acquireCancel()
		c.acquireCancel = nil
	}
	c.baseCancel()
	c.mu.Unlock()

	c.wg.Wait()
	c.source.Stop()
}

func (c *Controller) loop(acquireCtx context.Context, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)
	// On any exit, fall back to Capturing unless Release already went Idle.
	// Runs before done closes, so a waiting restart never races this swap.
	defer c.state.CompareAndSwap(int32(StateDetecting), int32(StateCapturing))

	for {
		if c.State() != StateDetecting {
			return
		}

		frame, err := c.source.NextFrame(acquireCtx)
		if err != nil {
			if acquireCtx.Err() != nil || errors.Is(err, ErrSourceClosed) {
				return
			}
			c.log.Warnf("frame acquisition failed, skipping: %v", err)
			continue
		}

		// Stop requested while waiting for this frame: do not start a run.
		if c.State() != StateDetecting {
			return
		}

		result, err := c.analyzer.Analyze(c.baseCtx, frame)
		if err != nil {
			// Per-frame errors are dropped frames in live mode, including
			// timeouts; only a torn-down stream ends the loop.
			if c.baseCtx.Err() != nil {
				return
			}
			c.log.Warnf("dropping frame: %v", err)
			continue
		}

		// Tick first so a renderer reading the rate sees this frame counted.
		c.meter.Tick()
		c.renderer.Publish(result, displayDetections(frame, result.Detections))
	}
}

// displayDetections maps source-space boxes to the frame's display rectangle
// for overlay drawing. Without a display size the boxes pass through
// unchanged.
func displayDetections(frame *models.Frame, dets []models.Detection) []models.Detection {
	out := make([]models.Detection, len(dets))
	copy(out, dets)
	if frame.Display == nil {
		return out
	}
	for i := range out {
		out[i].Box = detections.ToDisplaySpace(out[i].Box,
			frame.Width, frame.Height, frame.Display.Width, frame.Display.Height)
	}
	return out
}
