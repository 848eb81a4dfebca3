// Package detections turns raw detector output into bounding boxes: decoding
// the channel-major YOLO output layout, suppressing duplicates, and mapping
// boxes between model, source-frame and display coordinate spaces.
package detections

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"
)

const decodeChunkSize = 1024

// DecodeCandidates reads a detector output tensor with shape [1, 4+C, N]
// (4 box values then C class confidences, laid out as parallel arrays of
// length N) and emits one RawCandidate per row whose best class confidence
// reaches confThreshold. Boxes stay in model-input units. The output keeps
// row order so downstream confidence ties break deterministically.
func DecodeCandidates(t *models.Tensor, confThreshold float64) ([]models.RawCandidate, error) {
	if len(t.Shape) != 3 || t.Shape[0] != 1 || t.Shape[1] < 5 {
		return nil, fmt.Errorf("%w: detector output shape %v, want [1 4+C N]",
			models.ErrInferenceFailure, t.Shape)
	}
	n := int(t.Shape[2])
	numClasses := int(t.Shape[1]) - 4
	if int64(len(t.Data)) != t.ElemCount() {
		return nil, fmt.Errorf("%w: detector output has %d values, want %d",
			models.ErrInferenceFailure, len(t.Data), t.ElemCount())
	}
	preds := t.Data

	numChunks := (n + decodeChunkSize - 1) / decodeChunkSize
	chunks := make([][]models.RawCandidate, numChunks)

	numWorkers := runtime.NumCPU()
	if numWorkers > numChunks {
		numWorkers = numChunks
	}
	jobs := make(chan int, numChunks)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for chunk := range jobs {
				start := chunk * decodeChunkSize
				end := start + decodeChunkSize
				if end > n {
					end = n
				}
				var local []models.RawCandidate
				for i := start; i < end; i++ {
					best := float64(preds[4*n+i])
					classID := 0
					for k := 1; k < numClasses; k++ {
						if v := float64(preds[(4+k)*n+i]); v > best {
							best = v
							classID = k
						}
					}
					if best < confThreshold {
						continue
					}
					cx := float64(preds[i])
					cy := float64(preds[n+i])
					w := float64(preds[2*n+i])
					h := float64(preds[3*n+i])
					local = append(local, models.RawCandidate{
						Box: models.Box{
							X1: cx - w/2,
							Y1: cy - h/2,
							X2: cx + w/2,
							Y2: cy + h/2,
						},
						Confidence: models.Clamp01(best),
						ClassID:    classID,
					})
				}
				chunks[chunk] = local
			}
		}()
	}
	for chunk := 0; chunk < numChunks; chunk++ {
		jobs <- chunk
	}
	close(jobs)
	wg.Wait()

	candidates := make([]models.RawCandidate, 0, 64)
	for _, local := range chunks {
		candidates = append(candidates, local...)
	}
	return candidates, nil
}
