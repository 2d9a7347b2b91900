package birdnet

import (
	"fmt"
	"math"
	"sort"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/observation"
)

// maxResults is the number of top predictions returned per window.
const maxResults = 10

// Predict performs inference on one analysis window of float32 samples.
// It returns the top predictions sorted by confidence in descending
// order. The interpreter is shared, so calls serialize on a mutex.
func (bn *BirdNET) Predict(sample []float32) ([]Result, error) {
	bn.mu.Lock()
	defer bn.mu.Unlock()

	inputTensor := bn.AnalysisInterpreter.GetInputTensor(0)
	if inputTensor == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}

	copy(inputTensor.Float32s(), sample)

	if status := bn.AnalysisInterpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	outputTensor := bn.AnalysisInterpreter.GetOutputTensor(0)
	predictions := extractPredictions(outputTensor)

	confidence := bn.applySigmoidToPredictions(predictions)

	results, err := bn.pairLabelsAndConfidence(confidence)
	if err != nil {
		return nil, err
	}

	// Sorting results by confidence in descending order.
	sortResults(results)

	return trimResultsToMax(results, maxResults), nil
}

// AnalyzeAudio processes audio data in chunks and predicts species using the BirdNET model.
// It returns a slice of detection events with the identified species and their confidence levels.
func (bn *BirdNET) AnalyzeAudio(chunks [][]float32) ([]observation.Event, error) {
	var detections []observation.Event
	startTime := time.Now()
	predStart := 0.0

	for idx, chunk := range chunks {
		fmt.Printf("\r\033[KAnalyzing chunk [%d/%d] %s", idx+1, len(chunks), estimateTimeRemaining(startTime, idx, len(chunks)))

		chunkResults, err := bn.ProcessChunk(chunk, predStart)
		if err != nil {
			return nil, err
		}

		detections = append(detections, chunkResults...)
		predStart += float64(conf.CaptureLength) - bn.Settings.BirdNET.Overlap // Adjust for overlap.
	}

	fmt.Printf("\r\033[KAnalysis completed in %s\n", formatDuration(time.Since(startTime)))
	return detections, nil
}

// ProcessChunk handles the prediction for a single chunk of audio data.
func (bn *BirdNET) ProcessChunk(chunk []float32, predStart float64) ([]observation.Event, error) {
	results, err := bn.Predict(chunk)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	var events []observation.Event
	for _, result := range results {
		event, err := observation.New(bn.Settings, predStart, predStart+float64(conf.CaptureLength), result.Species, float64(result.Confidence), "", 0)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// customSigmoid applies a sigmoid function with sensitivity adjustment to a value.
func customSigmoid(x, sensitivity float64) float64 {
	return 1.0 / (1.0 + math.Exp(-sensitivity*x))
}

// sortResults sorts a slice of Result by their confidence in descending order.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
}

// pairLabelsAndConfidence pairs labels with their corresponding
// confidence values, reusing the pre-allocated results buffer.
func (bn *BirdNET) pairLabelsAndConfidence(preds []float32) ([]Result, error) {
	if len(bn.Labels) != len(preds) {
		return nil, fmt.Errorf("mismatched labels and predictions lengths: %d vs %d", len(bn.Labels), len(preds))
	}

	if cap(bn.resultsBuffer) < len(preds) {
		bn.resultsBuffer = make([]Result, len(preds))
	}
	results := bn.resultsBuffer[:len(preds)]
	for i, label := range bn.Labels {
		results[i] = Result{Species: label, Confidence: preds[i]}
	}
	return results, nil
}

// applySigmoidToPredictions applies the sigmoid function to a slice of
// predictions, reusing the pre-allocated confidence buffer.
func (bn *BirdNET) applySigmoidToPredictions(predictions []float32) []float32 {
	if cap(bn.confidenceBuffer) < len(predictions) {
		bn.confidenceBuffer = make([]float32, len(predictions))
	}
	confidence := bn.confidenceBuffer[:len(predictions)]
	for i, pred := range predictions {
		confidence[i] = float32(customSigmoid(float64(pred), bn.Settings.BirdNET.Sensitivity))
	}
	return confidence
}

// extractPredictions extracts prediction results from a TensorFlow Lite tensor.
func extractPredictions(tensor *tflite.Tensor) []float32 {
	predSize := tensor.Dim(tensor.NumDims() - 1)
	predictions := make([]float32, predSize)
	copy(predictions, tensor.Float32s())
	return predictions
}

// trimResultsToMax copies the top results out of the shared buffer so
// callers can hold them across Predict calls.
func trimResultsToMax(results []Result, maxCount int) []Result {
	n := min(len(results), maxCount)
	out := make([]Result, n)
	copy(out, results[:n])
	return out
}

// formatDuration formats a duration in a readable way.
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours >= 1:
		return fmt.Sprintf("%d hour(s) %d minute(s)", hours, minutes)
	case minutes >= 1:
		return fmt.Sprintf("%d minute(s) %d second(s)", minutes, seconds)
	default:
		return fmt.Sprintf("%d second(s)", seconds)
	}
}

// estimateTimeRemaining estimates the time remaining for processing.
func estimateTimeRemaining(start time.Time, current, total int) string {
	if current == 0 {
		return "Estimating time..."
	}
	elapsed := time.Since(start)
	estimatedTotal := elapsed / time.Duration(current) * time.Duration(total)
	remaining := estimatedTotal - elapsed
	return fmt.Sprintf("(Estimated time remaining: %s)", formatDuration(remaining))
}
