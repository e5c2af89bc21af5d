package pipelinemodel

import "time"

// WorkflowImage wraps a decoded pixel buffer produced by a prediction
// output, e.g. a visualization overlay. Width/Height describe Pix's
// layout; Pix is row-major RGB24.
type WorkflowImage struct {
	Width  int
	Height int
	Pix    []byte
}

// PredictionValue is either a structured scalar/map value or a
// WorkflowImage, matching the "output-name to either a structured
// value or a WorkflowImage" mapping in 
type PredictionValue struct {
	Image *WorkflowImage
	Value interface{}
}

// Prediction is the full output mapping produced by one inference
// pass: output-name -> PredictionValue.
type Prediction map[string]PredictionValue

// FrameEnvelope is what flows through the sink chain.
type FrameEnvelope struct {
	SourceID        string
	FrameID         int64
	FrameTimestamp  time.Time
	Image           *WorkflowImage
	Prediction      Prediction
}

// Batch is what a pipeline driver hands to a Sink in one call: one
// prediction+frame per active source, matching the WebRTC bridge's
// "(predictions, frames) tuple" wording in 
type Batch struct {
	Frames []FrameEnvelope
}
