// Package rpc implements the length-prefixed JSON wire protocol
// described in : a HeaderSize-byte big-endian length
// prefix followed by a UTF-8 JSON envelope body. It is used both for
// the client-facing Supervisor socket and for the Supervisor<->Worker
// command/response channel.
package rpc

import (
	"encoding/json"

	"github.com/livepeer/pipectl/internal/apierrors"
)

// CommandType enumerates the Supervisor's public command surface.
type CommandType string

const (
	CommandInit           CommandType = "INIT"
	CommandMute           CommandType = "MUTE"
	CommandResume         CommandType = "RESUME"
	CommandStatus         CommandType = "STATUS"
	CommandTerminate      CommandType = "TERMINATE"
	CommandListPipelines  CommandType = "LIST_PIPELINES"
	CommandConsumeResult  CommandType = "CONSUME_RESULT"
	CommandOffer          CommandType = "OFFER"
)

// Envelope is one request frame on the wire.
type Envelope struct {
	Type       CommandType     `json:"type"`
	PipelineID string          `json:"pipeline_id,omitempty"`
	RequestID  string          `json:"request_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Response is one response frame on the wire.
type Response struct {
	RequestID  string               `json:"request_id"`
	PipelineID string               `json:"pipeline_id,omitempty"`
	Response   json.RawMessage      `json:"response,omitempty"`
	Error      *apierrors.WireError `json:"error,omitempty"`
}

// InitPayload is the INIT command's descriptor.
type InitPayload struct {
	VideoReference    []string          `json:"video_reference"`
	Workflow          json.RawMessage   `json:"workflow"`
	BufferSinkQueue   int               `json:"buffer_sink_queue_size"`
	VideoRecordSink   *VideoSinkConfig  `json:"video_record_sink,omitempty"`
	VideoMetricsSink  *MetricSinkConfig `json:"video_metrics_sink,omitempty"`
}

type VideoSinkConfig struct {
	IsOpen           bool    `json:"is_open"`
	OutputDir        string  `json:"output_dir"`
	SegmentDuration  float64 `json:"segment_duration_secs"`
	MaxTotalSizeByte int64   `json:"max_total_size_bytes"`
	MaxDiskUsage     float64 `json:"max_disk_usage"`
	TargetWidth      int     `json:"target_width,omitempty"`
	TargetHeight     int     `json:"target_height,omitempty"`
	VideoFieldName   string  `json:"video_field_name,omitempty"`
}

type MetricSinkConfig struct {
	IsOpen        bool              `json:"is_open"`
	BatchSize     int               `json:"batch_size"`
	FlushInterval float64           `json:"flush_interval_secs"`
	FieldSelectors map[string]string `json:"field_selectors,omitempty"`
}

// StatusPayload is the STATUS response body.
type StatusPayload struct {
	LatencyReports      []LatencyReport  `json:"latency_reports"`
	SourcesMetadata     []SourceMetadata `json:"sources_metadata"`
	InferenceThroughput float64          `json:"inference_throughput"`
}

type LatencyReport struct {
	SourceID  string  `json:"source_id"`
	LatencyMs float64 `json:"latency_ms"`
}

type SourceMetadata struct {
	SourceID string `json:"source_id"`
	State    string `json:"state"`
}

// ConsumeResultPayload is the CONSUME_RESULT command's request body.
type ConsumeResultPayload struct {
	ExcludedFields []string `json:"excluded_fields"`
}

// ConsumeResultResponse is CONSUME_RESULT's response body.
type ConsumeResultResponse struct {
	Outputs         []json.RawMessage `json:"outputs"`
	FramesMetadata  []json.RawMessage `json:"frames_metadata"`
}

// OfferPayload is the OFFER (WebRTC) command's request body.
type OfferPayload struct {
	SDP           string         `json:"sdp"`
	TurnConfig    json.RawMessage `json:"turn_config,omitempty"`
	StreamOutput  string         `json:"stream_output,omitempty"`
}

// OfferResponse is OFFER's response body.
type OfferResponse struct {
	SDP string `json:"sdp"`
}

// ListPipelinesResponse is LIST's response body.
type ListPipelinesResponse struct {
	PipelineIDs []string `json:"pipeline_ids"`
}

// InitResponse is INIT's response body.
type InitResponse struct {
	PipelineID string `json:"pipeline_id"`
}
