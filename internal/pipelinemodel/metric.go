package pipelinemodel

import "time"

// MetricLevel distinguishes a once-per-poll pipeline-level point from
// a once-per-source-per-poll point, 
type MetricLevel string

const (
	MetricLevelPipeline MetricLevel = "pipeline"
	MetricLevelSource    MetricLevel = "source"
)

// MetricPoint is a single time-series sample.
type MetricPoint struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]interface{}
	Time        time.Time
}

// NewMetricTags builds the {pipeline_id, source_id?, level} tag set.
func NewMetricTags(pipelineID, sourceID string, level MetricLevel) map[string]string {
	tags := map[string]string{
		"pipeline_id": pipelineID,
		"level":       string(level),
	}
	if sourceID != "" {
		tags["source_id"] = sourceID
	}
	return tags
}
