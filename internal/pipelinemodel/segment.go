package pipelinemodel

import (
	"fmt"
	"sort"
	"time"
)

// SegmentTimeLayout is the canonical segment filename timestamp format
// used for both naming and parsing.
const SegmentTimeLayout = "20060102150405"

// SegmentFile is one closed or in-progress .mp4 file in a VideoSink's
// recording output.
type SegmentFile struct {
	Path        string
	SizeBytes   int64
	CreatedTime time.Time
	FrameCount  int
}

// SegmentFileName renders the canonical name for a segment starting at t.
func SegmentFileName(t time.Time) string {
	return fmt.Sprintf("%s.mp4", t.UTC().Format(SegmentTimeLayout))
}

// ParseSegmentTime parses a canonical segment filename's timestamp.
// Callers fall back to filesystem ctime when this fails, 
func ParseSegmentTime(name string) (time.Time, error) {
	base := name
	if len(base) > 4 && base[len(base)-4:] == ".mp4" {
		base = base[:len(base)-4]
	}
	return time.Parse(SegmentTimeLayout, base)
}

// SortSegmentsByCreated sorts segments ascending by CreatedTime,
// forming the oldest-first order that eviction walks.
func SortSegmentsByCreated(segs []SegmentFile) {
	sort.Slice(segs, func(i, j int) bool {
		return segs[i].CreatedTime.Before(segs[j].CreatedTime)
	})
}

// TotalSize sums SizeBytes across segments.
func TotalSize(segs []SegmentFile) int64 {
	var total int64
	for _, s := range segs {
		total += s.SizeBytes
	}
	return total
}
