package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/livepeer/pipectl/internal/obslog"
	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// resultsSpool writes consumed batches to disk as they're served: a
// best-effort JSON audit trail the Monitor never reads back, one file
// per CONSUME_RESULT call.
type resultsSpool struct {
	dir        string
	pipelineID string
	mu         sync.Mutex
	seq        int64
}

func newResultsSpool(dir, pipelineID string) *resultsSpool {
	return &resultsSpool{dir: dir, pipelineID: pipelineID}
}

func (s *resultsSpool) Append(batches []pipelinemodel.Batch) {
	if s.dir == "" || len(batches) == 0 {
		return
	}
	// seq holds the last millisecond stamp used, so names stay unique
	// when two calls land in the same millisecond.
	s.mu.Lock()
	millis := time.Now().UnixMilli()
	if millis <= s.seq {
		millis = s.seq + 1
	}
	s.seq = millis
	s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		obslog.LogError(s.pipelineID, "results spool mkdir failed", err)
		return
	}

	type record struct {
		SourceID  string          `json:"source_id"`
		FrameID   int64           `json:"frame_id"`
		Timestamp time.Time       `json:"timestamp"`
		Fields    json.RawMessage `json:"fields"`
	}
	var records []record
	for _, b := range batches {
		for _, f := range b.Frames {
			fieldsRaw, err := json.Marshal(filterFields(f.Prediction, nil))
			if err != nil {
				continue
			}
			records = append(records, record{
				SourceID: f.SourceID, FrameID: f.FrameID, Timestamp: f.FrameTimestamp, Fields: fieldsRaw,
			})
		}
	}
	if len(records) == 0 {
		return
	}

	name := fmt.Sprintf("batch_%d.json", millis)
	path := filepath.Join(s.dir, name)
	data, err := json.Marshal(records)
	if err != nil {
		obslog.LogError(s.pipelineID, "results spool marshal failed", err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		obslog.LogError(s.pipelineID, "results spool write failed", err, "path", path)
	}
}
