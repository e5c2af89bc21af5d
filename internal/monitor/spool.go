package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/livepeer/pipectl/internal/obslog"
	"github.com/livepeer/pipectl/internal/pipelinemodel"
)

// spoolWriter persists points the store rejected, 
// step 4: "<output_dir>/metrics_backup/metrics_backup_<ts>.json".
type spoolWriter struct {
	dir string
}

func newSpoolWriter(outputDir string) *spoolWriter {
	return &spoolWriter{dir: filepath.Join(outputDir, "metrics_backup")}
}

func (s *spoolWriter) Write(points []pipelinemodel.MetricPoint) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("monitor: spool mkdir: %w", err)
	}
	name := fmt.Sprintf("metrics_backup_%d.json", time.Now().UnixNano())
	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("monitor: spool marshal: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dir, name), data, 0644)
}

// ReplayBackups parses and replays spool files in timestamp order on
// startup, deleting each on success.
func ReplayBackups(ctx context.Context, outputDir string, store Store) {
	dir := filepath.Join(outputDir, "metrics_backup")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			obslog.LogError("", "monitor replay read failed", err, "path", path)
			continue
		}
		var points []pipelinemodel.MetricPoint
		if err := json.Unmarshal(data, &points); err != nil {
			obslog.LogError("", "monitor replay parse failed", err, "path", path)
			continue
		}
		if err := store.WriteBatch(ctx, points); err != nil {
			obslog.LogError("", "monitor replay write failed", err, "path", path)
			continue
		}
		if err := os.Remove(path); err != nil {
			obslog.LogError("", "monitor replay cleanup failed", err, "path", path)
		}
	}
}
