package monitor

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/livepeer/pipectl/internal/obslog"
)

// pipelineDir is one subdirectory of the recordings root, for
// oldest-first eviction.
type pipelineDir struct {
	path    string
	modTime time.Time
	size    int64
}

// EnforceDiskQuota checks the recordings root's total size against
// maxSizeGB; if over, it deletes pipeline subdirectories oldest-first
// until under 80% of the cap.
func EnforceDiskQuota(recordingsRoot string, maxSizeGB float64) {
	dirs, total, err := scanPipelineDirs(recordingsRoot)
	if err != nil {
		obslog.LogNoID("monitor disk quota scan failed", "err", err.Error())
		return
	}
	capBytes := int64(maxSizeGB * (1 << 30))
	if capBytes <= 0 || total <= capBytes {
		return
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].modTime.Before(dirs[j].modTime) })
	target := int64(float64(capBytes) * 0.8)
	for _, d := range dirs {
		if total <= target {
			break
		}
		if err := os.RemoveAll(d.path); err != nil {
			obslog.LogNoID("monitor disk quota evict failed", "path", d.path, "err", err.Error())
			continue
		}
		total -= d.size
		if Registry != nil {
			Registry.MonitorDiskEvictions.Inc()
		}
	}
}

// EnforceMaxDays removes any pipeline subdirectory older than maxDays,
// run on a separate, longer interval than EnforceDiskQuota.
func EnforceMaxDays(recordingsRoot string, maxDays int) {
	if maxDays <= 0 {
		return
	}
	dirs, _, err := scanPipelineDirs(recordingsRoot)
	if err != nil {
		obslog.LogNoID("monitor max-days scan failed", "err", err.Error())
		return
	}
	cutoff := time.Now().Add(-time.Duration(maxDays) * 24 * time.Hour)
	for _, d := range dirs {
		if d.modTime.Before(cutoff) {
			if err := os.RemoveAll(d.path); err != nil {
				obslog.LogNoID("monitor max-days evict failed", "path", d.path, "err", err.Error())
			} else if Registry != nil {
				Registry.MonitorDiskEvictions.Inc()
			}
		}
	}
}

func scanPipelineDirs(root string) ([]pipelineDir, int64, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}

	var dirs []pipelineDir
	var total int64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(root, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}
		size := dirSize(path)
		dirs = append(dirs, pipelineDir{path: path, modTime: info.ModTime(), size: size})
		total += size
	}
	return dirs, total, nil
}

func dirSize(path string) int64 {
	var total int64
	_ = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}
