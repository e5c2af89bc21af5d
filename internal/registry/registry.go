// Package registry enumerates the orchestrator's compiled-in adapters
// (backends, patches, workflows) as a static table built at compile
// time, since Go has no runtime entry-point-scanning equivalent for
// installed packages. Backs the `plugins list` CLI command.
package registry

// Group names one of the three adapter kinds the registry discovers.
type Group string

const (
	GroupBackends  Group = "backends"
	GroupPatches   Group = "patches"
	GroupWorkflows Group = "workflows"
)

// Entry is one compiled-in adapter.
type Entry struct {
	Name        string `json:"name"`
	Group       Group  `json:"group"`
	Description string `json:"description"`
}

// entries is the static registry. Real backend/patch/workflow
// implementations live elsewhere in the orchestrator; this table just
// names what's compiled in, for `pipectl plugins list`.
var entries = []Entry{
	{Name: "coral_edgetpu", Group: GroupBackends, Description: "Coral Edge TPU inference backend"},
	{Name: "cpu", Group: GroupBackends, Description: "CPU-only fallback inference backend"},
	{Name: "rknn", Group: GroupBackends, Description: "Rockchip NPU inference backend, gated by auto_patch_rknn"},

	{Name: "stream_manager", Group: GroupPatches, Description: "Patches the stream manager lifecycle hooks"},
	{Name: "camera", Group: GroupPatches, Description: "Patches camera source discovery"},
	{Name: "sink", Group: GroupPatches, Description: "Patches the sink chain construction"},
	{Name: "webrtc", Group: GroupPatches, Description: "Patches WebRTC bridge session setup"},
	{Name: "plugins", Group: GroupPatches, Description: "Patches adapter registration order"},
	{Name: "buffer_sink", Group: GroupPatches, Description: "Patches BufferSink drop policy selection"},
	{Name: "metric_sink", Group: GroupPatches, Description: "Patches MetricSink field-selector resolution"},
	{Name: "video_sink", Group: GroupPatches, Description: "Patches VideoSink segment rollover"},

	{Name: "grid_merge", Group: GroupWorkflows, Description: "Grid-layout multi-source frame composition"},
	{Name: "horizontal_merge", Group: GroupWorkflows, Description: "Horizontal-layout multi-source frame composition"},
}

// List returns every registered entry, optionally filtered by group.
// An empty group returns all entries.
func List(group Group) []Entry {
	if group == "" {
		out := make([]Entry, len(entries))
		copy(out, entries)
		return out
	}
	var out []Entry
	for _, e := range entries {
		if e.Group == group {
			out = append(out, e)
		}
	}
	return out
}
