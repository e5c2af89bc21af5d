package config

// Descriptor is the merged runtime configuration: file, then CORAL_*
// env vars, then --set overrides, each later source winning.
type Descriptor struct {
	Platform string `yaml:"platform"`

	EnableStreamManagerPatch bool `yaml:"enable_stream_manager_patch"`
	EnableCameraPatch        bool `yaml:"enable_camera_patch"`
	EnableSinkPatch          bool `yaml:"enable_sink_patch"`
	EnableWebRTCPatch        bool `yaml:"enable_webrtc_patch"`
	EnablePluginsPatch       bool `yaml:"enable_plugins_patch"`
	EnableBufferSinkPatch    bool `yaml:"enable_buffer_sink_patch"`
	EnableMetricSinkPatch    bool `yaml:"enable_metric_sink_patch"`
	EnableVideoSinkPatch     bool `yaml:"enable_video_sink_patch"`

	AutoPatchRKNN        bool     `yaml:"auto_patch_rknn"`
	AutoDiscoverBackends bool     `yaml:"auto_discover_backends"`
	BackendEntryModules  []string `yaml:"backend_entry_modules"`
	ExtraPatches         []string `yaml:"extra_patches"`
	Services             map[string]string `yaml:"services"`

	Tunables Tunables `yaml:"-"`

	CacheRoot  string `yaml:"cache_root"`
	OutputDir  string `yaml:"output_dir"`
	ListenAddr string `yaml:"listen_addr"`
}

// DefaultDescriptor is the built-in baseline before file/env/set
// overrides are applied.
func DefaultDescriptor() Descriptor {
	return Descriptor{
		Platform:             "generic",
		AutoDiscoverBackends: true,
		Tunables:             Defaults(),
		CacheRoot:            "/var/lib/pipectl",
		OutputDir:            "/var/lib/pipectl/metrics",
		ListenAddr:           "unix:///var/run/pipectl.sock",
	}
}
