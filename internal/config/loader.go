package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"
	"gopkg.in/yaml.v3"
)

// Setter applies a string value (from --set K=V) onto a Descriptor,
// via an explicit table rather than reflecting over struct fields.
type Setter func(d *Descriptor, value string) error

// setterTable maps a dotted config key to the setter that knows how to
// parse and apply its value.
var setterTable = map[string]Setter{
	"platform":                     func(d *Descriptor, v string) error { d.Platform = v; return nil },
	"auto_patch_rknn":              setBool(func(d *Descriptor) *bool { return &d.AutoPatchRKNN }),
	"auto_discover_backends":       setBool(func(d *Descriptor) *bool { return &d.AutoDiscoverBackends }),
	"enable_stream_manager_patch":  setBool(func(d *Descriptor) *bool { return &d.EnableStreamManagerPatch }),
	"enable_camera_patch":          setBool(func(d *Descriptor) *bool { return &d.EnableCameraPatch }),
	"enable_sink_patch":            setBool(func(d *Descriptor) *bool { return &d.EnableSinkPatch }),
	"enable_webrtc_patch":          setBool(func(d *Descriptor) *bool { return &d.EnableWebRTCPatch }),
	"enable_plugins_patch":         setBool(func(d *Descriptor) *bool { return &d.EnablePluginsPatch }),
	"enable_buffer_sink_patch":     setBool(func(d *Descriptor) *bool { return &d.EnableBufferSinkPatch }),
	"enable_metric_sink_patch":     setBool(func(d *Descriptor) *bool { return &d.EnableMetricSinkPatch }),
	"enable_video_sink_patch":      setBool(func(d *Descriptor) *bool { return &d.EnableVideoSinkPatch }),
	"cache_root":                   func(d *Descriptor, v string) error { d.CacheRoot = v; return nil },
	"output_dir":                   func(d *Descriptor, v string) error { d.OutputDir = v; return nil },
	"listen_addr":                  func(d *Descriptor, v string) error { d.ListenAddr = v; return nil },
	"extra_patches":                func(d *Descriptor, v string) error { d.ExtraPatches = splitCSV(v); return nil },
	"backend_entry_modules":        func(d *Descriptor, v string) error { d.BackendEntryModules = splitCSV(v); return nil },

	"STREAM_MANAGER_QUEUE_TIMEOUT":            setDurationSecs(func(d *Descriptor) *time.Duration { return &d.Tunables.QueueTimeout }),
	"STREAM_MANAGER_HEALTH_CHECK_TIMEOUT":     setDurationSecs(func(d *Descriptor) *time.Duration { return &d.Tunables.HealthCheckTimeout }),
	"STREAM_MANAGER_MAX_HEALTH_FAILURES":      setInt(func(d *Descriptor) *int { return &d.Tunables.MaxHealthFailures }),
	"STREAM_MANAGER_PROCESS_JOIN_TIMEOUT":     setDurationSecs(func(d *Descriptor) *time.Duration { return &d.Tunables.ProcessJoinTimeout }),
	"STREAM_MANAGER_TERMINATION_GRACE_PERIOD": setDurationSecs(func(d *Descriptor) *time.Duration { return &d.Tunables.TerminationGracePeriod }),
	"PIPELINE_MONITOR_INTERVAL":               setDurationSecs(func(d *Descriptor) *time.Duration { return &d.Tunables.MonitorPollInterval }),
	"PIPELINE_RESULTS_MAX_DAYS":                setInt(func(d *Descriptor) *int { return &d.Tunables.ResultsMaxDays }),
	"PIPELINE_CLEANUP_INTERVAL":               setDurationSecs(func(d *Descriptor) *time.Duration { return &d.Tunables.CleanupInterval }),
	"PIPELINE_MAX_SIZE_GB":                    setFloat(func(d *Descriptor) *float64 { return &d.Tunables.MaxSizeGB }),
	"PIPELINE_SIZE_CHECK_INTERVAL":            setDurationSecs(func(d *Descriptor) *time.Duration { return &d.Tunables.SizeCheckInterval }),
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func setBool(get func(*Descriptor) *bool) Setter {
	return func(d *Descriptor, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid bool %q: %w", v, err)
		}
		*get(d) = b
		return nil
	}
}

func setInt(get func(*Descriptor) *int) Setter {
	return func(d *Descriptor, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid int %q: %w", v, err)
		}
		*get(d) = n
		return nil
	}
}

func setFloat(get func(*Descriptor) *float64) Setter {
	return func(d *Descriptor, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid float %q: %w", v, err)
		}
		*get(d) = f
		return nil
	}
}

// setDurationSecs builds a Setter for a *time.Duration field expressed
// in fractional seconds on the wire/CLI.
func setDurationSecs(get func(*Descriptor) *time.Duration) Setter {
	return func(d *Descriptor, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid duration-seconds %q: %w", v, err)
		}
		*get(d) = time.Duration(f * float64(time.Second))
		return nil
	}
}

// ApplySet applies one "K=V" override string to d.
func ApplySet(d *Descriptor, kv string) error {
	parts := strings.SplitN(kv, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid --set value %q: expected K=V", kv)
	}
	key, value := parts[0], parts[1]
	setter, ok := setterTable[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	return setter(d, value)
}

// Load builds a Descriptor from an optional YAML file, CORAL_* env
// vars, and repeated --set overrides, applied in that precedence
// order (file, then env, then set).
func Load(fs *flag.FlagSet, args []string, noEnv bool) (Descriptor, error) {
	d := DefaultDescriptor()

	var configFile string
	var sets stringSliceFlag
	fs.StringVar(&configFile, "c", "", "path to the descriptor config file")
	fs.Var(&sets, "set", "override a config key, repeatable (K=V)")
	fs.BoolVar(&noEnv, "no-env", noEnv, "do not merge CORAL_* environment variables")

	if err := ff.Parse(fs, args, ff.WithConfigFileFlag("c")); err != nil {
		return d, fmt.Errorf("config: parse flags: %w", err)
	}

	if configFile != "" {
		raw, err := os.ReadFile(configFile)
		if err != nil {
			return d, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &d); err != nil {
			return d, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if !noEnv {
		if err := applyEnv(&d); err != nil {
			return d, err
		}
	}

	for _, kv := range sets {
		if err := ApplySet(&d, kv); err != nil {
			return d, err
		}
	}

	return d, nil
}

// applyEnv merges every CORAL_<KEY> environment variable that has a
// registered setterTable entry onto d, using the same key space as
// --set (e.g. CORAL_PLATFORM, CORAL_STREAM_MANAGER_QUEUE_TIMEOUT).
// Keys with no corresponding variable set are left untouched, so file
// values still stand when the environment is silent.
func applyEnv(d *Descriptor) error {
	for key, setter := range setterTable {
		envName := "CORAL_" + strings.ToUpper(key)
		v, ok := os.LookupEnv(envName)
		if !ok {
			continue
		}
		if err := setter(d, v); err != nil {
			return fmt.Errorf("config: env %s: %w", envName, err)
		}
	}
	return nil
}

type stringSliceFlag []string

func (s *stringSliceFlag) String() string { return strings.Join(*s, ",") }
func (s *stringSliceFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}
