package procinit

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/kolkov/ddtrace/internal/ddtrace/perfcounter"
)

// Config holds the deploy-time knobs: root directory, counter kind,
// counter backend, and server id. The per-architecture (type, config)
// event table is the compiled-in lookupEvent table in perfcounter and
// has no field here. Schema version and ring capacity
// are true Go compile-time constants (channel.SchemaVersion,
// channel.RecordQueueSize) and cannot be overridden here — changing
// either requires a rebuild, which is also the schema-version-bump
// event spec.md describes, so no YAML field is offered that would
// silently claim to change them.
type Config struct {
	Root           string `yaml:"root"`
	CounterKind    string `yaml:"counter_kind"`
	CounterBackend string `yaml:"counter_backend"`
	ServerID       uint16 `yaml:"server_id"`
}

// LoadConfig reads a YAML config file. A missing file is not an error —
// callers fall back to the built-in defaults; a malformed one is.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		Root:           DefaultRoot,
		CounterBackend: "perf_event",
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "procinit: read config %s", path)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "procinit: parse config %s", path)
	}
	return cfg, nil
}

// DefaultRoot is the fallback shared-memory directory when no config
// overrides it. Production deployments mount a tmpfs here.
const DefaultRoot = "/dev/shm/ddtrace"

// ResolveKind maps the config's human-readable CounterKind string to
// a perfcounter.Kind, defaulting to Cycles. Exported so callers that
// load a Config from YAML (rather than picking a Kind in code) can
// derive the Init argument from it; see InitFromConfig.
func (c Config) ResolveKind() perfcounter.Kind {
	switch c.CounterKind {
	case "l3_reference":
		return perfcounter.L3Reference
	case "l3_miss":
		return perfcounter.L3Miss
	case "l2_eviction_clean":
		return perfcounter.L2EvictionClean
	case "l2_eviction_dirty":
		return perfcounter.L2EvictionDirty
	default:
		return perfcounter.Cycles
	}
}

// ResolveBackend maps the config's CounterBackend string to a
// perfcounter.Backend, defaulting to BackendPerfEvent.
func (c Config) ResolveBackend() perfcounter.Backend {
	if c.CounterBackend == "kernel_module" {
		return perfcounter.BackendKernelModule
	}
	return perfcounter.BackendPerfEvent
}

// InitFromConfig is Init with the counter kind and backend derived
// from cfg's YAML-sourced CounterKind/CounterBackend strings, for
// callers that configure the counter selection via LoadConfig instead
// of choosing a perfcounter.Kind/Backend in code.
func InitFromConfig(cfg Config) error {
	return Init(cfg.ResolveKind(), cfg.ResolveBackend(), cfg.ServerID, cfg)
}
