// Package config carries the knobs spec.md leaves implicit — the
// LoadCoordinator's unloadDelay and fetchOnly mode, the default
// context name, and the logger's level — loadable from an HCL file via
// github.com/hashicorp/hcl/v2, mirroring how the rest of this module's
// retrieval pack treats HCL as its configuration-language default.
package config

import (
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/pkg/errors"
)

// Config is the full set of tunables a racer.Model is built from.
type Config struct {
	// FetchOnly downgrades every subscribe to a fetch (spec.md §4.6).
	FetchOnly bool `hcl:"fetch_only,optional"`
	// DefaultContext names the context a root Handle binds to before
	// any explicit Handle.Context(id) call.
	DefaultContext string `hcl:"default_context,optional"`
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `hcl:"log_level,optional"`
	// UnloadDelayRaw is the HCL-decoded duration string (e.g. "5s");
	// use UnloadDelay for the parsed value.
	UnloadDelayRaw string `hcl:"unload_delay,optional"`

	// UnloadDelay debounces LoadCoordinator unloads (spec.md §4.6).
	// Zero (the default) unloads immediately once a refcount reaches 0.
	// Parsed from UnloadDelayRaw by Load; set directly when building a
	// Config in code.
	UnloadDelay time.Duration `hcl:"-"`
}

// fileShape mirrors Config's HCL tags under a top-level "racer" block,
// since hclsimple.DecodeFile expects a named root block rather than a
// bag of top-level attributes.
type fileShape struct {
	Racer Config `hcl:"racer,block"`
}

// Default returns the zero-tuned configuration: no unload delay,
// subscribes behave as subscribes, context "default", warn logging.
func Default() *Config {
	return &Config{
		DefaultContext: "default",
		LogLevel:       "warn",
	}
}

// Load decodes an HCL file of the form:
//
//	racer {
//	  unload_delay    = "5s"
//	  fetch_only      = false
//	  default_context = "default"
//	  log_level       = "info"
//	}
//
// Unset optional fields keep Default's values.
func Load(path string) (*Config, error) {
	var shape fileShape
	shape.Racer = *Default()
	if err := hclsimple.DecodeFile(path, nil, &shape); err != nil {
		return nil, errors.Wrapf(err, "racer/config: decode %s", path)
	}
	out := shape.Racer
	if out.DefaultContext == "" {
		out.DefaultContext = "default"
	}
	if out.LogLevel == "" {
		out.LogLevel = "warn"
	}
	if out.UnloadDelayRaw != "" {
		d, err := time.ParseDuration(out.UnloadDelayRaw)
		if err != nil {
			return nil, errors.Wrapf(err, "racer/config: unload_delay %q", out.UnloadDelayRaw)
		}
		out.UnloadDelay = d
	}
	return &out, nil
}
