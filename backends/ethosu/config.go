// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ethosu

import (
	"os"

	"github.com/gomlx/ethosu/backends/ethosu/vela"
	"k8s.io/klog/v2"
)

// Compile spec keys understood by the Ethos-U delegate.
const (
	// SpecDebugTOSAPath enables the debug dump of the lowered TOSA modules into the given directory.
	SpecDebugTOSAPath = "debug_tosa_path"

	// SpecVelaBinary overrides the Vela executable.
	SpecVelaBinary = "vela_binary"

	// SpecAcceleratorConfig overrides the Ethos-U configuration passed to Vela.
	SpecAcceleratorConfig = "accelerator_config"
)

// EnvVelaBinary is the environment variable used as the default Vela executable.
const EnvVelaBinary = "ETHOSU_VELA_BINARY"

// CompileSpec is one key/value option given to the delegate by the host.
type CompileSpec struct {
	Key   string
	Value []byte
}

// Config is the parsed configuration of the delegate. It is not changed after parsing.
type Config struct {
	// DebugTOSAPath is the directory where lowered modules are dumped. Empty disables the dump.
	DebugTOSAPath string

	// VelaBinary is the Vela executable.
	VelaBinary string

	// AcceleratorConfig is the target Ethos-U configuration, e.g. "ethos-u55-128".
	AcceleratorConfig string
}

// DefaultConfig returns the configuration without any compile spec: no debug dump, and the Vela
// binary from $ETHOSU_VELA_BINARY (or "vela").
func DefaultConfig() Config {
	binary := os.Getenv(EnvVelaBinary)
	if binary == "" {
		binary = vela.DefaultBinary
	}
	return Config{VelaBinary: binary, AcceleratorConfig: vela.DefaultAcceleratorConfig}
}

// ParseCompileSpecs returns the configuration given by the compile specs, over DefaultConfig.
// Unknown keys are logged and ignored. If a key is repeated, the last value is used.
func ParseCompileSpecs(specs []CompileSpec) Config {
	config := DefaultConfig()
	for _, spec := range specs {
		value := string(spec.Value)
		switch spec.Key {
		case SpecDebugTOSAPath:
			config.DebugTOSAPath = value
		case SpecVelaBinary:
			config.VelaBinary = value
		case SpecAcceleratorConfig:
			config.AcceleratorConfig = value
		default:
			klog.Warningf("ethosu: ignoring unknown compile spec %q", spec.Key)
		}
	}
	return config
}

// CompileSpecs returns the compile specs that reproduce the configuration with ParseCompileSpecs.
func (c Config) CompileSpecs() []CompileSpec {
	var specs []CompileSpec
	if c.DebugTOSAPath != "" {
		specs = append(specs, CompileSpec{Key: SpecDebugTOSAPath, Value: []byte(c.DebugTOSAPath)})
	}
	specs = append(specs,
		CompileSpec{Key: SpecVelaBinary, Value: []byte(c.VelaBinary)},
		CompileSpec{Key: SpecAcceleratorConfig, Value: []byte(c.AcceleratorConfig)})
	return specs
}
