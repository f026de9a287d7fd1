// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ethosu

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/ethosu/backends"
	"github.com/gomlx/ethosu/backends/ethosu/tosa"
	"github.com/gomlx/ethosu/backends/ethosu/vela"
	"github.com/gomlx/ethosu/backends/partitioner"
	"github.com/gomlx/ethosu/internal/workerspool"
	"github.com/gomlx/ethosu/pkg/program"
	"github.com/gomlx/ethosu/pkg/support/fsutil"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackendName is the backend id used in delegation specs.
const BackendName = "ethosu"

// FailureDumpPrefix prefixes the directories, inside the debug directory, where modules that failed
// to lower are dumped.
const FailureDumpPrefix = "failure-"

// Packager turns a serialized TOSA module into the final artifact. *vela.Packager implements it.
type Packager interface {
	Package(ctx context.Context, serialized []byte) ([]byte, error)
}

var _ Packager = (*vela.Packager)(nil)

// Backend compiles partitions of exported programs for the Ethos-U NPU.
// It holds no mutable state and can be used concurrently.
type Backend struct {
	config   Config
	caps     backends.Capabilities
	packager Packager
}

// New creates a Backend configured by the compile specs, packaging with Vela.
func New(specs []CompileSpec) *Backend {
	config := ParseCompileSpecs(specs)
	return NewWithPackager(config, vela.New(config.VelaBinary, config.AcceleratorConfig))
}

// NewWithPackager creates a Backend with the given configuration and packager.
func NewWithPackager(config Config, packager Packager) *Backend {
	return &Backend{config: config, caps: Capabilities(), packager: packager}
}

// Name returns BackendName.
func (b *Backend) Name() string { return BackendName }

// Config returns the configuration of the backend.
func (b *Backend) Config() Config { return b.config }

// Capabilities returns a copy of the capabilities of the backend.
func (b *Backend) Capabilities() backends.Capabilities { return b.caps.Clone() }

// Partition tags the nodes of p the backend supports, see the package function Partition.
func (b *Backend) Partition(p *program.ExportedProgram) (*PartitionResult, error) {
	return Partition(p, b.caps, b.config.CompileSpecs())
}

// Preprocess compiles one partition, extracted into a standalone program, into the artifact loaded
// by the runtime: it lowers p to TOSA, serializes it and packages it.
//
// If a debug directory is configured, the lowered module is dumped there (best effort). If lowering fails, the
// partially lowered module is dumped (best effort) into a new "failure-<uuid>" subdirectory of it.
func (b *Backend) Preprocess(ctx context.Context, p *program.ExportedProgram) ([]byte, error) {
	return b.preprocess(ctx, p, b.config.DebugTOSAPath)
}

func (b *Backend) preprocess(ctx context.Context, p *program.ExportedProgram, debugDir string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	module, err := Lower(p)
	if err != nil {
		var lowerErr *LoweringError
		if debugDir != "" && errors.As(err, &lowerErr) {
			dumpFailure(lowerErr, debugDir)
		}
		return nil, err
	}
	if debugDir != "" {
		if err := module.DumpDebug(debugDir); err != nil {
			klog.Warningf("ethosu: failed to dump TOSA module of %q to %s: %+v", p.Name, debugDir, err)
		}
	}
	serialized, err := module.Serialize()
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to serialize TOSA module of %q", p.Name)
	}
	artifact, err := b.packager.Package(ctx, serialized)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to package %q", p.Name)
	}
	klog.V(1).Infof("ethosu: compiled %q: TOSA module of %s, artifact of %s", p.Name,
		humanize.Bytes(uint64(len(serialized))), humanize.Bytes(uint64(len(artifact))))
	return artifact, nil
}

// dumpFailure writes the partial module of a lowering error to a new subdirectory of debugDir.
// Failures are logged, they never replace the lowering error.
func dumpFailure(lowerErr *LoweringError, debugDir string) {
	klog.Errorf("ethosu: %s", lowerErr.Describe())
	dir, err := fsutil.EnsureDir(debugDir)
	if err != nil {
		klog.Warningf("ethosu: failed to create debug directory for the failure dump: %+v", err)
		return
	}
	dir = filepath.Join(dir, FailureDumpPrefix+uuid.NewString())
	if err := dumpModule(lowerErr.Module, dir); err != nil {
		klog.Warningf("ethosu: failed to dump the partially lowered module: %+v", err)
		return
	}
	klog.Infof("ethosu: partially lowered module dumped to %s", dir)
}

// dumpModule is tosa.Module.DumpDebug, guarding against a nil module.
func dumpModule(module *tosa.Module, dir string) error {
	if module == nil {
		return errors.New("no module to dump")
	}
	return module.DumpDebug(dir)
}

// Options of CompileProgram.
type Options struct {
	// Parallelism is the maximum number of partitions compiled at the same time. 1 compiles them
	// sequentially, and 0 (or a negative value) uses the number of CPUs.
	Parallelism int

	// Progress, if set, is called after each partition is compiled (successfully or not) with the
	// number of partitions done so far. Calls are serialized.
	Progress func(done, total int)
}

// CompiledPartition is the result of the compilation of one partition.
type CompiledPartition struct {
	// Tag is the delegation tag of the partition.
	Tag string

	// Partition in the original program.
	Partition *partitioner.Partition

	// Program is the partition extracted into a standalone program.
	Program *program.ExportedProgram

	// Artifact is the bin stream loaded by the runtime.
	Artifact []byte
}

// CompileProgram partitions p (tagging its nodes), extracts every partition into a standalone
// program and compiles it with Preprocess. Debug dumps go to a subdirectory of the debug directory
// named after the partition tag.
//
// Results are in partition order. If any partition fails, the error of the first failing partition
// is returned.
func (b *Backend) CompileProgram(ctx context.Context, p *program.ExportedProgram, opts Options) ([]*CompiledPartition, error) {
	result, err := b.Partition(p)
	if err != nil {
		return nil, err
	}
	compiled := make([]*CompiledPartition, len(result.Partitions))
	for ii, part := range result.Partitions {
		extracted, err := program.Extract(p, part.Tag(), part.Nodes)
		if err != nil {
			return nil, err
		}
		compiled[ii] = &CompiledPartition{Tag: part.Tag(), Partition: part, Program: extracted}
	}

	var mu sync.Mutex
	done := 0
	errs := workerspool.New(opts.Parallelism).Run(ctx, len(compiled), func(ctx context.Context, ii int) error {
		c := compiled[ii]
		debugDir := ""
		if b.config.DebugTOSAPath != "" {
			debugDir = filepath.Join(b.config.DebugTOSAPath, c.Tag)
		}
		var err error
		c.Artifact, err = b.preprocess(ctx, c.Program, debugDir)
		mu.Lock()
		defer mu.Unlock()
		done++
		klog.V(1).Infof("ethosu: %d/%d partitions compiled", done, len(compiled))
		if opts.Progress != nil {
			opts.Progress(done, len(compiled))
		}
		return err
	})
	for ii, err := range errs {
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to compile partition %s of %q", compiled[ii].Tag, p.Name)
		}
	}
	return compiled, nil
}
