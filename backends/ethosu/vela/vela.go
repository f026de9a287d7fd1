// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package vela runs the Vela compiler on a serialized TOSA module and packages its output into the
// "vela bin stream" loaded by the Ethos-U runtime.
package vela

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/ethosu/pkg/core/tensors"
	"github.com/gomlx/ethosu/pkg/core/tensors/numpy"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// DefaultBinary is the Vela executable looked up in PATH.
	DefaultBinary = "vela"

	// DefaultAcceleratorConfig is the Ethos-U configuration compiled for.
	DefaultAcceleratorConfig = "ethos-u55-128"

	// InputFileName is the name of the serialized module given to Vela.
	InputFileName = "out.tosa"

	// OutputArchive is the path, relative to the working directory, of the archive Vela writes.
	OutputArchive = "output/out_sg0_vela.npz"

	// ScratchShapeKey is the archive entry whose first element is the scratch memory size in bytes.
	ScratchShapeKey = "scratch_shape"
)

// CompilerError is returned when the Vela subprocess fails.
type CompilerError struct {
	// Command that was run.
	Command string

	// ExitCode of the process, or -1 if it didn't start or was killed.
	ExitCode int

	// Stderr captured from the process.
	Stderr string

	Err error
}

// Error implements error.
func (e *CompilerError) Error() string {
	msg := fmt.Sprintf("vela compiler failed (exit code %d) running %q: %v", e.ExitCode, e.Command, e.Err)
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s\nSTDERR captured:\n%s", msg, e.Stderr)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *CompilerError) Unwrap() error { return e.Err }

// Packager compiles serialized TOSA modules with Vela. The zero value is not valid, use New.
type Packager struct {
	// Binary is the Vela executable: a path, or a name looked up in PATH.
	Binary string

	// AcceleratorConfig is passed to Vela's --accelerator-config.
	AcceleratorConfig string

	// TempDir is the parent of the working directories. If empty, os.TempDir() is used.
	TempDir string
}

// New creates a Packager. Empty arguments take the default values.
func New(binary, acceleratorConfig string) *Packager {
	if binary == "" {
		binary = DefaultBinary
	}
	if acceleratorConfig == "" {
		acceleratorConfig = DefaultAcceleratorConfig
	}
	return &Packager{Binary: binary, AcceleratorConfig: acceleratorConfig}
}

// Package compiles the serialized TOSA module with Vela and returns the bin stream with its blocks.
//
// Vela runs in a temporary working directory, removed before returning. It has no timeout: cancel ctx
// to kill it.
func (p *Packager) Package(ctx context.Context, serialized []byte) ([]byte, error) {
	workDir, err := os.MkdirTemp(p.TempDir, "ethosu_vela_")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create working directory for vela")
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			klog.Warningf("failed to remove vela working directory %q: %+v", workDir, err)
		}
	}()
	klog.V(1).Infof("compiling %s TOSA module with vela in %s", humanize.Bytes(uint64(len(serialized))), workDir)

	inputPath := filepath.Join(workDir, InputFileName)
	if err := os.WriteFile(inputPath, serialized, 0o644); err != nil {
		return nil, errors.Wrapf(err, "failed to write %q", inputPath)
	}
	if err := p.run(ctx, workDir); err != nil {
		return nil, err
	}

	archivePath := filepath.Join(workDir, OutputArchive)
	entries, err := numpy.FromNpzFile(archivePath)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to read vela output")
	}
	blocks, scratchSize, err := BlocksFromArchive(entries)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid vela output %q", archivePath)
	}
	artifact := EncodeBinStream(blocks, scratchSize)
	klog.V(1).Infof("vela: %d blocks, scratch of %s, artifact of %s", len(blocks),
		humanize.Bytes(uint64(scratchSize)), humanize.Bytes(uint64(len(artifact))))
	return artifact, nil
}

// run executes Vela in workDir, and handles errors.
func (p *Packager) run(ctx context.Context, workDir string) error {
	binPath, err := exec.LookPath(p.Binary)
	if err != nil {
		return &CompilerError{Command: p.Binary, ExitCode: -1,
			Err: errors.Wrapf(err, "cannot find vela binary %q, install it with `pip install ethos-u-vela`", p.Binary)}
	}
	klog.V(2).Infof("using vela from %q", binPath)
	cmd := exec.CommandContext(ctx, binPath, "--accelerator-config", p.AcceleratorConfig, InputFileName)
	cmd.Dir = workDir
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdoutBuf, &stderrBuf
	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.WithMessage(ctxErr, err.Error())
		}
		return &CompilerError{Command: cmd.String(), ExitCode: exitCode, Stderr: stderrBuf.String(), Err: err}
	}
	if klog.V(2).Enabled() {
		klog.Infof("vela output:\n%s", stdoutBuf.String())
	}
	return nil
}

// BlocksFromArchive converts the entries of a Vela archive to blocks, in archive order, and returns
// the scratch size read from its "scratch_shape" entry.
func BlocksFromArchive(entries []numpy.Entry) (blocks []Block, scratchSize int, err error) {
	foundScratch := false
	blocks = make([]Block, 0, len(entries))
	for _, entry := range entries {
		blocks = append(blocks, Block{Name: entry.Name, Data: entry.Tensor.Bytes()})
		if entry.Name == ScratchShapeKey {
			scratchSize, err = firstInt(entry.Tensor)
			if err != nil {
				return nil, 0, errors.WithMessagef(err, "invalid %q entry", ScratchShapeKey)
			}
			foundScratch = true
		}
	}
	if !foundScratch {
		return nil, 0, errors.Errorf("archive has no %q entry", ScratchShapeKey)
	}
	return blocks, scratchSize, nil
}

func firstInt(t *tensors.Tensor) (int, error) {
	if t.Size() == 0 {
		return 0, errors.Errorf("tensor %s is empty", t)
	}
	var value int64
	switch t.DType() {
	case dtypes.Int64:
		value = tensors.CopyFlatData[int64](t)[0]
	case dtypes.Int32:
		value = int64(tensors.CopyFlatData[int32](t)[0])
	case dtypes.Uint64:
		value = int64(tensors.CopyFlatData[uint64](t)[0])
	case dtypes.Uint32:
		value = int64(tensors.CopyFlatData[uint32](t)[0])
	default:
		return 0, errors.Errorf("tensor %s is not an integer tensor", t)
	}
	if value < 0 {
		return 0, errors.Errorf("negative size %d", value)
	}
	return int(value), nil
}
