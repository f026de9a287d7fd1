// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ethosu

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gomlx/ethosu/backends/ethosu/tosa"
	"github.com/gomlx/ethosu/backends/ethosu/vela"
	"github.com/gomlx/ethosu/pkg/core/graph"
	. "github.com/gomlx/ethosu/pkg/core/graph/graphtest"
	"github.com/gomlx/ethosu/pkg/program"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePackager records the serialized modules and returns a bin stream with the first bytes of each.
type fakePackager struct {
	mu    sync.Mutex
	calls [][]byte
	err   error
}

func (f *fakePackager) Package(_ context.Context, serialized []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, serialized)
	if f.err != nil {
		return nil, f.err
	}
	return vela.EncodeBinStream([]vela.Block{{Name: "cmd_data", Data: serialized[:16]}}, 32), nil
}

func buildLinear() *program.ExportedProgram {
	rng := rand.New(rand.NewPCG(11, 12))
	b := NewBuilder("linear")
	x := b.Input("x", F32, 1, 4)
	w := b.Param("fc.weight", RandomTensor(rng, 4, 2))
	bias := b.Param("fc.bias", RandomTensor(rng, 2))
	mm := b.Call("aten.addmm.default", MS(F32, 1, 2), N(bias), N(x), N(w))
	return b.Output(mm)
}

func TestPreprocess(t *testing.T) {
	debugDir := filepath.Join(t.TempDir(), "debug")
	packager := &fakePackager{}
	config := ParseCompileSpecs([]CompileSpec{{Key: SpecDebugTOSAPath, Value: []byte(debugDir)}})
	backend := NewWithPackager(config, packager)
	assert.Equal(t, BackendName, backend.Name())

	artifact, err := backend.Preprocess(context.Background(), buildLinear())
	require.NoError(t, err)
	require.Len(t, packager.calls, 1)
	blocks, err := vela.DecodeBinStream(artifact)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, packager.calls[0][:16], blocks[0].Data)
	assert.Equal(t, vela.ScratchBlockName, blocks[1].Name)

	m, err := tosa.Deserialize(packager.calls[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"aten_addmm_default"}, m.Outputs())
	assert.Equal(t, []string{"x"}, m.Inputs())

	dumped, err := os.ReadFile(filepath.Join(debugDir, tosa.DebugFlatbufferFile))
	require.NoError(t, err)
	assert.Equal(t, packager.calls[0], dumped)
	_, err = os.Stat(filepath.Join(debugDir, tosa.DebugDescriptionFile))
	require.NoError(t, err)
}

func TestPreprocess_DebugDumpFailure(t *testing.T) {
	// The debug directory is a regular file, so the dump fails, but compilation goes on.
	debugDir := filepath.Join(t.TempDir(), "debug")
	require.NoError(t, os.WriteFile(debugDir, []byte("not a directory"), 0o644))
	packager := &fakePackager{}
	backend := NewWithPackager(Config{DebugTOSAPath: debugDir}, packager)
	artifact, err := backend.Preprocess(context.Background(), buildLinear())
	require.NoError(t, err)
	assert.NotEmpty(t, artifact)
	require.Len(t, packager.calls, 1)
}

func TestPreprocess_LoweringFailureDump(t *testing.T) {
	debugDir := filepath.Join(t.TempDir(), "debug")
	packager := &fakePackager{}
	backend := NewWithPackager(Config{DebugTOSAPath: debugDir}, packager)

	b := NewBuilder("alpha")
	x := b.Input("x", F32, 2)
	sum := b.Call("aten.add.Tensor", MS(F32, 2), N(x), N(x), graph.FloatArg(3))
	_, err := backend.Preprocess(context.Background(), b.Output(sum))
	var lowerErr *LoweringError
	require.True(t, errors.As(err, &lowerErr))
	assert.Empty(t, packager.calls)

	entries, err := os.ReadDir(debugDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), FailureDumpPrefix))
	m, err := tosa.Deserialize(must.M1(os.ReadFile(filepath.Join(debugDir, entries[0].Name(), tosa.DebugFlatbufferFile))))
	require.NoError(t, err)
	assert.NotNil(t, m.Tensor("aten_add_tensor"))
}

func TestPreprocess_PackagerErrors(t *testing.T) {
	packager := &fakePackager{err: errors.New("vela crashed")}
	backend := NewWithPackager(Config{}, packager)
	_, err := backend.Preprocess(context.Background(), buildLinear())
	require.ErrorContains(t, err, "vela crashed")

	// A missing Vela binary is reported as a compiler error.
	backend = New([]CompileSpec{{Key: SpecVelaBinary, Value: []byte(filepath.Join(t.TempDir(), "no-vela"))}})
	_, err = backend.Preprocess(context.Background(), buildLinear())
	var compilerErr *vela.CompilerError
	require.True(t, errors.As(err, &compilerErr))
	assert.Equal(t, -1, compilerErr.ExitCode)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewWithPackager(Config{}, &fakePackager{}).Preprocess(ctx, buildLinear())
	require.ErrorIs(t, err, context.Canceled)
}

func TestCompileProgram(t *testing.T) {
	for _, parallelism := range []int{1, 4} {
		debugDir := t.TempDir()
		packager := &fakePackager{}
		backend := NewWithPackager(Config{DebugTOSAPath: debugDir}, packager)
		p, nodes := buildMixed()

		var progress []int
		compiled, err := backend.CompileProgram(context.Background(), p, Options{
			Parallelism: parallelism,
			Progress:    func(done, total int) { progress = append(progress, done*10+total) },
		})
		require.NoError(t, err)
		require.Len(t, compiled, 2)
		assert.Equal(t, []int{12, 22}, progress)
		assert.Len(t, packager.calls, 2)

		assert.Equal(t, "tag0", compiled[0].Tag)
		assert.Equal(t, "tag0", nodes["add"].DelegationTag())
		assert.Equal(t, "tag1", compiled[1].Tag)
		assert.Equal(t, "tag1", nodes["div"].DelegationTag())
		for _, c := range compiled {
			assert.Equal(t, c.Tag, c.Program.Name)
			_, err := vela.DecodeBinStream(c.Artifact)
			require.NoError(t, err)
			_, err = os.Stat(filepath.Join(debugDir, c.Tag, tosa.DebugFlatbufferFile))
			require.NoError(t, err, "debug dump of %s", c.Tag)
		}
		// The second partition reads both of its operands from outside.
		assert.Len(t, compiled[1].Program.Graph.Placeholders(), 2)
	}
}

func TestCompileProgram_Failure(t *testing.T) {
	backend := NewWithPackager(Config{}, &fakePackager{err: errors.New("no NPU for you")})
	p, _ := buildMixed()
	_, err := backend.CompileProgram(context.Background(), p, Options{Parallelism: 2})
	require.ErrorContains(t, err, "partition tag0")
	require.ErrorContains(t, err, "no NPU for you")
}
