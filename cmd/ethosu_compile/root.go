// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/ethosu/backends/ethosu"
	"github.com/gomlx/ethosu/pkg/program"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// rootOptions holds the flags shared by all commands.
type rootOptions struct {
	Specs   []string
	NoColor bool
}

// compileSpecs parses the --spec key=value flags.
func (o *rootOptions) compileSpecs() ([]ethosu.CompileSpec, error) {
	specs := make([]ethosu.CompileSpec, 0, len(o.Specs))
	for _, spec := range o.Specs {
		key, value, found := strings.Cut(spec, "=")
		if !found || key == "" {
			return nil, errors.Errorf("invalid --spec %q, it must be in the form key=value", spec)
		}
		specs = append(specs, ethosu.CompileSpec{Key: key, Value: []byte(value)})
	}
	return specs, nil
}

// backend creates the Ethos-U backend configured by the --spec flags.
func (o *rootOptions) backend() (*ethosu.Backend, error) {
	specs, err := o.compileSpecs()
	if err != nil {
		return nil, err
	}
	return ethosu.New(specs), nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "ethosu_compile",
		Short: "Compile exported programs for the Ethos-U NPU",
		Long: `Partition exported programs into the parts the Ethos-U NPU supports, lower them to
TOSA 0.80, and package them with Vela into the bin streams loaded by the runtime.

Programs are YAML files referencing a NumPy .npz state dict.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.NoColor {
				lipgloss.SetColorProfile(termenv.Ascii)
			}
		},
	}
	cmd.PersistentFlags().StringArrayVar(&opts.Specs, "spec", nil,
		"compile spec given to the delegate, in the form key=value (e.g. debug_tosa_path=/tmp/tosa); can be repeated")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colors in the output")

	// klog flags, e.g. -v=2 for the lowering of each node.
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cmd.AddCommand(newPartitionCommand(opts))
	cmd.AddCommand(newLowerCommand(opts))
	cmd.AddCommand(newCompileCommand(opts))
	cmd.AddCommand(newInspectCommand(opts))
	return cmd
}

// loadProgram loads the program and validates it.
func loadProgram(path string) (*program.ExportedProgram, error) {
	p, err := program.Load(path)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
