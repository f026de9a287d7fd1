// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/ethosu/backends/ethosu"
	"github.com/gomlx/ethosu/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type compileOptions struct {
	*rootOptions
	OutputDir   string
	Parallelism int
	NoProgress  bool
}

func newCompileCommand(root *rootOptions) *cobra.Command {
	opts := &compileOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "compile <program.yaml>",
		Short: "Compile every partition into a Vela bin stream, saved as <output_dir>/<tag>.bin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, opts, args[0])
		},
	}
	cmd.Flags().StringVarP(&opts.OutputDir, "output_dir", "o", ".", "directory where the artifacts are written")
	cmd.Flags().IntVar(&opts.Parallelism, "parallelism", 0, "number of partitions compiled in parallel: 0 for the number of cores")
	cmd.Flags().BoolVar(&opts.NoProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

func runCompile(cmd *cobra.Command, opts *compileOptions, path string) error {
	b, err := opts.backend()
	if err != nil {
		return err
	}
	p, err := loadProgram(path)
	if err != nil {
		return err
	}
	outputDir, err := fsutil.EnsureDir(opts.OutputDir)
	if err != nil {
		return err
	}

	compileOpts := ethosu.Options{Parallelism: opts.Parallelism}
	var bar *progressbar.ProgressBar
	if !opts.NoProgress {
		compileOpts.Progress = func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetTheme(progressbar.ThemeASCII),
					progressbar.OptionSetDescription("compiling partitions"),
					progressbar.OptionShowCount(),
				)
			}
			_ = bar.Set(done)
		}
	}
	compiled, err := b.CompileProgram(cmd.Context(), p, compileOpts)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Compiled %q for %s", p.Name, b.Config().AcceleratorConfig)))
	table := newTable([]string{"Tag", "Nodes", "Inputs", "Outputs", "Artifact", "Size"},
		lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Right, lipgloss.Left, lipgloss.Right)
	for _, c := range compiled {
		artifactPath := filepath.Join(outputDir, c.Tag+".bin")
		if err := os.WriteFile(artifactPath, c.Artifact, 0o644); err != nil {
			return errors.Wrapf(err, "failed to write artifact of partition %s", c.Tag)
		}
		table.Row(false, c.Tag,
			fmt.Sprint(len(c.Partition.Nodes)),
			fmt.Sprint(len(c.Program.Graph.Placeholders())),
			fmt.Sprint(len(c.Program.Graph.OutputNode().Results())),
			artifactPath,
			humanize.Bytes(uint64(len(c.Artifact))))
	}
	fmt.Fprintln(out, table.Table.Render())
	return nil
}
