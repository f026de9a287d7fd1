// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"path/filepath"

	"github.com/gomlx/ethosu/backends/ethosu"
	"github.com/gomlx/ethosu/pkg/program"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

type lowerOptions struct {
	*rootOptions
	JSON bool
	Dump string
}

func newLowerCommand(root *rootOptions) *cobra.Command {
	opts := &lowerOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "lower <program.yaml>",
		Short: "Lower each partition to TOSA and print the resulting modules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLower(cmd, opts, args[0])
		},
	}
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the modules as JSON")
	cmd.Flags().StringVar(&opts.Dump, "dump", "", "dump the serialized modules (and their JSON) into <dir>/<tag>")
	return cmd
}

func runLower(cmd *cobra.Command, opts *lowerOptions, path string) error {
	b, err := opts.backend()
	if err != nil {
		return err
	}
	p, err := loadProgram(path)
	if err != nil {
		return err
	}
	result, err := b.Partition(p)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, part := range result.Partitions {
		extracted, err := program.Extract(p, part.Tag(), part.Nodes)
		if err != nil {
			return err
		}
		m, err := ethosu.Lower(extracted)
		if err != nil {
			var loweringErr *ethosu.LoweringError
			if errors.As(err, &loweringErr) {
				klog.Errorf("%s", loweringErr.Describe())
			}
			return errors.WithMessagef(err, "failed to lower partition %s", part.Tag())
		}
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Partition %s", part.Tag())))
		if opts.JSON {
			description, err := m.Describe()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(description))
		} else {
			fmt.Fprint(out, m.String())
		}
		if opts.Dump != "" {
			if err := m.DumpDebug(filepath.Join(opts.Dump, part.Tag())); err != nil {
				return err
			}
		}
	}
	return nil
}
