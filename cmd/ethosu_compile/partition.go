// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/ethosu/backends/ethosu"
	"github.com/gomlx/ethosu/pkg/core/graph"
	"github.com/gomlx/ethosu/pkg/program"
	"github.com/spf13/cobra"
)

type partitionOptions struct {
	*rootOptions
	Output string
	Nodes  bool
}

func newPartitionCommand(root *rootOptions) *cobra.Command {
	opts := &partitionOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "partition <program.yaml>",
		Short: "Show the partitions of the nodes supported by the Ethos-U backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPartition(cmd, opts, args[0])
		},
	}
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "save the tagged program to this YAML file (the state dict is saved next to it)")
	cmd.Flags().BoolVar(&opts.Nodes, "nodes", false, "list every node with its delegation tag")
	return cmd
}

func runPartition(cmd *cobra.Command, opts *partitionOptions, path string) error {
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

	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Partitions of %q", p.Name)))
	table := newTable([]string{"Tag", "Nodes", "Count"}, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	for _, part := range result.Partitions {
		names := make([]string, len(part.Nodes))
		for ii, n := range part.Nodes {
			names[ii] = n.Name()
		}
		table.Row(false, part.Tag(), strings.Join(names, "\n"), fmt.Sprint(len(part.Nodes)))
	}
	fmt.Fprintln(out, table.Table.Render())

	if opts.Nodes {
		fmt.Fprintln(out, titleStyle.Render("Nodes"))
		table = newTable([]string{"Node", "Target", "Tag"})
		for _, n := range p.Graph.Nodes() {
			if n.Kind() != graph.NodeKindCallFunction {
				continue
			}
			tag := n.DelegationTag()
			isRed := tag == "" && !ethosu.IsSupported(n)
			if tag == "" {
				tag = "-"
			}
			table.Row(isRed, n.Name(), n.Target(), tag)
		}
		fmt.Fprintln(out, table.Table.Render())
	}

	if opts.Output != "" {
		if err := program.Save(p, opts.Output); err != nil {
			return err
		}
		fmt.Fprintf(out, "Tagged program saved to %s\n", opts.Output)
	}
	return nil
}
