// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/ethosu/backends/ethosu/vela"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newInspectCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <artifact.bin>",
		Short: "List the blocks of a Vela bin stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args[0])
		},
	}
}

func runInspect(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read artifact")
	}
	blocks, err := vela.DecodeBinStream(data)
	if err != nil {
		return errors.WithMessagef(err, "failed to decode %s", path)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s (%s)", path, humanize.Bytes(uint64(len(data))))))
	table := newTable([]string{"Block", "Length", "Padded"}, lipgloss.Left, lipgloss.Right)
	for _, block := range blocks {
		padded := (len(block.Data) + vela.Alignment - 1) / vela.Alignment * vela.Alignment
		table.Row(false, block.Name, humanize.Comma(int64(len(block.Data))), humanize.Comma(int64(padded)))
	}
	fmt.Fprintln(out, table.Table.Render())
	return nil
}
