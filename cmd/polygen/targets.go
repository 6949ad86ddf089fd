// Copyright 2026 go-polyhedral Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ajroetker/go-polyhedral/poly/codegen"
	"github.com/ajroetker/go-polyhedral/poly/target"
)

func newTargetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List emission targets and their resource models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := [][]string{{"TARGET", "RESOURCES", "VECTOR"}}
			for _, name := range codegen.ProfileNames() {
				m := codegen.LookupProfile(name).Model()
				rows = append(rows, modelRow(name, m))
			}
			rows = append(rows, modelRow("host cpu", target.CPU()))

			for _, line := range alignRows(rows) {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func modelRow(name string, m target.Model) []string {
	res := lo.Map(m.Resources, func(r target.Resource, _ int) string { return string(r) })
	return []string{name, strings.Join(res, " "), fmt.Sprintf("%d", m.VectorWidth)}
}

// alignRows pads every column to its widest cell.
func alignRows(rows [][]string) []string {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := lo.Map(row, func(cell string, i int) string {
			if i == len(row)-1 {
				return cell
			}
			return runewidth.FillRight(cell, widths[i]+2)
		})
		out = append(out, strings.TrimRight(strings.Join(cells, ""), " "))
	}
	return out
}
