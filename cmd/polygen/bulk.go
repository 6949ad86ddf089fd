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
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ajroetker/go-polyhedral/poly/codegen"
	"github.com/ajroetker/go-polyhedral/poly/contrib/workerpool"
)

func newBulkCmd(logger func() codegen.Logger) *cobra.Command {
	var (
		dir        string
		outDir     string
		targetName string
		jobs       int
	)

	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Compile every description in a directory on a worker pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no *.yaml descriptions under %s", dir)
			}
			sort.Strings(files)
			if outDir == "" {
				outDir = dir
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}

			log := logger()
			type result struct {
				path   string
				launch string
				err    error
			}
			results := make([]result, len(files))

			pool := workerpool.New(jobs)
			defer pool.Close()
			pool.ParallelFor(len(files), func(i int) {
				path := files[i]
				stem := strings.TrimSuffix(filepath.Base(path), ".yaml")
				prog, profile, err := generateFile(path, targetName, kernelName(stem), log)
				if err != nil {
					results[i] = result{path: path, err: err}
					return
				}
				out := filepath.Join(outDir, stem+kernelExt(profile))
				if err := os.WriteFile(out, []byte(prog.Kernel), 0o644); err != nil {
					results[i] = result{path: path, err: err}
					return
				}
				results[i] = result{path: path, launch: prog.Launch.String()}
			})

			for _, r := range results {
				if r.err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", r.path, r.err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s %s\n", r.path, r.launch)
			}
			if failed := lo.CountBy(results, func(r result) bool { return r.err != nil }); failed > 0 {
				return fmt.Errorf("%d of %d descriptions failed", failed, len(files))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory of *.yaml descriptions")
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "output directory (default: same as --dir)")
	cmd.Flags().StringVarP(&targetName, "target", "t", "", "emission target (overrides the descriptions)")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "parallel compilations (default: GOMAXPROCS)")
	return cmd
}

// kernelName derives a C identifier from a file stem: separator-delimited
// words are title-cased and joined, e.g. "row_sum" -> "RowSum".
func kernelName(stem string) string {
	words := strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
	caser := cases.Title(language.English)
	return strings.Join(lo.Map(words, func(w string, _ int) string { return caser.String(w) }), "")
}
