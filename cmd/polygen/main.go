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

// Command polygen compiles YAML program descriptions into target kernels.
//
// Usage:
//
//	polygen gen -f rowsum.yaml -o rowsum.cu
//	polygen gen -f rowsum.yaml --target openmp -v
//	polygen targets
//	polygen bulk -d kernels/ -j 8 -o out/
//
// A program description declares the statements of a static control region
// (box domains, affine accesses as explicit coefficient lists, update
// bodies), registered reductions, and schedule directives; see config.go for
// the schema. polygen builds the region, applies the directives to the
// canonical schedule tree, and emits the kernel for the selected target.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ajroetker/go-polyhedral/poly/codegen"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "polygen: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbosity int

	root := &cobra.Command{
		Use:           "polygen",
		Short:         "Polyhedral kernel generator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"increase log verbosity (-v info, -vv debug)")

	// Accept snake_case spellings of every flag.
	root.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	logger := func() codegen.Logger {
		level := codegen.LevelWarn
		switch {
		case verbosity == 1:
			level = codegen.LevelInfo
		case verbosity >= 2:
			level = codegen.LevelDebug
		}
		color := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
		return codegen.NewLogger(level, os.Stderr, color)
	}

	root.AddCommand(newGenCmd(logger))
	root.AddCommand(newTargetsCmd())
	root.AddCommand(newBulkCmd(logger))
	return root
}

// resolveProfile picks the emission profile: the --target flag wins over the
// description's target field, which wins over cuda.
func resolveProfile(flagTarget, descTarget string) (codegen.Profile, error) {
	name := "cuda"
	if descTarget != "" {
		name = descTarget
	}
	if flagTarget != "" {
		name = flagTarget
	}
	p := codegen.LookupProfile(name)
	if p == nil {
		return nil, fmt.Errorf("unknown target %q (have %s)",
			name, strings.Join(codegen.ProfileNames(), ", "))
	}
	return p, nil
}

// kernelExt returns the conventional source extension for a profile.
func kernelExt(p codegen.Profile) string {
	if p.Name() == "cuda" {
		return ".cu"
	}
	return ".c"
}
