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

	"github.com/spf13/cobra"

	"github.com/ajroetker/go-polyhedral/poly/codegen"
)

func newGenCmd(logger func() codegen.Logger) *cobra.Command {
	var (
		file       string
		out        string
		targetName string
	)

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate one kernel from a YAML program description",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, _, err := generateFile(file, targetName, "", logger())
			if err != nil {
				return err
			}
			if out == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), prog.Kernel)
				return err
			}
			return os.WriteFile(out, []byte(prog.Kernel), 0o644)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "program description (required)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVarP(&targetName, "target", "t", "", "emission target (overrides the description)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// generateFile compiles one description file and returns the artifact with
// the profile it was emitted for. A non-empty kernelName overrides the
// description's kernel field.
func generateFile(path, targetName, kernelName string, log codegen.Logger) (*codegen.Program, codegen.Profile, error) {
	desc, err := LoadDescription(path)
	if err != nil {
		return nil, nil, err
	}
	s, tr, err := desc.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	profile, err := resolveProfile(targetName, desc.Target)
	if err != nil {
		return nil, nil, err
	}
	name := desc.Kernel
	if kernelName != "" {
		name = kernelName
	}

	prog, err := codegen.New(s, tr,
		codegen.WithProfile(profile),
		codegen.WithKernelName(name),
		codegen.WithLogger(log),
	).Generate()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Infof("%s: %s -> %s, %s", path, prog.Name, profile.Name(), prog.Launch)
	return prog, profile, nil
}
