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
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestGenCommand(t *testing.T) {
	path := writeDescription(t, "rowsum.yaml", rowsumYAML)

	out, err := runCLI(t, "gen", "-f", path)
	require.NoError(t, err)
	require.Contains(t, out, `extern "C" __global__ void rowsum(`)
	require.Contains(t, out, "acc[c0] += B[c0][c1];")
}

func TestGenCommandWritesFile(t *testing.T) {
	path := writeDescription(t, "rowsum.yaml", rowsumYAML)
	dst := filepath.Join(t.TempDir(), "rowsum.c")

	out, err := runCLI(t, "gen", "-f", path, "-o", dst, "--target", "openmp")
	require.NoError(t, err)
	require.Empty(t, out)

	src, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Contains(t, string(src), "void rowsum(float (*B)[3], float* acc) {")
	require.Contains(t, string(src), "#pragma omp parallel for")
}

func TestGenCommandUnknownTarget(t *testing.T) {
	path := writeDescription(t, "rowsum.yaml", rowsumYAML)
	_, err := runCLI(t, "gen", "-f", path, "-t", "sycl")
	require.ErrorContains(t, err, `unknown target "sycl"`)
}

func TestBulkCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "row_sum.yaml"), []byte(rowsumYAML), 0o644))
	outDir := t.TempDir()

	out, err := runCLI(t, "bulk", "-d", dir, "-o", outDir)
	require.NoError(t, err)
	require.Contains(t, out, "ok   ")
	require.Contains(t, out, "grid(1,1,1) block(4,1,1)")

	src, err := os.ReadFile(filepath.Join(outDir, "row_sum.cu"))
	require.NoError(t, err)
	// The kernel name comes from the file stem, not the description.
	require.Contains(t, string(src), `extern "C" __global__ void RowSum(`)
}

func TestBulkCommandReportsFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(rowsumYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("kernel: x\nbogus: 1\n"), 0o644))

	out, err := runCLI(t, "bulk", "-d", dir, "-o", t.TempDir())
	require.ErrorContains(t, err, "1 of 2 descriptions failed")
	require.Contains(t, out, "FAIL")
	require.Contains(t, out, "ok   ")
}

func TestBulkCommandEmptyDir(t *testing.T) {
	_, err := runCLI(t, "bulk", "-d", t.TempDir())
	require.ErrorContains(t, err, "no *.yaml descriptions")
}

func TestTargetsCommand(t *testing.T) {
	out, err := runCLI(t, "targets")
	require.NoError(t, err)
	require.Contains(t, out, "TARGET")
	require.Contains(t, out, "cuda")
	require.Contains(t, out, "openmp")
	require.Contains(t, out, "thread.x")
	require.Contains(t, out, "host cpu")
}

func TestLongFlagSpellings(t *testing.T) {
	path := writeDescription(t, "rowsum.yaml", rowsumYAML)
	dst := filepath.Join(t.TempDir(), "out.cu")
	_, err := runCLI(t, "gen", "--file", path, "--output", dst)
	require.NoError(t, err)
	_, err = os.Stat(dst)
	require.NoError(t, err)
}

func TestAlignRows(t *testing.T) {
	got := alignRows([][]string{
		{"A", "BB", "C"},
		{"AAA", "B", "DD"},
	})
	require.Equal(t, []string{
		"A    BB  C",
		"AAA  B   DD",
	}, got)
}
