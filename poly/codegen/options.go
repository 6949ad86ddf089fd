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

package codegen

// Options configures code generation.
type Options struct {
	// Profile selects the target syntax. Defaults to CUDA.
	Profile Profile

	// KernelName is the emitted function name.
	KernelName string

	// IteratorPrefix prefixes generated loop iterator names.
	IteratorPrefix string

	// Logger receives progress and diagnostics. Defaults to a no-op logger.
	Logger Logger
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Profile:        NewCUDAProfile(),
		KernelName:     "kernel",
		IteratorPrefix: "c",
		Logger:         NopLogger(),
	}
}

// Option mutates Options.
type Option func(*Options)

// WithProfile selects the target profile.
func WithProfile(p Profile) Option {
	return func(o *Options) {
		if p != nil {
			o.Profile = p
		}
	}
}

// WithKernelName sets the emitted function name.
func WithKernelName(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.KernelName = name
		}
	}
}

// WithIteratorPrefix sets the prefix for generated loop iterators.
func WithIteratorPrefix(prefix string) Option {
	return func(o *Options) {
		if prefix != "" {
			o.IteratorPrefix = prefix
		}
	}
}

// WithLogger sets the logger used during generation.
func WithLogger(l Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}
