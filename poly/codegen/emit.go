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

import (
	"bytes"
	"fmt"
)

// emitter accumulates generated source with indentation tracking.
type emitter struct {
	buf    bytes.Buffer
	indent int
}

// writef writes a formatted line at the current indentation level.
func (e *emitter) writef(format string, args ...any) {
	for range e.indent {
		e.buf.WriteString("    ")
	}
	fmt.Fprintf(&e.buf, format, args...)
	e.buf.WriteByte('\n')
}

func (e *emitter) String() string { return e.buf.String() }
