// Package registry is the static Language Registry: a read-only mapping
// from a language identifier to the sandbox image, file extension,
// interpreter invocation, and per-language timeout used to run it.
package registry

import (
	"strings"
	"time"

	"rce-core/pkg/job"
)

// Registry is a read-only, initialized-once mapping of supported
// languages. It is never mutated after construction, so it is safe for
// concurrent lookup without a lock.
type Registry struct {
	specs map[string]job.LanguageSpec
}

// New builds the registry with the default supported-language table.
func New() *Registry {
	return &Registry{specs: defaultSpecs()}
}

// Lookup returns the LanguageSpec for a registered language identifier.
// The second return value is false for unknown languages.
func (r *Registry) Lookup(language string) (job.LanguageSpec, bool) {
	spec, ok := r.specs[language]
	return spec, ok
}

// Supported returns the set of registered language identifiers.
func (r *Registry) Supported() []string {
	out := make([]string, 0, len(r.specs))
	for lang := range r.specs {
		out = append(out, lang)
	}
	return out
}

// shellTemplateMarker appears in an Executor field for languages that need
// more than a single interpreter invocation (compile-then-run). The
// Sandbox Runtime Adapter detects it and runs the spec under "sh -lc"
// with {{file}} substituted, instead of treating Executor as argv[0].
const shellTemplateMarker = "{{file}}"

func defaultSpecs() map[string]job.LanguageSpec {
	return map[string]job.LanguageSpec{
		"python": {
			Image:     "python:3.12-slim-bookworm",
			Extension: ".py",
			Executor:  "python3",
			Timeout:   5 * time.Second,
		},
		"javascript": {
			Image:     "node:20-slim",
			Extension: ".js",
			Executor:  "node",
			Timeout:   5 * time.Second,
		},
		"go": {
			Image:     "golang:1.22-bookworm",
			Extension: ".go",
			Executor:  "go run " + shellTemplateMarker,
			Timeout:   10 * time.Second,
		},
		"rust": {
			Image:     "rust:1.75-slim-bookworm",
			Extension: ".rs",
			Executor:  "rustc -O -o /tmp/a.out " + shellTemplateMarker + " && /tmp/a.out",
			Timeout:   15 * time.Second,
		},
		"java": {
			Image:     "eclipse-temurin:21-jdk-jammy",
			Extension: ".java",
			Executor:  "javac " + shellTemplateMarker + " && java -cp $(dirname " + shellTemplateMarker + ") Main",
			Timeout:   15 * time.Second,
		},
		"c": {
			Image:     "gcc:13-bookworm",
			Extension: ".c",
			Executor:  "gcc -O2 -o /tmp/a.out " + shellTemplateMarker + " -lm && /tmp/a.out",
			Timeout:   10 * time.Second,
		},
		"cpp": {
			Image:     "gcc:13-bookworm",
			Extension: ".cpp",
			Executor:  "g++ -O2 -std=c++17 -o /tmp/a.out " + shellTemplateMarker + " && /tmp/a.out",
			Timeout:   10 * time.Second,
		},
	}
}

// IsShellTemplate reports whether a LanguageSpec's Executor field is a
// shell command template rather than a direct argv[0] interpreter name.
func IsShellTemplate(executor string) bool {
	return strings.Contains(executor, shellTemplateMarker)
}
