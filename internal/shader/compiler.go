package shader

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// Hash identifies assembled shader source.
type Hash [sha1.Size]byte

// HashOf returns the SHA-1 of the concatenated parts.
func HashOf(parts ...[]byte) Hash {
	h := sha1.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is unset.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// CompileJob is one request to compile assembled kernel source.
type CompileJob struct {
	// FriendlyName identifies the resource in logs, e.g. "MyGraph/Deform".
	FriendlyName string
	EntryPoint   string
	Source       string
	Dialect      Dialect
	Hash         Hash
	Metadata     *ParametersMetadata
	GroupSize    [3]int
	Platform     Platform
	FeatureLevel FeatureLevel
}

// ShaderMap is a compiled kernel for one platform and feature level.
type ShaderMap struct {
	Hash         Hash
	EntryPoint   string
	Platform     Platform
	FeatureLevel FeatureLevel
	Metadata     *ParametersMetadata
	GroupSize    [3]int

	// Pipeline is the backend object created by the compiler,
	// e.g. a wgpu compute pipeline. Nil for the source compiler.
	Pipeline any
}

// IsComplete reports whether the shader map can be dispatched.
func (sm *ShaderMap) IsComplete() bool {
	return sm != nil && !sm.Hash.IsZero()
}

// CompileFailure is returned by a [Compiler] when the source does not build.
type CompileFailure struct {
	Diagnostics []string
}

func (e *CompileFailure) Error() string {
	if len(e.Diagnostics) == 0 {
		return "shader compile failed"
	}
	return fmt.Sprintf("shader compile failed: %s", e.Diagnostics[0])
}

// Compiler turns a compile job into a shader map.
type Compiler interface {
	Compile(ctx context.Context, job *CompileJob) (*ShaderMap, error)
}

// SourceCompiler is a portable compiler that performs structural checks
// on the source without a GPU: the entry point must be declared,
// brackets must balance and "#error" directives fail the build.
// It backs headless runs and tests.
type SourceCompiler struct{}

// Compile implements [Compiler].
func (SourceCompiler) Compile(ctx context.Context, job *CompileJob) (*ShaderMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var diags []string
	if job.EntryPoint == "" {
		diags = append(diags, "missing entry point name")
	} else if !declaresEntryPoint(job.Source, job.EntryPoint, job.Dialect) {
		diags = append(diags, fmt.Sprintf("entry point %q not found", job.EntryPoint))
	}
	depth := map[byte]int{}
	pairs := map[byte]byte{'}': '{', ')': '(', ']': '['}
	sc := bufio.NewScanner(strings.NewReader(job.Source))
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		trimmed := strings.TrimSpace(text)
		if msg, ok := strings.CutPrefix(trimmed, "#error"); ok {
			diags = append(diags, fmt.Sprintf("%d: error: %s", line, strings.TrimSpace(msg)))
			continue
		}
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		for i := 0; i < len(text); i++ {
			c := text[i]
			switch c {
			case '{', '(', '[':
				depth[c]++
			case '}', ')', ']':
				depth[pairs[c]]--
				if depth[pairs[c]] < 0 {
					diags = append(diags, fmt.Sprintf("%d: error: unexpected %q", line, c))
					depth[pairs[c]] = 0
				}
			}
		}
	}
	for _, open := range []byte{'{', '(', '['} {
		if depth[open] > 0 {
			diags = append(diags, fmt.Sprintf("error: %d unclosed %q", depth[open], open))
		}
	}
	if len(diags) > 0 {
		return nil, &CompileFailure{Diagnostics: diags}
	}
	return &ShaderMap{
		Hash:         job.Hash,
		EntryPoint:   job.EntryPoint,
		Platform:     job.Platform,
		FeatureLevel: job.FeatureLevel,
		Metadata:     job.Metadata,
		GroupSize:    job.GroupSize,
	}, nil
}

func declaresEntryPoint(src, entry string, d Dialect) bool {
	if d == WGSL {
		return strings.Contains(src, "fn "+entry+"(")
	}
	return strings.Contains(src, " "+entry+"(")
}
