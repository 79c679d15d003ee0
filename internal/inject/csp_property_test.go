//go:build property
// +build property

package inject

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRewritePolicyProperties tests invariants of the CSP rewriter over
// generated policies.
func TestRewritePolicyProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	directiveGen := gen.OneConstOf(
		"default-src 'self'",
		"img-src https: data:",
		"style-src 'self' 'unsafe-inline'",
		"connect-src 'self'",
		"frame-ancestors 'none'",
		"script-src 'self'",
		"script-src 'self' 'unsafe-inline'",
		"script-src-elem 'self'",
	)

	policyGen := gen.SliceOf(directiveGen).Map(func(directives []string) string {
		return strings.Join(directives, "; ")
	})

	// Property: rewriting is a pure function, same input twice gives the
	// same output.
	properties.Property("deterministic", prop.ForAll(
		func(policy string) bool {
			return RewritePolicy(policy, "fp") == RewritePolicy(policy, "fp")
		},
		policyGen,
	))

	// Property: the result either equals the input (unsafe-inline present)
	// or contains the hash-source token exactly once.
	properties.Property("hash source present or skipped", prop.ForAll(
		func(policy string) bool {
			got := RewritePolicy(policy, "fp")
			if got == policy {
				return hasUnsafeInlineScriptSrc(policy) || strings.Contains(policy, "'sha256-fp'")
			}
			return strings.Count(got, "'sha256-fp'") == 1
		},
		policyGen,
	))

	// Property: every original directive name survives the rewrite.
	properties.Property("directive names preserved", prop.ForAll(
		func(policy string) bool {
			got := RewritePolicy(policy, "fp")
			for _, directive := range strings.Split(policy, ";") {
				fields := strings.Fields(directive)
				if len(fields) == 0 {
					continue
				}
				if !strings.Contains(got, fields[0]) {
					return false
				}
			}
			return true
		},
		policyGen,
	))

	properties.TestingRun(t)
}

func hasUnsafeInlineScriptSrc(policy string) bool {
	for _, directive := range strings.Split(policy, ";") {
		fields := strings.Fields(strings.TrimSpace(directive))
		if len(fields) == 0 || fields[0] != "script-src" {
			continue
		}
		for _, value := range fields[1:] {
			if value == "'unsafe-inline'" {
				return true
			}
		}
	}
	return false
}
