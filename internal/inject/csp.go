package inject

import "strings"

const unsafeInline = "'unsafe-inline'"

// RewritePolicy returns a Content-Security-Policy value that permits the
// injected script identified by fingerprint. It applies equally to the
// report-only header; callers holding both headers rewrite each
// independently.
//
// The original policy is altered as little as possible: when no script-src
// directive exists, a new one is appended; when one exists without
// 'unsafe-inline', the hash source is appended to that directive's value
// list only; when 'unsafe-inline' is already present the inline script runs
// anyway and the policy is returned unmodified. Malformed input never
// fails, it just falls through to the append path.
func RewritePolicy(policy, fingerprint string) string {
	token := "'sha256-" + fingerprint + "'"

	directives := strings.Split(policy, ";")
	for i, directive := range directives {
		fields := strings.Fields(strings.TrimSpace(directive))
		if len(fields) == 0 || fields[0] != "script-src" {
			continue
		}

		for _, value := range fields[1:] {
			if value == unsafeInline {
				return policy
			}
		}

		// Replace only this directive's substring; every other directive
		// keeps its exact original bytes.
		directives[i] = strings.TrimRight(directive, " \t") + " " + token
		return strings.Join(directives, ";")
	}

	trimmed := strings.TrimRight(policy, "; \t")
	if trimmed == "" {
		return "script-src " + token
	}
	return trimmed + "; script-src " + token
}
