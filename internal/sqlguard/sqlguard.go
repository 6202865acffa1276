// Package sqlguard validates LLM-generated SQL text before it is run against
// the read-only retrieval surface. Generalizes a token-scan validation
// discipline for untrusted RPC payloads to a different kind of untrusted
// input: a single SELECT statement text.
package sqlguard

import (
	"fmt"
	"strings"
)

// forbiddenKeywords are statement kinds that mutate state or schema. Checked
// as whole-word matches so they don't false-positive on identifiers that
// merely contain the substring (e.g. a column named "created_at").
var forbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "truncate", "alter", "create",
	"grant", "revoke", "commit", "rollback", "merge", "call", "do", "copy",
}

// Validate rejects any statement that is not a single read-only SELECT.
// It is intentionally conservative: multiple statements (separated by `;`
// with trailing content), comments that could hide a second statement, and
// any forbidden keyword token anywhere in the text are all rejected.
func Validate(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return fmt.Errorf("sqlguard: empty statement")
	}

	if strings.Contains(trimmed, "--") || strings.Contains(trimmed, "/*") {
		return fmt.Errorf("sqlguard: comments are not permitted in generated SQL")
	}

	withoutTrailingSemicolon := strings.TrimSuffix(strings.TrimSpace(trimmed), ";")
	if strings.Contains(withoutTrailingSemicolon, ";") {
		return fmt.Errorf("sqlguard: only a single statement is permitted")
	}

	lower := strings.ToLower(withoutTrailingSemicolon)
	if !strings.HasPrefix(strings.TrimSpace(lower), "select") {
		return fmt.Errorf("sqlguard: only SELECT statements are permitted")
	}

	for _, tok := range tokenize(lower) {
		for _, bad := range forbiddenKeywords {
			if tok == bad {
				return fmt.Errorf("sqlguard: forbidden keyword %q in generated SQL", tok)
			}
		}
	}

	return nil
}

// tokenize splits on anything that isn't a letter, digit or underscore so
// keyword checks operate on whole identifiers/keywords, not substrings.
func tokenize(s string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}
