package llmclient

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// RepairedJSON attempts to parse raw as JSON into v, applying a layered
// repair strategy: strict parse, then strip markdown code fences, then
// close a single trailing unterminated string, then fall back to
// regex-recovering known top-level keys. Each recovery step is reported
// via the returned bool so callers can log the original payload for prompt
// tuning.
//
// knownKeys lists the top-level keys the regex-recovery step extracts when
// everything else fails; each value may be an array, a quoted string, or a
// true/false/number literal (see recoverKnownKeys).
func RepairedJSON(raw string, v any, knownKeys []string) (repaired bool, err error) {
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return false, nil
	}

	stripped := stripCodeFences(raw)
	if stripped != raw {
		if err := json.Unmarshal([]byte(stripped), v); err == nil {
			return true, nil
		}
	}

	closed := closeTrailingString(stripped)
	if closed != stripped {
		if err := json.Unmarshal([]byte(closed), v); err == nil {
			return true, nil
		}
	}

	if len(knownKeys) > 0 {
		if recoverKnownKeys(stripped, knownKeys, v) {
			return true, nil
		}
	}

	return false, fmt.Errorf("llmclient: could not parse or repair JSON payload")
}

var codeFenceRE = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

func stripCodeFences(s string) string {
	if m := codeFenceRE.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// closeTrailingString handles the common truncation failure mode where an
// LLM's output was cut off mid-string: it counts unescaped quotes and, if
// odd, appends a closing quote plus enough closing brackets/braces to
// balance what's open. This is a best-effort repair, not a general parser.
func closeTrailingString(s string) string {
	quoteCount := 0
	escaped := false
	depthBraces, depthBrackets := 0, 0
	inString := false

	for _, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			quoteCount++
			inString = !inString
		case '{':
			if !inString {
				depthBraces++
			}
		case '}':
			if !inString {
				depthBraces--
			}
		case '[':
			if !inString {
				depthBrackets++
			}
		case ']':
			if !inString {
				depthBrackets--
			}
		}
	}

	if quoteCount%2 == 0 && depthBraces == 0 && depthBrackets == 0 {
		return s
	}

	var b strings.Builder
	b.WriteString(s)
	if quoteCount%2 != 0 {
		b.WriteByte('"')
	}
	for ; depthBrackets > 0; depthBrackets-- {
		b.WriteByte(']')
	}
	for ; depthBraces > 0; depthBraces-- {
		b.WriteByte('}')
	}
	return b.String()
}

// recoverKnownKeys regex-extracts each known key's value — a JSON array, a
// quoted string, or a bare true/false/number literal, covering every shape
// this package's callers actually need (entity extraction's string arrays,
// the planner's scalar action/reasoning/can_answer fields) — and reassembles a
// minimal JSON object, then unmarshals that into v. Missing keys are simply
// absent from the reassembled object; callers default missing keys to their
// zero value downstream.
func recoverKnownKeys(s string, knownKeys []string, v any) bool {
	obj := make(map[string]json.RawMessage)
	found := false
	for _, key := range knownKeys {
		re := regexp.MustCompile(fmt.Sprintf(`"%s"\s*:\s*(\[[^\]]*\]|"(?:[^"\\]|\\.)*"|true|false|-?[0-9]+(?:\.[0-9]+)?)`, regexp.QuoteMeta(key)))
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		obj[key] = json.RawMessage(m[1])
		found = true
	}
	if !found {
		return false
	}
	reassembled, err := json.Marshal(obj)
	if err != nil {
		return false
	}
	return json.Unmarshal(reassembled, v) == nil
}
