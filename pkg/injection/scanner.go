// Package injection implements the heuristic prompt-injection scanner
// described in spec.md §4.8. It is intentionally tuned to over-warn: a
// false positive costs the user a glance at a quoted box, a false
// negative is the failure mode the whole Action Gate exists to survive
// anyway (§4.8: "the hard barrier in §4.6 is what prevents a successful
// attack"). No repo in this corpus ships a text-heuristics library for
// this purpose, so the scanner is built on the standard library's
// regexp — see DESIGN.md.
package injection

import (
	"regexp"

	"github.com/clenoble/sovereign/pkg/types"
)

// Span is a byte-offset range into the scanned text, with the matched
// substring carried alongside so callers can quote it verbatim without
// re-slicing.
type Span struct {
	Start, End int
	Text       string
	Category   string
}

// Report is the scanner's verdict for one piece of text.
type Report struct {
	Suspicious   bool
	MatchedSpans []Span
}

// maxSpans bounds the report size so a pathological 1MB document can't
// blow up the user-facing notice (§8 boundary behaviour).
const maxSpans = 32

var imperativePattern = regexp.MustCompile(`(?i)\b(ignore|disregard)\b[^.!?\n]{0,40}\b(previous|prior|above|system)\b[^.!?\n]{0,40}\binstructions?\b|` +
	`(?i)\b(you|the system|the ai)\b[^.!?\n]{0,40}\b(must|should|will now)\b[^.!?\n]{0,40}\b(export|send|delete|forward|execute|transmit)\b`)

var structuralPattern = regexp.MustCompile(`(?i)<\s*(system|tool_call|assistant)\s*>|` + "```\\s*(system|tool)")

// obfuscatedPattern flags long runs of base64-like or hex-like text —
// encoded payloads smuggled past a casual read.
var obfuscatedPattern = regexp.MustCompile(`[A-Za-z0-9+/]{120,}={0,2}|[0-9a-fA-F]{120,}`)

// Scan runs all heuristics over text and returns their union. origin is
// informational only — the scanner's behaviour does not change between
// Owned and External text, because content from either plane can quote
// a third party's injected text.
func Scan(text string, origin types.Provenance) Report {
	var spans []Span
	spans = appendMatches(spans, text, imperativePattern, "imperative")
	spans = appendMatches(spans, text, structuralPattern, "structural")
	spans = appendMatches(spans, text, obfuscatedPattern, "obfuscated")

	if len(spans) > maxSpans {
		spans = spans[:maxSpans]
	}
	return Report{Suspicious: len(spans) > 0, MatchedSpans: spans}
}

func appendMatches(spans []Span, text string, pattern *regexp.Regexp, category string) []Span {
	for _, loc := range pattern.FindAllStringIndex(text, -1) {
		if len(spans) >= maxSpans {
			break
		}
		spans = append(spans, Span{Start: loc[0], End: loc[1], Text: text[loc[0]:loc[1]], Category: category})
	}
	return spans
}
