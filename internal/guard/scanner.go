// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package guard

import (
	"context"
	"regexp"
	"slices"
	"strings"

	ragerr "github.com/sigil-dev/ragd/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// Stage identifies the trust boundary a piece of text is crossing.
type Stage string

const (
	// StageDocument is document text on its way into the store and index.
	StageDocument Stage = "document"
	// StagePassage is a retrieved passage on its way into a prompt.
	StagePassage Stage = "passage"
	// StageAnswer is generator output on its way to the caller.
	StageAnswer Stage = "answer"
)

// Valid reports whether the stage is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageDocument, StagePassage, StageAnswer:
		return true
	default:
		return false
	}
}

// Severity indicates how critical a detection is.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Valid reports whether the severity is a known severity level.
func (s Severity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// Result holds the outcome of a scan.
type Result struct {
	Threat  bool
	Matches []Match
	// Content is the normalized text (NFKC, invisible characters removed).
	// Match offsets index into it, so redaction must start from Content.
	Content string
}

// Match describes a single pattern match. Location and Length are byte
// offsets into Result.Content and are never negative.
type Match struct {
	Rule     string
	Location int
	Length   int
	Severity Severity
}

// Rule defines a detection pattern evaluated only at its Stage.
type Rule struct {
	Stage    Stage
	Name     string
	Pattern  *regexp.Regexp
	Severity Severity
}

// DefaultMaxContentLength bounds the text accepted by a Scanner. It matches
// the largest document the ingest path accepts by default.
const DefaultMaxContentLength = 32 << 20

// Scanner matches text against compiled rules. It is safe for concurrent use.
type Scanner struct {
	rules            []Rule
	maxContentLength int
}

// NewScanner validates rules and returns a Scanner.
func NewScanner(rules []Rule) (*Scanner, error) {
	for i, r := range rules {
		if r.Pattern == nil {
			return nil, ragerr.Errorf(ragerr.CodeGuardConfigInvalid, "rule %d (%s) has nil pattern", i, r.Name)
		}
		if !r.Stage.Valid() {
			return nil, ragerr.Errorf(ragerr.CodeGuardConfigInvalid, "rule %d (%s) has invalid stage %q", i, r.Name, r.Stage)
		}
		if r.Name == "" {
			return nil, ragerr.Errorf(ragerr.CodeGuardConfigInvalid, "rule %d has empty name", i)
		}
		if !r.Severity.Valid() {
			return nil, ragerr.Errorf(ragerr.CodeGuardConfigInvalid, "rule %d (%s) has invalid severity %q", i, r.Name, r.Severity)
		}
	}
	return &Scanner{rules: rules, maxContentLength: DefaultMaxContentLength}, nil
}

// invisibleCharReplacer strips zero-width and other invisible characters
// used to split a keyword past the patterns.
var invisibleCharReplacer = strings.NewReplacer(
	"\u200b", "", // zero-width space
	"\u200c", "", // zero-width non-joiner
	"\u200d", "", // zero-width joiner
	"\ufeff", "", // zero-width no-break space / BOM
	"\u00ad", "", // soft hyphen
	"\u034f", "", // combining grapheme joiner
	"\u061c", "", // Arabic letter mark
	"\u180e", "", // Mongolian vowel separator
	"\u2060", "", // word joiner
	"\u2061", "", // invisible function application
	"\u2062", "", // invisible times
	"\u2063", "", // invisible separator
	"\u2064", "", // invisible plus
	"\ufff9", "", // interlinear annotation anchor
	"\ufffa", "", // interlinear annotation separator
	"\ufffb", "", // interlinear annotation terminator
)

// normalize strips invisible characters and applies NFKC so compatibility
// look-alikes match the ASCII patterns.
func normalize(s string) string {
	s = invisibleCharReplacer.Replace(s)
	return norm.NFKC.String(s)
}

// Scan checks content against the rules for stage.
func (s *Scanner) Scan(_ context.Context, stage Stage, content string) (Result, error) {
	if !stage.Valid() {
		return Result{}, ragerr.Errorf(ragerr.CodeGuardConfigInvalid, "invalid scan stage %q", stage)
	}

	content = normalize(content)

	if len(content) > s.maxContentLength {
		return Result{Threat: true, Content: content, Matches: []Match{{
			Rule:     "content_too_large",
			Location: 0,
			Length:   len(content),
			Severity: SeverityHigh,
		}}}, nil
	}

	result := Result{Content: content}
	for _, rule := range s.rules {
		if rule.Stage != stage {
			continue
		}
		for _, loc := range rule.Pattern.FindAllStringIndex(content, -1) {
			result.Threat = true
			result.Matches = append(result.Matches, Match{
				Rule:     rule.Name,
				Location: loc[0],
				Length:   loc[1] - loc[0],
				Severity: rule.Severity,
			})
		}
	}

	return result, nil
}

// Mode defines how a threat is handled.
type Mode string

const (
	ModeBlock  Mode = "block"
	ModeFlag   Mode = "flag"
	ModeRedact Mode = "redact"
)

// Valid reports whether the mode is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeBlock, ModeFlag, ModeRedact:
		return true
	default:
		return false
	}
}

// ParseMode parses a mode string (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "block":
		return ModeBlock, nil
	case "flag":
		return ModeFlag, nil
	case "redact":
		return ModeRedact, nil
	default:
		return "", ragerr.Errorf(ragerr.CodeConfigValidateInvalidValue, "invalid guard mode: %q", s)
	}
}

// Redacted replaces every redacted span.
const Redacted = "[REDACTED]"

// ApplyMode applies mode to a scan result:
//   - block returns CodeGuardContentBlocked when a threat was found;
//   - flag returns content unchanged;
//   - redact replaces matched spans of result.Content with Redacted.
func ApplyMode(mode Mode, content string, result Result) (string, error) {
	if !result.Threat {
		return content, nil
	}

	switch mode {
	case ModeBlock:
		firstRule := "unknown"
		if len(result.Matches) > 0 {
			firstRule = result.Matches[0].Rule
		}
		return "", ragerr.New(ragerr.CodeGuardContentBlocked,
			"content blocked by guard",
			ragerr.Field("matches", len(result.Matches)),
			ragerr.Field("first_rule", firstRule),
		)
	case ModeFlag:
		return content, nil
	case ModeRedact:
		return redact(result.Content, result.Matches), nil
	default:
		return "", ragerr.Errorf(ragerr.CodeGuardConfigInvalid, "unknown guard mode %q", mode)
	}
}

// redact replaces matched regions with Redacted, merging overlaps.
func redact(content string, matches []Match) string {
	sorted := slices.DeleteFunc(slices.Clone(matches), func(m Match) bool {
		return m.Location < 0 || m.Length <= 0
	})
	if len(sorted) == 0 {
		return content
	}
	slices.SortFunc(sorted, func(a, b Match) int { return a.Location - b.Location })

	type span struct{ start, end int }
	spans := []span{{sorted[0].Location, sorted[0].Location + sorted[0].Length}}
	for _, m := range sorted[1:] {
		last := &spans[len(spans)-1]
		end := m.Location + m.Length
		if m.Location <= last.end {
			last.end = max(last.end, end)
		} else {
			spans = append(spans, span{m.Location, end})
		}
	}

	var b strings.Builder
	b.Grow(len(content))
	pos := 0
	for _, s := range spans {
		b.WriteString(content[pos:s.start])
		b.WriteString(Redacted)
		pos = min(s.end, len(content))
	}
	b.WriteString(content[pos:])
	return b.String()
}
