// Package textproc builds the short keyword texts that get embedded into the
// vector index. Descriptions arrive as free prose; the index wants a compact,
// stop-word-free keyword string assembled from the most local context first.
package textproc

import (
	"regexp"
	"strings"
)

const (
	// TargetWords is the length the combiner aims for.
	TargetWords = 15
	// MaxWords is the hard cap on combined keyword text.
	MaxWords = 20
	// QueryWords caps enhanced invocation phrases.
	QueryWords = 10
)

// Word budgets per context level, most local first.
const (
	segmentBudget      = 10
	segmentationBudget = 5
	recordingBudget    = 5
	presetBudget       = 12
	effectBudget       = 8
)

var (
	nonWord    = regexp.MustCompile(`[^\w\s]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// stopWords folds generic English stop words together with audio-domain
// filler that carries no semantic weight in a sound catalog.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "this": {}, "that": {},
	"these": {}, "those": {},

	"sound": {}, "audio": {}, "recording": {}, "sample": {},
	"track": {}, "file": {}, "piece": {},
}

type budgetedContext struct {
	text  string
	limit int
}

// SegmentText builds embedding text for a segment from its own description
// plus the enclosing segmentation and recording descriptions, in that
// priority order.
func SegmentText(segment, segmentation, recording string) string {
	return combine([]budgetedContext{
		{segment, segmentBudget},
		{segmentation, segmentationBudget},
		{recording, recordingBudget},
	})
}

// PresetText builds embedding text for an effect preset from its own
// description plus the effect's, preset first.
func PresetText(preset, effect string) string {
	return combine([]budgetedContext{
		{preset, presetBudget},
		{effect, effectBudget},
	})
}

// EnhanceQuery normalizes an invocation phrase into the same keyword space
// the index texts live in.
func EnhanceQuery(query string) string {
	return strings.Join(Keywords(query, QueryWords), " ")
}

// Keywords cleans text and returns its meaningful words in order, duplicates
// removed, capped at limit. A limit <= 0 means no cap.
func Keywords(text string, limit int) []string {
	cleaned := Clean(text)
	if cleaned == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, word := range strings.Fields(cleaned) {
		if len(word) <= 2 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Clean lowercases text and strips everything but word characters and
// single spaces.
func Clean(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = nonWord.ReplaceAllString(text, " ")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// combine fills MaxWords from the contexts in priority order: first each
// context contributes up to its own budget, then, if the result is still
// under TargetWords, contexts contribute their over-budget remainder.
func combine(contexts []budgetedContext) string {
	seen := make(map[string]struct{})
	var combined []string

	add := func(words []string, limit int) {
		for _, w := range words {
			if len(combined) >= limit {
				return
			}
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			combined = append(combined, w)
		}
	}

	for _, c := range contexts {
		if len(combined) >= MaxWords {
			break
		}
		add(Keywords(c.text, c.limit), MaxWords)
	}

	if len(combined) < TargetWords {
		for _, c := range contexts {
			if len(combined) >= TargetWords {
				break
			}
			all := Keywords(c.text, 0)
			if len(all) > c.limit {
				add(all[c.limit:], TargetWords)
			}
		}
	}

	return strings.Join(combined, " ")
}
