// Package matcher decides which plugin handles an utterance. The priority
// chain is fixed: keyword triggers (longest keyword first), then regex,
// then intent classification, then catch-all. At most one match wins.
package matcher

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/openmaw-ai/openmaw/pkg/models"
)

// IntentClassifier answers whether an utterance matches an intent
// description. The AI executor provides the real implementation; failures
// are treated as "no match", never surfaced.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, text, description string) (bool, error)
}

// Matcher evaluates triggers over a plugin snapshot.
type Matcher struct {
	classifier IntentClassifier
}

// New creates a matcher. classifier may be nil, in which case intent
// triggers never match.
func New(classifier IntentClassifier) *Matcher {
	return &Matcher{classifier: classifier}
}

// Normalize prepares raw transcribed text for matching: trim whitespace,
// trim surrounding punctuation, lowercase.
func Normalize(raw string) string {
	s := raw
	// Trimming punctuation can expose more whitespace and vice versa,
	// so iterate until stable.
	for {
		trimmed := strings.TrimSpace(s)
		trimmed = strings.TrimFunc(trimmed, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if trimmed == s {
			break
		}
		s = trimmed
	}
	return strings.ToLower(s)
}

func isBoundary(r byte) bool {
	if r == ' ' {
		return true
	}
	return unicode.IsPunct(rune(r))
}

// Match evaluates the priority chain over the enabled plugins (in their
// loaded, sorted order) and returns the winning match, if any.
func (m *Matcher) Match(ctx context.Context, raw string, plugins []models.LoadedPlugin) (models.Match, bool) {
	text := Normalize(raw)
	if text == "" {
		return models.Match{}, false
	}

	if match, ok := m.matchKeywords(text, raw, plugins); ok {
		return match, true
	}
	if match, ok := m.matchRegex(text, raw, plugins); ok {
		return match, true
	}
	if match, ok := m.matchIntent(ctx, text, raw, plugins); ok {
		return match, true
	}
	return m.matchCatchAll(text, raw, plugins)
}

type keywordCandidate struct {
	plugin  models.LoadedPlugin
	keyword string
	order   int
}

func (m *Matcher) matchKeywords(text, raw string, plugins []models.LoadedPlugin) (models.Match, bool) {
	candidates := []keywordCandidate{}
	for i, p := range plugins {
		if p.Manifest.Trigger.Type != models.TriggerKeyword {
			continue
		}
		for _, kw := range p.Manifest.Trigger.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			candidates = append(candidates, keywordCandidate{plugin: p, keyword: kw, order: i})
		}
	}
	// Longest keyword wins so "translate this" beats "translate".
	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i].keyword) != len(candidates[j].keyword) {
			return len(candidates[i].keyword) > len(candidates[j].keyword)
		}
		return candidates[i].order < candidates[j].order
	})

	for _, c := range candidates {
		trigger := c.plugin.Manifest.Trigger
		position := trigger.Position
		if position == "" {
			position = models.PositionStart
		}
		input, ok := matchKeywordAt(text, c.keyword, position, trigger.Strips())
		if !ok {
			continue
		}
		return models.Match{
			PluginID:    c.plugin.Manifest.ID,
			Trigger:     trigger,
			TriggerText: c.keyword,
			Input:       input,
			RawInput:    raw,
		}, true
	}
	return models.Match{}, false
}

// matchKeywordAt applies the position rule and returns the post-strip input.
func matchKeywordAt(text, keyword string, position models.KeywordPosition, strip bool) (string, bool) {
	if text == keyword {
		return stripResult(text, "", strip)
	}
	switch position {
	case models.PositionStart:
		if strings.HasPrefix(text, keyword) && isBoundary(text[len(keyword)]) {
			return stripResult(text, strings.TrimSpace(text[len(keyword)+1:]), strip)
		}
	case models.PositionEnd:
		if strings.HasSuffix(text, keyword) && isBoundary(text[len(text)-len(keyword)-1]) {
			return stripResult(text, strings.TrimSpace(text[:len(text)-len(keyword)-1]), strip)
		}
	case models.PositionAnywhere:
		idx := strings.Index(text, keyword)
		for idx >= 0 {
			startOK := idx == 0 || isBoundary(text[idx-1])
			end := idx + len(keyword)
			endOK := end == len(text) || isBoundary(text[end])
			if startOK && endOK {
				remainder := text[:idx] + text[end:]
				if end < len(text) && isBoundary(text[end]) {
					remainder = text[:idx] + text[end+1:]
				}
				return stripResult(text, strings.TrimSpace(remainder), strip)
			}
			next := strings.Index(text[idx+1:], keyword)
			if next < 0 {
				break
			}
			idx += 1 + next
		}
	}
	return "", false
}

func stripResult(whole, stripped string, strip bool) (string, bool) {
	if strip {
		return stripped, true
	}
	return whole, true
}

func (m *Matcher) matchRegex(text, raw string, plugins []models.LoadedPlugin) (models.Match, bool) {
	for _, p := range plugins {
		trigger := p.Manifest.Trigger
		if trigger.Type != models.TriggerRegex {
			continue
		}
		re, err := regexp.Compile(trigger.Pattern)
		if err != nil {
			// Bad patterns are rejected at load time.
			continue
		}
		groups := re.FindStringSubmatch(text)
		if groups == nil {
			continue
		}
		input := text
		for _, g := range groups[1:] {
			if g != "" {
				input = g
				break
			}
		}
		return models.Match{
			PluginID:    p.Manifest.ID,
			Trigger:     trigger,
			TriggerText: groups[0],
			Input:       input,
			RawInput:    raw,
		}, true
	}
	return models.Match{}, false
}

func (m *Matcher) matchIntent(ctx context.Context, text, raw string, plugins []models.LoadedPlugin) (models.Match, bool) {
	if m.classifier == nil {
		return models.Match{}, false
	}
	for _, p := range plugins {
		trigger := p.Manifest.Trigger
		if trigger.Type != models.TriggerIntent {
			continue
		}
		ok, err := m.classifier.ClassifyIntent(ctx, text, trigger.Description)
		if err != nil {
			// Dictation must fall through cleanly when classification fails.
			log.Debug().Str("plugin", p.Manifest.ID).Err(err).Msg("intent classification failed")
			continue
		}
		if !ok {
			continue
		}
		return models.Match{
			PluginID:    p.Manifest.ID,
			Trigger:     trigger,
			TriggerText: text,
			Input:       text,
			RawInput:    raw,
		}, true
	}
	return models.Match{}, false
}

func (m *Matcher) matchCatchAll(text, raw string, plugins []models.LoadedPlugin) (models.Match, bool) {
	for _, p := range plugins {
		if p.Manifest.Trigger.Type != models.TriggerCatchAll {
			continue
		}
		return models.Match{
			PluginID:    p.Manifest.ID,
			Trigger:     p.Manifest.Trigger,
			TriggerText: "",
			Input:       text,
			RawInput:    raw,
		}, true
	}
	return models.Match{}, false
}
