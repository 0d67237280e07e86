package heuristic

import (
	"regexp"
	"sort"
	"strings"

	"github.com/polisight/backend/pkg/analysis/model"
	"github.com/polisight/backend/pkg/analysis/text"
)

const (
	capWord  = `[A-Z][a-zA-Z'’-]+`
	capWords = `\b(?:` + capWord + `\s+){0,4}`
)

type pattern struct {
	label string
	re    *regexp.Regexp
	// group selects the submatch holding the entity, 0 for the whole match
	group int
}

var patterns = []pattern{
	{
		label: "PERSON",
		re: regexp.MustCompile(`\b(?:Senator|Sen\.|Representative|Rep\.|Congressman|Congresswoman|Governor|Gov\.|President|Vice President|Mayor|Secretary|Speaker|Minister|Chancellor|Judge|Justice|Mr\.|Mrs\.|Ms\.|Dr\.)\s+` +
			`((?:[A-Z]\.\s+)?` + capWord + `(?:\s+(?:[A-Z]\.\s+)?` + capWord + `){0,2})`),
		group: 1,
	},
	{
		label: "LEGISLATION",
		re:    regexp.MustCompile(capWords + `(?:Act|Bill|Resolution|Amendment)\b`),
	},
	{
		label: "LEGISLATION",
		re:    regexp.MustCompile(`\b(?:H\.R\.|S\.|H\.Res\.|S\.Res\.)\s?\d+\b`),
	},
	{
		label: "GOVERNMENT_BODY",
		re: regexp.MustCompile(`\b(?:` + capWord + `\s+){0,3}(?:Committee|Subcommittee|Senate|House of Representatives|House|Congress|Supreme Court|Parliament|Bundestag|Assembly|Council|Cabinet|Department of ` + capWord + `)\b` +
			`(?:\s+(?:on|of|for)\s+` + capWord + `(?:\s+(?:and\s+)?` + capWord + `){0,3})?`),
	},
	{
		label: "ORGANIZATION",
		re:    regexp.MustCompile(capWords + `(?:(?:Party|Association|Union|Foundation|Institute|Corporation|Coalition|Caucus|Alliance|Federation|PAC)\b|Inc\.)`),
	},
}

// leading words dropped from capitalized runs
var determiners = map[string]struct{}{
	"The": {}, "A": {}, "An": {}, "This": {}, "That": {}, "Our": {}, "Their": {}, "His": {}, "Her": {},
	"Yesterday": {}, "Today": {}, "Tomorrow": {}, "Tell": {}, "When": {}, "While": {}, "After": {}, "Before": {},
}

type match struct {
	start, end int
	label      string
}

func extractEntities(s string) []model.Entity {
	var matches []match
	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(s, -1) {
			start, end := loc[2*p.group], loc[2*p.group+1]
			if start < 0 {
				continue
			}
			start = skipDeterminers(s, start, end)
			if start >= end {
				continue
			}
			matches = append(matches, match{start: start, end: end, label: p.label})
		}
	}

	// earlier patterns win ties at the same position, longer matches win
	// otherwise
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].start != matches[j].start {
			return matches[i].start < matches[j].start
		}
		return matches[i].end-matches[i].start > matches[j].end-matches[j].start
	})

	var entities []model.Entity
	seen := make(map[string]struct{})
	lastEnd := -1
	for _, m := range matches {
		if m.start < lastEnd {
			continue
		}
		lastEnd = m.end
		name := strings.TrimRight(s[m.start:m.end], " ,;:")
		key := m.label + ":" + name
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		entities = append(entities, model.Entity{Text: name, Label: m.label})
	}
	return entities
}

func skipDeterminers(s string, start, end int) int {
	for {
		word, rest, found := strings.Cut(s[start:end], " ")
		if !found {
			return start
		}
		if _, ok := determiners[word]; !ok {
			return start
		}
		start = end - len(rest)
		for start < end && s[start] == ' ' {
			start++
		}
	}
}

type cue struct {
	predicate   string
	targetLabel string
	phrases     []string
}

var relationshipCues = []cue{
	{predicate: "SPONSORS", targetLabel: "LEGISLATION", phrases: []string{"sponsor", "introduc", "authored", "proposed", "drafted"}},
	{predicate: "VOTED_ON", targetLabel: "LEGISLATION", phrases: []string{"voted", "vote for", "vote against", "votes on", "abstained"}},
	{predicate: "MEMBER_OF", targetLabel: "GOVERNMENT_BODY", phrases: []string{"member of", "serves on", "served on", "serving on", "sits on", "elected to", "chairs", "chair of"}},
	{predicate: "AFFILIATED_WITH", targetLabel: "ORGANIZATION", phrases: []string{"affiliated", "member of", "joined", "founded", "works for", "leads", "backed by", "endorsed by"}},
}

// extractRelationships pairs people with the other entities of the same
// sentence when the sentence carries a cue for the relationship.
func extractRelationships(s string, entities []model.Entity) []model.Relationship {
	var rels []model.Relationship
	for _, sentence := range text.Sentences(s) {
		lower := strings.ToLower(sentence.Text)

		var people, others []model.Entity
		for _, e := range entities {
			if !strings.Contains(sentence.Text, e.Text) {
				continue
			}
			if e.Label == "PERSON" {
				people = append(people, e)
			} else {
				others = append(others, e)
			}
		}

		for _, c := range relationshipCues {
			if !containsAny(lower, c.phrases) {
				continue
			}
			for _, p := range people {
				for _, o := range others {
					if o.Label != c.targetLabel {
						continue
					}
					rels = append(rels, model.Relationship{
						Source:     p.Text,
						Target:     o.Text,
						Predicate:  c.predicate,
						Confidence: cueConfidence(len(people), len(others)),
					})
				}
			}
		}
	}
	return rels
}

// cueConfidence drops as a sentence holds more candidate pairs.
func cueConfidence(people, others int) float64 {
	pairs := people * others
	if pairs <= 1 {
		return 0.8
	}
	return 0.8 / float64(pairs) * 2
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
