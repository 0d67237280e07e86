// Package text splits documents into sentences while keeping byte offsets
// into the original text.
package text

import "strings"

// Sentence is a sentence of a document. Start and End are byte offsets into
// the source text and Text is source[Start:End].
type Sentence struct {
	Start int
	End   int
	Text  string
}

// Contains reports whether the byte range [start, end) lies in the sentence.
func (s Sentence) Contains(start, end int) bool {
	return start >= s.Start && end <= s.End
}

var abbreviations = map[string]struct{}{
	"sen": {}, "rep": {}, "reps": {}, "gov": {}, "pres": {}, "mr": {}, "mrs": {}, "ms": {},
	"dr": {}, "st": {}, "jr": {}, "sr": {}, "vs": {}, "hon": {}, "lt": {}, "gen": {},
	"sec": {}, "atty": {}, "sect": {}, "approx": {},
}

// Sentences splits s on sentence terminators and blank lines. A line that
// contains a pipe is treated as a table row and becomes its own sentence.
// Sentences may span line breaks.
func Sentences(s string) []Sentence {
	var out []Sentence
	start := -1

	flush := func(end int) {
		if start < 0 {
			return
		}
		a, b := start, end
		for a < b && isSpace(s[a]) {
			a++
		}
		for b > a && isSpace(s[b-1]) {
			b--
		}
		if a < b {
			out = append(out, Sentence{Start: a, End: b, Text: s[a:b]})
		}
		start = -1
	}

	lineStart := 0
	for lineStart <= len(s) {
		lineEnd := len(s)
		if idx := strings.IndexByte(s[lineStart:], '\n'); idx >= 0 {
			lineEnd = lineStart + idx
		}
		trimmed := strings.TrimSpace(s[lineStart:lineEnd])

		switch {
		case trimmed == "":
			flush(lineStart)
		case strings.Contains(trimmed, "|"):
			flush(lineStart)
			start = lineStart
			flush(lineEnd)
		default:
			for i := lineStart; i < lineEnd; i++ {
				c := s[i]
				if start < 0 {
					if isSpace(c) {
						continue
					}
					start = i
				}
				if c != '.' && c != '!' && c != '?' {
					continue
				}
				if c == '.' && !endsSentence(s, start, i, lineEnd) {
					continue
				}

				j := i + 1
				for j < lineEnd && strings.IndexByte(".!?", s[j]) >= 0 {
					j++
				}
				for j < lineEnd && strings.IndexByte("\"')]}", s[j]) >= 0 {
					j++
				}
				flush(j)
				i = j - 1
			}
		}

		if lineEnd == len(s) {
			break
		}
		lineStart = lineEnd + 1
	}
	flush(len(s))

	return out
}

// endsSentence decides whether the period at s[i] terminates the sentence
// that began at start.
func endsSentence(s string, start, i, lineEnd int) bool {
	if i+1 < lineEnd && !isSpace(s[i+1]) && strings.IndexByte(".!?\"')]}", s[i+1]) < 0 {
		// 3.5, example.com, H.R.
		return false
	}

	wordStart := i
	for wordStart > start && !isSpace(s[wordStart-1]) {
		wordStart--
	}
	word := strings.Trim(s[wordStart:i], "(\"'")
	if word == "" {
		return true
	}

	// numbered listing: "1. First item"
	if len(word) <= 2 && isDigits(word) && i+1 < lineEnd {
		return false
	}
	// initials and dotted abbreviations: "J.", "U.S.", "H.R."
	if len(word) == 1 && word[0] >= 'A' && word[0] <= 'Z' {
		return false
	}
	if strings.Contains(word, ".") {
		return false
	}
	if _, ok := abbreviations[strings.ToLower(word)]; ok {
		return false
	}
	return true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Of returns the index of the sentence containing the byte range
// [start, end), or -1.
func Of(sentences []Sentence, start, end int) int {
	for i, s := range sentences {
		if s.Contains(start, end) {
			return i
		}
	}
	return -1
}
