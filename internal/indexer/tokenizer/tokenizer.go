// Package tokenizer turns text field values into index terms. Each text
// field names an analyzer in its mapping; Analyze runs that chain.
package tokenizer

import (
	"strings"
	"unicode"
)

// Analyzer names understood by Analyze. Unknown names fall back to
// Standard.
const (
	Standard   = "standard"
	English    = "english"
	Simple     = "simple"
	Whitespace = "whitespace"
	Keyword    = "keyword"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token is a single normalised term and its position in the original
// text. Positions count emitted tokens only.
type Token struct {
	Term     string
	Position int
}

// Analyze breaks text into tokens using the named analyzer.
//
//	standard:   lower-case, split on non letter/digit runes
//	english:    standard plus stop-word removal and suffix stemming
//	simple:     lower-case, split on non letters
//	whitespace: split on white space, case kept
//	keyword:    the whole value as one token
func Analyze(analyzer, text string) []Token {
	switch analyzer {
	case Keyword:
		if text == "" {
			return nil
		}
		return []Token{{Term: text}}
	case Whitespace:
		return positions(strings.Fields(text), nil)
	case Simple:
		return positions(strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r)
		}), nil)
	case English:
		return positions(words(text), func(word string) string {
			if len(word) < 2 {
				return ""
			}
			if _, isStop := stopWords[word]; isStop {
				return ""
			}
			return stem(word)
		})
	default:
		return positions(words(text), nil)
	}
}

// Tokenize runs the english chain.
func Tokenize(text string) []Token {
	return Analyze(English, text)
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// positions numbers the terms that survive filter. A nil filter keeps
// every word unchanged.
func positions(words []string, filter func(string) string) []Token {
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		if filter != nil {
			word = filter(word)
		}
		if word == "" {
			continue
		}
		tokens = append(tokens, Token{Term: word, Position: pos})
		pos++
	}
	return tokens
}

// stem applies a simple suffix-stripping stemmer to the given word.
func stem(word string) string {
	suffixes := []struct {
		suffix      string
		replacement string
		minLen      int
	}{
		{"ational", "ate", 2},
		{"tional", "tion", 2},
		{"encies", "ence", 2},
		{"ances", "ance", 2},
		{"ments", "ment", 2},
		{"izing", "ize", 2},
		{"ating", "ate", 2},
		{"iness", "y", 2},
		{"ously", "ous", 2},
		{"ively", "ive", 2},
		{"eness", "ene", 2},
		{"tion", "t", 3},
		{"sion", "s", 3},
		{"ying", "y", 2},
		{"ling", "l", 3},
		{"ies", "y", 2},
		{"ing", "", 3},
		{"ers", "er", 2},
		{"est", "", 3},
		{"ful", "", 3},
		{"ous", "", 3},
		{"ess", "", 3},
		{"ble", "", 3},
		{"ed", "", 3},
		{"er", "", 3},
		{"ly", "", 3},
		{"es", "", 3},
		{"ss", "ss", 2},
		{"s", "", 3},
	}
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
