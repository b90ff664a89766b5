package index

import "strings"

// termSep joins a field name and a term into one dictionary key. Field
// names never contain it.
const termSep = "\x00"

// Posting records one sub-document's occurrences of a term.
type Posting struct {
	DocID     string `json:"doc"`
	Frequency int    `json:"freq"`
	Positions []int  `json:"pos,omitempty"`
}

type PostingList []Posting

// TermEntry is a dictionary key and its postings, sorted by DocID.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// FieldTerm is one analyzed term of a field value.
type FieldTerm struct {
	Field    string
	Term     string
	Position int
}

// Key returns the dictionary key of term within field.
func Key(field, term string) string {
	return field + termSep + term
}

// SplitKey reverses Key.
func SplitKey(key string) (field, term string) {
	field, term, _ = strings.Cut(key, termSep)
	return field, term
}
