package index

import (
	"sort"
	"sync"
)

// MemoryIndex is the write buffer of an engine: a field-qualified inverted
// index that is snapshotted into a segment and reset on flush.
type MemoryIndex struct {
	mu       sync.RWMutex
	index    map[string]map[string]*Posting
	docCount int
	size     int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]map[string]*Posting),
	}
}

// AddDocument indexes the terms of one sub-document. Adding the same
// docID again replaces its postings for the keys it mentions.
func (m *MemoryIndex) AddDocument(docID string, terms []FieldTerm) {
	termData := make(map[string]*Posting)

	for _, ft := range terms {
		key := Key(ft.Field, ft.Term)
		p, exists := termData[key]
		if !exists {
			p = &Posting{
				DocID:     docID,
				Positions: make([]int, 0, 4),
			}
			termData[key] = p
		}
		p.Frequency++
		p.Positions = append(p.Positions, ft.Position)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, posting := range termData {
		if _, exists := m.index[key]; !exists {
			m.index[key] = make(map[string]*Posting)
		}
		m.index[key][docID] = posting
		m.size += int64(len(key) + len(docID) + len(posting.Positions)*8 + 64)
	}
	m.docCount++
}

// Search returns the postings of term in field, sorted by DocID.
func (m *MemoryIndex) Search(field, term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[Key(field, term)]
	if !exists {
		return nil
	}
	return sortedPostings(docs)
}

// Snapshot copies the index out as dictionary-ordered term entries.
func (m *MemoryIndex) Snapshot() []TermEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for key, docs := range m.index {
		entries = append(entries, TermEntry{
			Term:     key,
			Postings: sortedPostings(docs),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

func sortedPostings(docs map[string]*Posting) PostingList {
	postings := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		postings = append(postings, *posting)
	}
	sort.Slice(postings, func(i, j int) bool {
		return postings[i].DocID < postings[j].DocID
	})
	return postings
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docCount
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]map[string]*Posting)
	m.docCount = 0
	m.size = 0
}
