// Package indexer is the sink for parsed documents. Every sub-document of a
// ParsedDocument becomes one entry in a field-qualified inverted index: text
// fields are analyzed with their mapping's analyzer, every other indexed
// value becomes a single exact term.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapper"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/metrics"
)

// positionGap separates the positions of successive values of one text
// field so phrases never match across values.
const positionGap = 100

type Engine struct {
	// mu guards the memIndex and flushing pointers, not their contents.
	mu       sync.RWMutex
	memIndex *index.MemoryIndex
	flushing *index.MemoryIndex
	flushMu  sync.Mutex

	writer   *segment.Writer
	readers  []*segment.Reader
	loaded   map[string]struct{}
	readerMu sync.RWMutex

	cfg     config.IndexerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	docLengths   map[string]int
	docLengthsMu sync.RWMutex
	totalDocs    int64
	totalTokens  int64
}

// NewEngine opens an engine over cfg.DataDir and loads the segments already
// there. m may be nil.
func NewEngine(cfg config.IndexerConfig, m *metrics.Metrics) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		memIndex:   index.NewMemoryIndex(),
		writer:     segment.NewWriter(cfg.DataDir),
		loaded:     make(map[string]struct{}),
		cfg:        cfg,
		metrics:    m,
		logger:     slog.Default().With("component", "indexer", "data_dir", cfg.DataDir),
		docLengths: make(map[string]int),
	}
	if _, err := e.loadSegments(); err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	e.logger.Info("segment recovery complete", "segments_loaded", len(e.readers))
	return e, nil
}

// SubDocID names the i-th of n sub-documents of the document uid. The root
// document, always last, keeps uid itself. Parsed documents list nested
// sub-documents in reverse of the order their objects open in the source,
// so they are numbered back from the root: the first nested object in the
// source is uid#0.
func SubDocID(uid string, i, n int) string {
	if i == n-1 {
		return uid
	}
	return uid + "#" + strconv.Itoa(n-2-i)
}

// IndexDocument adds every sub-document of parsed to the memory index and
// returns how many were added. Indexing a uid again replaces the postings
// of the terms it still has.
func (e *Engine) IndexDocument(parsed *mapper.ParsedDocument) (int, error) {
	if parsed == nil || len(parsed.Docs) == 0 {
		return 0, nil
	}
	uid := parsed.UID
	if uid == "" {
		return 0, fmt.Errorf("indexing document of type [%s]: missing uid", parsed.Type)
	}

	e.mu.RLock()
	mem := e.memIndex
	for i, doc := range parsed.Docs {
		docID := SubDocID(uid, i, len(parsed.Docs))
		terms := FieldTerms(doc)
		mem.AddDocument(docID, terms)

		e.docLengthsMu.Lock()
		if _, seen := e.docLengths[docID]; !seen {
			e.totalDocs++
		} else {
			e.totalTokens -= int64(e.docLengths[docID])
		}
		e.docLengths[docID] = len(terms)
		e.totalTokens += int64(len(terms))
		e.docLengthsMu.Unlock()
	}
	e.mu.RUnlock()

	e.logger.Debug("document indexed in memory",
		"uid", uid,
		"sub_docs", len(parsed.Docs),
		"mem_size", mem.Size(),
	)
	if mem.Size() >= e.cfg.SegmentMaxSize {
		e.logger.Info("memory index reached max size, flushing to disk",
			"size", mem.Size(),
			"threshold", e.cfg.SegmentMaxSize,
		)
		if err := e.Flush(); err != nil {
			return len(parsed.Docs), fmt.Errorf("flushing memory index: %w", err)
		}
	}
	return len(parsed.Docs), nil
}

// FieldTerms turns the indexed fields of doc into index terms.
func FieldTerms(doc *mapper.Document) []index.FieldTerm {
	var terms []index.FieldTerm
	next := make(map[string]int)
	for _, f := range doc.Fields() {
		if !f.Indexed {
			continue
		}
		if f.Type == mapper.TypeText {
			s, _ := f.Value.(string)
			base := next[f.Name]
			last := base - positionGap
			for _, tok := range tokenizer.Analyze(f.Analyzer, s) {
				last = base + tok.Position
				terms = append(terms, index.FieldTerm{Field: f.Name, Term: tok.Term, Position: last})
			}
			next[f.Name] = last + 1 + positionGap
			continue
		}
		terms = append(terms, index.FieldTerm{Field: f.Name, Term: ExactTerm(f.Value), Position: next[f.Name]})
		next[f.Name]++
	}
	return terms
}

// ExactTerm renders a non-text value as its single index term.
func ExactTerm(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case mapper.GeoPoint:
		return strconv.FormatFloat(t.Lat, 'g', -1, 64) + "," + strconv.FormatFloat(t.Lon, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Flush writes the memory index to a new segment. Documents indexed while
// the segment is written land in a fresh memory index. A memory index whose
// write failed stays searchable and is written first on the next Flush.
func (e *Engine) Flush() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	// At most a retried index and the live one.
	for i := 0; i < 2; i++ {
		pending := e.takePending()
		if pending == nil {
			return nil
		}
		if err := e.writePending(pending); err != nil {
			e.countFlush("error")
			return err
		}
		e.countFlush("success")
	}
	return nil
}

func (e *Engine) takePending() *index.MemoryIndex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.flushing != nil {
		return e.flushing
	}
	if e.memIndex.DocCount() == 0 {
		return nil
	}
	e.flushing = e.memIndex
	e.memIndex = index.NewMemoryIndex()
	return e.flushing
}

func (e *Engine) writePending(pending *index.MemoryIndex) error {
	segmentName, err := e.writer.Write(pending.Snapshot())
	if err != nil {
		return fmt.Errorf("writing segment: %w", err)
	}
	reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, segmentName))
	if err != nil {
		return fmt.Errorf("opening new segment for reading: %w", err)
	}
	e.readerMu.Lock()
	e.readers = append(e.readers, reader)
	e.loaded[segmentName] = struct{}{}
	active := len(e.readers)
	e.readerMu.Unlock()

	e.mu.Lock()
	e.flushing = nil
	e.mu.Unlock()

	e.logger.Info("segment flushed",
		"segment", segmentName,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
		"active_segments", active,
	)
	return nil
}

func (e *Engine) countFlush(status string) {
	if e.metrics != nil {
		e.metrics.IndexFlushesTotal.WithLabelValues(status).Inc()
	}
}

// Search returns the sub-documents holding the exact term in field.
func (e *Engine) Search(field, term string) (index.PostingList, error) {
	e.mu.RLock()
	allPostings := e.memIndex.Search(field, term)
	if e.flushing != nil {
		allPostings = append(allPostings, e.flushing.Search(field, term)...)
	}
	e.mu.RUnlock()

	e.readerMu.RLock()
	readers := make([]*segment.Reader, len(e.readers))
	copy(readers, e.readers)
	e.readerMu.RUnlock()

	for i := len(readers) - 1; i >= 0; i-- {
		reader := readers[i]
		postings, err := reader.Search(field, term)
		if err != nil {
			e.logger.Error("segment search failed",
				"segment", reader.Name(),
				"error", err,
			)
			continue
		}
		allPostings = append(allPostings, postings...)
	}
	return deduplicatePostings(allPostings), nil
}

// SearchText analyzes text with analyzer and returns the sub-documents
// holding any of the resulting terms in field.
func (e *Engine) SearchText(field, analyzer, text string) (index.PostingList, error) {
	var all index.PostingList
	for _, tok := range tokenizer.Analyze(analyzer, text) {
		postings, err := e.Search(field, tok.Term)
		if err != nil {
			return nil, err
		}
		all = append(all, postings...)
	}
	return deduplicatePostings(all), nil
}

func (e *Engine) GetDocLength(docID string) int {
	e.docLengthsMu.RLock()
	defer e.docLengthsMu.RUnlock()
	return e.docLengths[docID]
}

func (e *Engine) GetAvgDocLength() float64 {
	e.docLengthsMu.RLock()
	defer e.docLengthsMu.RUnlock()
	if e.totalDocs == 0 {
		return 0
	}
	return float64(e.totalTokens) / float64(e.totalDocs)
}

// GetTotalDocs counts the distinct sub-documents indexed since start.
func (e *Engine) GetTotalDocs() int64 {
	e.docLengthsMu.RLock()
	defer e.docLengthsMu.RUnlock()
	return e.totalDocs
}

func (e *Engine) StartFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := e.Flush(); err != nil {
					e.logger.Error("periodic flush failed", "error", err)
				}
			}
		}
	}()
}

// ReloadSegments opens segment files that appeared in the data directory
// since the last scan and returns how many were added.
func (e *Engine) ReloadSegments() int {
	n, err := e.loadSegments()
	if err != nil {
		e.logger.Error("segment reload failed", "error", err)
	}
	return n
}

func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "error", err)
		}
	}
	e.readers = nil
	e.loaded = make(map[string]struct{})
	return nil
}

func (e *Engine) loadSegments() (int, error) {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.Extension) {
			segFiles = append(segFiles, entry.Name())
		}
	}
	sort.Strings(segFiles)

	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	added := 0
	for _, name := range segFiles {
		if _, ok := e.loaded[name]; ok {
			continue
		}
		reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
		if err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		e.readers = append(e.readers, reader)
		e.loaded[name] = struct{}{}
		added++
		e.logger.Info("loaded segment",
			"segment", name,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
	}
	return added, nil
}

// deduplicatePostings keeps one posting per DocID, the newest source
// winning, and sorts the result by DocID. Earlier entries come from newer
// sources.
func deduplicatePostings(postings index.PostingList) index.PostingList {
	if len(postings) <= 1 {
		return postings
	}
	seen := make(map[string]struct{}, len(postings))
	result := make(index.PostingList, 0, len(postings))
	for _, p := range postings {
		if _, exists := seen[p.DocID]; exists {
			continue
		}
		seen[p.DocID] = struct{}{}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}
