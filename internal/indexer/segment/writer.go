// Package segment persists flushed memory indexes as immutable segment
// files: a fixed header, JSON posting lists, a JSON term dictionary sorted
// by key and a footer carrying the dictionary checksum.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/indexer/index"
)

const (
	// MagicBytes identifies a segment file ("SMSG").
	MagicBytes    uint32 = 0x534D5347
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".seg"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	CreatedAt  int64
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
}

// DictEntry maps a field-qualified term key to its postings offset, length
// and document frequency.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// Writer serialises TermEntry slices into new segment files.
type Writer struct {
	dataDir string
}

func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write creates a new segment file holding entries, which must be sorted
// by Term. The file is written under a .tmp name and renamed on success.
func (w *Writer) Write(entries []index.TermEntry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	now := time.Now()
	segmentName := fmt.Sprintf("seg_%020d%s", now.UnixNano(), Extension)
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	if err := writeSegment(f, entries, now); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return segmentName, nil
}

func writeSegment(f *os.File, entries []index.TermEntry, now time.Time) error {
	headerBytes := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(entries)))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(now.Unix()))
	if _, err := f.Write(headerBytes); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	postingsStart := int64(HeaderSize)
	offset := postingsStart
	dict := make([]DictEntry, 0, len(entries))
	docIDs := make(map[string]struct{})
	for _, entry := range entries {
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := f.Write(postingsData); err != nil {
			return fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: offset - postingsStart,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
		})
		offset += int64(len(postingsData))
		for _, p := range entry.Postings {
			docIDs[p.DocID] = struct{}{}
		}
	}

	postingsSize := offset - postingsStart
	dictStart := offset
	dictData, err := json.Marshal(dict)
	if err != nil {
		return fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return fmt.Errorf("writing dictionary: %w", err)
	}
	dictSize := int64(len(dictData))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(docIDs)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(dictStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(dictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(postingsSize))
	if _, err := f.Write(footer); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(len(docIDs)))
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(dictSize))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(postingsStart))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(postingsSize))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing segment file: %w", err)
	}
	return nil
}
