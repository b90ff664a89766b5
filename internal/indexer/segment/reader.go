package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/indexer/index"
)

// Reader serves term lookups from one segment file. The dictionary is held
// in memory; posting lists are read on demand.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	postBase int64
}

// OpenReader opens the segment at path and verifies its header and
// dictionary checksum.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func load(f *os.File, path string) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	header := SegmentHeader{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(headerBytes[4:8]),
		TermCount:  binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:   binary.LittleEndian.Uint32(headerBytes[12:16]),
		DictOffset: int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictSize:   int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		CreatedAt:  int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment format version %d", header.Version)
	}
	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if sum := binary.LittleEndian.Uint32(footer[0:4]); sum != crc32.ChecksumIEEE(dictBytes) {
		return nil, fmt.Errorf("segment %s: dictionary checksum mismatch", filepath.Base(path))
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
		postBase: header.PostOffset,
	}, nil
}

// Search returns the postings of term in field, or nil when the segment
// does not contain it.
func (r *Reader) Search(field, term string) (index.PostingList, error) {
	key := index.Key(field, term)
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= key
	})
	if idx >= len(r.dict) || r.dict[idx].Term != key {
		return nil, nil
	}
	entry := r.dict[idx]
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.postBase+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

// Fields lists the distinct field names present in the segment, sorted.
func (r *Reader) Fields() []string {
	var out []string
	for _, e := range r.dict {
		field, _ := index.SplitKey(e.Term)
		if len(out) == 0 || out[len(out)-1] != field {
			out = append(out, field)
		}
	}
	return out
}

func (r *Reader) Name() string {
	return filepath.Base(r.filePath)
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Close() error {
	return r.file.Close()
}
