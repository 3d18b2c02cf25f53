package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/index"
)

// ErrNoSnapshot is returned by LoadLatest when the directory holds no
// readable snapshot.
var ErrNoSnapshot = errors.New("no snapshot found")

// Reader gives access to one snapshot file. The dictionary, document table
// and meta are loaded eagerly; postings are read on demand.
type Reader struct {
	file   *os.File
	path   string
	header Header
	dict   []DictEntry
	docIDs []uint32
	meta   Meta
}

// OpenReader opens path and verifies its magic, format and checksum.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot file: %w", err)
	}
	r, err := newReader(f, path)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return r, nil
}

func newReader(f *os.File, path string) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid snapshot file: bad magic bytes %x", header.Magic)
	}
	if header.Format != FormatVersion {
		return nil, fmt.Errorf("unsupported snapshot format %d", header.Format)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat snapshot file: %w", err)
	}
	contentSize := int64(HeaderSize) + header.bodySize()
	if info.Size() != contentSize+int64(FooterSize) {
		return nil, fmt.Errorf("truncated snapshot: size %d, header expects %d", info.Size(), contentSize+int64(FooterSize))
	}

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, contentSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	hash := crc32.NewIEEE()
	if _, err := io.Copy(hash, io.NewSectionReader(f, 0, contentSize)); err != nil {
		return nil, fmt.Errorf("checksumming snapshot: %w", err)
	}
	if want := binary.LittleEndian.Uint32(footer[0:4]); hash.Sum32() != want {
		return nil, fmt.Errorf("checksum mismatch: got %08x, want %08x", hash.Sum32(), want)
	}

	r := &Reader{file: f, path: path, header: header}
	offset := int64(HeaderSize) + int64(header.PostSize)
	if err := readJSON(f, offset, int64(header.DictSize), &r.dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	offset += int64(header.DictSize)
	if err := readJSON(f, offset, int64(header.DocsSize), &r.docIDs); err != nil {
		return nil, fmt.Errorf("parsing document table: %w", err)
	}
	offset += int64(header.DocsSize)
	if err := readJSON(f, offset, int64(header.MetaSize), &r.meta); err != nil {
		return nil, fmt.Errorf("parsing meta: %w", err)
	}
	if len(r.dict) != int(header.TermCount) || len(r.docIDs) != int(header.DocCount) {
		return nil, fmt.Errorf("header counts do not match content")
	}
	return r, nil
}

func readJSON(f *os.File, offset, size int64, v any) error {
	data := make([]byte, size)
	if _, err := f.ReadAt(data, offset); err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Lookup reads the postings of one term, or returns nil when absent.
func (r *Reader) Lookup(term string) (index.PostingList, error) {
	i := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if i >= len(r.dict) || r.dict[i].Term != term {
		return nil, nil
	}
	return r.readPostings(r.dict[i])
}

func (r *Reader) readPostings(entry DictEntry) (index.PostingList, error) {
	data := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(data, int64(HeaderSize)+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings for %q: %w", entry.Term, err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(data, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings for %q: %w", entry.Term, err)
	}
	return postings, nil
}

// Load reads every posting list and returns the validated index.
func (r *Reader) Load() (*index.Index, error) {
	entries := make([]index.TermEntry, 0, len(r.dict))
	for _, entry := range r.dict {
		postings, err := r.readPostings(entry)
		if err != nil {
			return nil, err
		}
		entries = append(entries, index.TermEntry{Term: entry.Term, Postings: postings})
	}
	ix, err := index.FromEntries(entries, r.docIDs)
	if err != nil {
		return nil, fmt.Errorf("validating snapshot content: %w", err)
	}
	return ix, nil
}

func (r *Reader) Meta() Meta { return r.meta }

func (r *Reader) Terms() int { return len(r.dict) }

func (r *Reader) DocCount() int { return len(r.docIDs) }

func (r *Reader) Close() error {
	return r.file.Close()
}

// Read opens, loads and closes one snapshot file.
func Read(path string) (Meta, *index.Index, error) {
	r, err := OpenReader(path)
	if err != nil {
		return Meta{}, nil, err
	}
	defer r.Close()
	ix, err := r.Load()
	if err != nil {
		return Meta{}, nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return r.Meta(), ix, nil
}

// List returns the snapshot file names in dir, oldest first. A missing
// directory yields no names.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExt) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// LoadLatest loads the newest readable snapshot in dir, skipping corrupt
// files. It returns ErrNoSnapshot when none can be read.
func LoadLatest(dir string) (Meta, *index.Index, string, error) {
	logger := slog.Default().With("component", "segment-reader")
	names, err := List(dir)
	if err != nil {
		return Meta{}, nil, "", err
	}
	for _, name := range slices.Backward(names) {
		meta, ix, err := Read(filepath.Join(dir, name))
		if err != nil {
			logger.Error("failed to load snapshot, skipping", "file", name, "error", err)
			continue
		}
		logger.Info("snapshot loaded",
			"file", name,
			"version", meta.Version,
			"terms", ix.TermCount(),
			"docs", ix.DocCount(),
		)
		return meta, ix, name, nil
	}
	return Meta{}, nil, "", ErrNoSnapshot
}
