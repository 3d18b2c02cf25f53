package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
)

const dateDirLayout = "20060102"

// Datalake is the on-disk Store shared with the acquisition service:
//
//	<root>/<YYYYMMDD>/<id%100 as NN>/header_<id>.txt
//	<root>/<YYYYMMDD>/<id%100 as NN>/body_<id>.txt
//
// A book ingested on several days lives in several date directories; the
// newest complete copy wins.
type Datalake struct {
	root   string
	logger *slog.Logger
}

func NewDatalake(root string) *Datalake {
	return &Datalake{
		root:   root,
		logger: slog.Default().With("component", "datalake"),
	}
}

func (d *Datalake) Root() string { return d.root }

func headerName(id uint32) string { return fmt.Sprintf("header_%d.txt", id) }
func bodyName(id uint32) string   { return fmt.Sprintf("body_%d.txt", id) }
func bucketName(id uint32) string { return fmt.Sprintf("%02d", id%100) }

// dateDirs returns the date directory names, newest first.
func (d *Datalake) dateDirs() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.Newf(apperrors.ErrUnreadable, 0, "reading datalake root: %v", err)
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	slices.Sort(dirs)
	slices.Reverse(dirs)
	return dirs, nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// locate returns the directory holding the newest complete copy of id.
func (d *Datalake) locate(ctx context.Context, id uint32) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dirs, err := d.dateDirs()
	if err != nil {
		return "", err
	}
	for _, date := range dirs {
		dir := filepath.Join(d.root, date, bucketName(id))
		if exists(filepath.Join(dir, headerName(id))) && exists(filepath.Join(dir, bodyName(id))) {
			return dir, nil
		}
	}
	return "", apperrors.Newf(apperrors.ErrDocumentNotFound, 0, "book %d not in datalake", id)
}

// Locate returns the directory holding the newest complete copy of id, or an
// error wrapping ErrDocumentNotFound.
func (d *Datalake) Locate(ctx context.Context, id uint32) (string, error) {
	return d.locate(ctx, id)
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.Newf(apperrors.ErrDocumentNotFound, 0, "%s disappeared", filepath.Base(path))
		}
		return "", apperrors.Newf(apperrors.ErrUnreadable, 0, "reading %s: %v", filepath.Base(path), err)
	}
	return string(data), nil
}

// Metadata parses the header of the newest copy of id.
func (d *Datalake) Metadata(ctx context.Context, id uint32) (Metadata, error) {
	dir, err := d.locate(ctx, id)
	if err != nil {
		return Metadata{}, err
	}
	header, err := readText(filepath.Join(dir, headerName(id)))
	if err != nil {
		return Metadata{}, err
	}
	meta := ParseHeader(id, header)
	meta.Path = dir
	return meta, nil
}

// Body returns the body text of the newest copy of id.
func (d *Datalake) Body(ctx context.Context, id uint32) (string, error) {
	dir, err := d.locate(ctx, id)
	if err != nil {
		return "", err
	}
	return readText(filepath.Join(dir, bodyName(id)))
}

// ListIDs returns every id with both a header and a body, ascending.
func (d *Datalake) ListIDs(ctx context.Context) ([]uint32, error) {
	dirs, err := d.dateDirs()
	if err != nil {
		return nil, err
	}
	seen := make(map[uint32]struct{})
	for _, date := range dirs {
		buckets, err := os.ReadDir(filepath.Join(d.root, date))
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrUnreadable, 0, "reading %s: %v", date, err)
		}
		for _, bucket := range buckets {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if !bucket.IsDir() {
				continue
			}
			dir := filepath.Join(d.root, date, bucket.Name())
			files, err := os.ReadDir(dir)
			if err != nil {
				return nil, apperrors.Newf(apperrors.ErrUnreadable, 0, "reading %s: %v", dir, err)
			}
			for _, f := range files {
				id, ok := parseHeaderName(f.Name())
				if !ok {
					continue
				}
				if exists(filepath.Join(dir, bodyName(id))) {
					seen[id] = struct{}{}
				} else {
					d.logger.Debug("header without body, skipping", "book_id", id, "dir", dir)
				}
			}
		}
	}
	ids := make([]uint32, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func parseHeaderName(name string) (uint32, bool) {
	rest, ok := strings.CutPrefix(name, "header_")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, ".txt")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(id), true
}

// Put stores header and body for id under the date of at and returns the
// directory written. The body is renamed into place last, so ListIDs never
// reports a book whose body is still being written.
func (d *Datalake) Put(id uint32, header, body string, at time.Time) (string, error) {
	dir := filepath.Join(d.root, at.UTC().Format(dateDirLayout), bucketName(id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating datalake directory: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, headerName(id)), header); err != nil {
		return "", err
	}
	if err := writeFileAtomic(filepath.Join(dir, bodyName(id)), body); err != nil {
		return "", err
	}
	d.logger.Debug("book stored", "book_id", id, "dir", dir, "body_bytes", len(body))
	return dir, nil
}

func writeFileAtomic(path, content string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", filepath.Base(path), err)
	}
	return nil
}
