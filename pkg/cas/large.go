package cas

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/codefang/pkg/digest"
)

// ErrMissingChunk is returned when a splice is attempted but a referenced
// part is not resident and no large-object record exists to recover it.
var ErrMissingChunk = errors.New("cas: missing chunk for splice")

// largeStore implements the split/splice large-object extension (C3). Parts
// lists are recorded under a separate "-large-<kind>" directory tree, keyed
// by the digest of the whole (unsplit) object, so a large-object record
// never collides with an ordinary CAS entry even though both may exist for
// related digests. The record bytes are lz4-compressed on disk: for an
// object with many thousands of chunks the parts list itself can run to
// hundreds of kilobytes of repetitive hex text.
type largeStore struct {
	s *Store
}

func newLargeStore(s *Store) *largeStore {
	return &largeStore{s: s}
}

func (l *largeStore) recordDir(objType digest.ObjectType) string {
	if objType == digest.Tree {
		return "-large-t"
	}

	return "-large-f"
}

func (l *largeStore) recordPath(d digest.Digest, objType digest.ObjectType) string {
	return fanout(l.s.Root, l.recordDir(objType), d.Hash)
}

// split breaks data into content-defined chunks ("Splitting").
func (l *largeStore) split(d digest.Digest, objType digest.ObjectType) ([]digest.Digest, error) {
	if parts, ok, err := l.loadRecord(d, objType); err != nil {
		return nil, err
	} else if ok {
		return parts, nil
	}

	data, err := l.residentBytes(d, objType)
	if err != nil {
		return nil, err
	}

	var parts []digest.Digest

	if objType == digest.Tree {
		parts, err = l.splitTreeBytes(data)
	} else {
		parts, err = l.splitBlobBytes(data)
	}

	if err != nil {
		return nil, err
	}

	if len(parts) <= 1 {
		return []digest.Digest{d}, nil
	}

	if err := l.storeRecord(d, objType, parts); err != nil {
		return nil, err
	}

	return parts, nil
}

// residentBytes returns d's bytes if directly resident, otherwise attempts
// an implicit splice from an existing parts record, failing with
// ErrMissingChunk if neither is available.
func (l *largeStore) residentBytes(d digest.Digest, objType digest.ObjectType) ([]byte, error) {
	if data, err := l.s.ReadBytes(d, objType); err == nil {
		return data, nil
	}

	parts, ok, err := l.loadRecord(d, objType)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingChunk, d)
	}

	if _, err := l.splice(d, parts, objType); err != nil {
		return nil, err
	}

	return l.s.ReadBytes(d, objType)
}

// splitBlobBytes applies FastCDC chunking, storing each chunk as an
// ordinary file CAS entry.
func (l *largeStore) splitBlobBytes(data []byte) ([]digest.Digest, error) {
	bounds := fastCDCChunks(data)

	parts := make([]digest.Digest, 0, len(bounds))

	start := 0

	for _, end := range bounds {
		chunk := data[start:end]

		d, err := l.s.StoreBytes(chunk, digest.File)
		if err != nil {
			return nil, fmt.Errorf("cas: store chunk: %w", err)
		}

		parts = append(parts, d)
		start = end
	}

	return parts, nil
}

// splitTreeBytes implements split_tree: each line of the tree's plain-text
// encoding (pkg/cas.EncodeTreeEntries), trailing newline included, is
// stored as its own ordinary file CAS entry. Concatenating these parts in
// order reproduces the tree's exact bytes, satisfying the splice round-trip
// invariant while keeping a "one part per immediate entry" shape for
// split_tree.
func (l *largeStore) splitTreeBytes(data []byte) ([]digest.Digest, error) {
	lines := bytes.SplitAfter(data, []byte("\n"))

	parts := make([]digest.Digest, 0, len(lines))

	for _, line := range lines {
		if len(line) == 0 {
			continue
		}

		d, err := l.s.StoreBytes(line, digest.File)
		if err != nil {
			return nil, fmt.Errorf("cas: store tree entry part: %w", err)
		}

		parts = append(parts, d)
	}

	return parts, nil
}

// splice reassembles parts back into a single object ("Splicing").
func (l *largeStore) splice(d digest.Digest, parts []digest.Digest, objType digest.ObjectType) (digest.Digest, error) {
	var buf bytes.Buffer

	for _, part := range parts {
		data, err := l.s.ReadBytes(part, digest.File)
		if err != nil {
			return digest.Digest{}, fmt.Errorf("%w: part %s: %v", ErrMissingChunk, part.Hash, err)
		}

		buf.Write(data)
	}

	got := digest.Of(l.s.Flavor, buf.Bytes(), objType == digest.Tree)
	if !got.Equal(d) {
		return digest.Digest{}, fmt.Errorf("cas: splice result %s does not match expected %s", got.Hash, d.Hash)
	}

	if objType == digest.Tree {
		if err := l.s.CheckTreeInvariant(buf.Bytes()); err != nil {
			return digest.Digest{}, err
		}
	}

	if err := l.s.storeBytesAt(d, buf.Bytes(), objType); err != nil {
		return digest.Digest{}, err
	}

	return d, nil
}

// storeRecord persists parts as a parts-list keyed by d, lz4-compressed.
func (l *largeStore) storeRecord(d digest.Digest, objType digest.ObjectType, parts []digest.Digest) error {
	raw := encodeParts(parts)

	compressed, err := lz4Compress(raw)
	if err != nil {
		return fmt.Errorf("cas: compress parts record: %w", err)
	}

	path := l.recordPath(d, objType)
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("cas: mkdir: %w", err)
	}

	return l.s.writeAtomic(path, compressed)
}

// loadRecord returns (parts, true, nil) if a record exists for d.
func (l *largeStore) loadRecord(d digest.Digest, objType digest.ObjectType) ([]digest.Digest, bool, error) {
	path := l.recordPath(d, objType)

	compressed, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("cas: read parts record: %w", err)
	}

	raw, err := lz4Decompress(compressed)
	if err != nil {
		return nil, false, fmt.Errorf("cas: decompress parts record: %w", err)
	}

	parts, err := decodeParts(raw)
	if err != nil {
		return nil, false, err
	}

	return parts, true, nil
}

// encodeParts renders parts as a newline-free concatenation of
// "<hash>:<size>;" records, one per part.
func encodeParts(parts []digest.Digest) []byte {
	var sb strings.Builder

	for _, p := range parts {
		sb.WriteString(p.Hash)
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatInt(p.Size, 10))
		sb.WriteByte(';')
	}

	return []byte(sb.String())
}

func decodeParts(raw []byte) ([]digest.Digest, error) {
	text := strings.TrimSuffix(string(raw), ";")
	if text == "" {
		return nil, nil
	}

	records := strings.Split(text, ";")
	parts := make([]digest.Digest, 0, len(records))

	for _, rec := range records {
		fields := strings.SplitN(rec, ":", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("cas: malformed parts record %q", rec)
		}

		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cas: malformed parts record size %q: %w", rec, err)
		}

		parts = append(parts, digest.FromHex(fields[0], size, false))
	}

	return parts, nil
}

func lz4Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := lz4.NewWriter(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func lz4Decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	return out, nil
}
