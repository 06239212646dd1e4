package activitystore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
)

var fileHeader = []string{"username", "qualifying_comment_count", "last_post_date"}

// header written by the first version of the bot; accepted when reading, never written
var legacyFileHeader = []string{"username", "comment_count", "last_post_date"}

// Activity table stored as a single CSV file on local disk.
//
// Every Put re-reads the full table, replaces one row, and writes the result to a temporary file in the same directory which is then renamed over the table. A crash at any point leaves either the old or the new table in place, never a partial file.
type FileActivityStore struct {
	Path string

	// serializes read-modify-write cycles within this process
	lk sync.Mutex
}

var _ ActivityStore = (*FileActivityStore)(nil)

// Opens the table at the given path, creating it (header only) if it does not exist.
//
// Returns an error if the file exists but can not be parsed: silently starting over with an empty table would drop all engagement state.
func NewFileActivityStore(path string) (*FileActivityStore, error) {
	s := &FileActivityStore{Path: path}
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating activity table directory: %w", err)
			}
		}
		if err := s.writeTable(map[string]Record{}); err != nil {
			return nil, fmt.Errorf("initializing activity table: %w", err)
		}
		return s, nil
	} else if err != nil {
		return nil, fmt.Errorf("checking activity table: %w", err)
	}
	if _, err := s.readTable(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileActivityStore) Get(ctx context.Context, user string) (Record, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	table, err := s.readTable()
	if err != nil {
		return Record{}, err
	}
	return table[user], nil
}

func (s *FileActivityStore) Put(ctx context.Context, user string, rec Record) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	table, err := s.readTable()
	if err != nil {
		return err
	}
	table[user] = rec
	return s.writeTable(table)
}

func (s *FileActivityStore) readTable() (map[string]Record, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("opening activity table: %w", err)
	}
	defer func() { _ = f.Close() }()
	return parseTable(f)
}

func parseTable(r io.Reader) (map[string]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(fileHeader)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("activity table is missing header row")
	} else if err != nil {
		return nil, fmt.Errorf("reading activity table header: %w", err)
	}
	if !equalRow(header, fileHeader) && !equalRow(header, legacyFileHeader) {
		return nil, fmt.Errorf("unexpected activity table header: %v", header)
	}

	table := make(map[string]Record)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading activity table: %w", err)
		}
		count, err := strconv.Atoi(row[1])
		if err != nil || count < 0 {
			return nil, fmt.Errorf("invalid qualifying_comment_count for user %q: %q", row[0], row[1])
		}
		date, err := ParseDate(row[2])
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", row[0], err)
		}
		table[row[0]] = Record{
			QualifyingCommentCount: count,
			LastPostDate:           date,
		}
	}
	return table, nil
}

func (s *FileActivityStore) writeTable(table map[string]Record) error {
	dir, name := filepath.Split(s.Path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary activity table: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := encodeTable(tmp, table); err != nil {
		return fmt.Errorf("writing activity table: %w", err)
	}
	// CreateTemp makes the file 0600; keep the table's existing permissions
	mode := fs.FileMode(0o644)
	if fi, err := os.Stat(s.Path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		return fmt.Errorf("setting activity table permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing activity table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing activity table: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("replacing activity table: %w", err)
	}
	committed = true

	// make the rename itself durable; not all platforms support syncing a directory, so this is best-effort
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func encodeTable(w io.Writer, table map[string]Record) error {
	users := make([]string, 0, len(table))
	for u := range table {
		users = append(users, u)
	}
	sort.Strings(users)

	cw := csv.NewWriter(w)
	if err := cw.Write(fileHeader); err != nil {
		return err
	}
	for _, u := range users {
		rec := table[u]
		if err := cw.Write([]string{u, strconv.Itoa(rec.QualifyingCommentCount), rec.FormatDate()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func equalRow(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
