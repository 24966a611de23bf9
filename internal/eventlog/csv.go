package eventlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/abhisek/cohortwatch/internal/cohort"
)

// CSVFile is a Backend over a CSV file with the Columns header. Appends
// add rows to the end of the file; existing rows are never rewritten.
type CSVFile struct {
	Path string
}

// NewCSVFile returns a backend for the log at path.
func NewCSVFile(path string) *CSVFile {
	return &CSVFile{Path: path}
}

// Ensure creates the log with a header-only body if it does not exist or
// is empty.
func (f *CSVFile) Ensure() error {
	if info, err := os.Stat(f.Path); err == nil {
		if info.Size() > 0 {
			return nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat event log: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create event log dir: %w", err)
	}
	header := strings.Join(Columns, ",") + "\n"
	if err := os.WriteFile(f.Path, []byte(header), 0o644); err != nil {
		return fmt.Errorf("create event log: %w", err)
	}
	return nil
}

// Load reads every row. A missing file is an empty log.
func (f *CSVFile) Load(_ context.Context) ([]Event, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer fh.Close()
	return ReadCSV(fh)
}

// Append writes events after the existing rows, creating the file first
// when needed.
func (f *CSVFile) Append(_ context.Context, events []Event) error {
	if err := f.Ensure(); err != nil {
		return err
	}
	fh, err := os.OpenFile(f.Path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer fh.Close()

	if err := terminateLastLine(fh); err != nil {
		return err
	}
	if err := writeRows(fh, events); err != nil {
		return err
	}
	return fh.Sync()
}

// terminateLastLine adds a newline when a hand-edited file ends without
// one, so the next row does not fuse with the last.
func terminateLastLine(fh *os.File) error {
	info, err := fh.Stat()
	if err != nil {
		return fmt.Errorf("stat event log: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := fh.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("read event log tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := fh.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("terminate event log: %w", err)
	}
	return nil
}

// ReadCSV decodes an event log. Columns are located by header name; the
// source column is optional.
func ReadCSV(r io.Reader) ([]Event, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, &DecodeError{Line: 1, Err: err}
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	var missing []string
	for _, c := range Columns[:4] {
		if _, ok := pos[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &cohort.SchemaError{Columns: missing, Reason: "event log missing columns"}
	}

	var events []Event
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, &DecodeError{Line: line, Err: err}
		}
		ev, err := decodeRow(rec, pos)
		if err != nil {
			return nil, &DecodeError{Line: line, Err: err}
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeRow(rec []string, pos map[string]int) (Event, error) {
	get := func(col string) string {
		if i, ok := pos[col]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	ev := Event{
		EntityID: get(ColEntityID),
		Field:    get(ColField),
		NewValue: get(ColNewValue),
		Source:   get(ColSource),
	}
	if ev.EntityID == "" {
		return Event{}, errors.New("empty entity_id")
	}
	d, err := ParseDate(get(ColDate))
	if err != nil {
		return Event{}, err
	}
	ev.Date = d
	return ev, nil
}

// WriteCSV writes events with a header.
func WriteCSV(w io.Writer, events []Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return writeRows(w, events)
}

func writeRows(w io.Writer, events []Event) error {
	cw := csv.NewWriter(w)
	for _, e := range events {
		if err := cw.Write([]string{e.EntityID, e.Date.String(), e.Field, e.NewValue, e.Source}); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
