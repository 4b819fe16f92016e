package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var recordsHeader = []string{"", "title", "abstract", "abstract_title_concats", "url", "authors", "date"}

// CSVSink appends every run to a record dump and a parallel label dump. The
// record header is written only when the file is new or empty.
type CSVSink struct {
	RecordsPath string
	LabelsPath  string
}

func NewCSVSink(recordsPath, labelsPath string) *CSVSink {
	return &CSVSink{RecordsPath: recordsPath, LabelsPath: labelsPath}
}

func (s *CSVSink) Save(_ context.Context, batch Batch) error {
	if len(batch.Membership) != len(batch.Corpus) {
		return fmt.Errorf("csv: %d labels for %d records", len(batch.Membership), len(batch.Corpus))
	}
	if err := s.appendRecords(batch); err != nil {
		return err
	}
	return s.appendLabels(batch)
}

func (s *CSVSink) appendRecords(batch Batch) error {
	f, err := openAppend(s.RecordsPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("csv: failed to stat %s: %w", s.RecordsPath, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(recordsHeader); err != nil {
			return fmt.Errorf("csv: failed to write header: %w", err)
		}
	}
	for i, r := range batch.Corpus {
		row := []string{
			strconv.Itoa(i),
			r.Title,
			r.Abstract,
			r.SearchableText,
			r.URL,
			strings.Join(r.Authors, "; "),
			r.Created,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("csv: failed to write record %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: failed to flush %s: %w", s.RecordsPath, err)
	}
	return f.Close()
}

func (s *CSVSink) appendLabels(batch Batch) error {
	f, err := openAppend(s.LabelsPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var sb strings.Builder
	for _, m := range batch.Membership {
		if m {
			sb.WriteString("1\n")
		} else {
			sb.WriteString("0\n")
		}
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("csv: failed to write labels: %w", err)
	}
	return f.Close()
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("csv: creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csv: failed to open %s: %w", path, err)
	}
	return f, nil
}
