package fetch

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/theplant/regsync"
)

// FileSource serves a CSV extract file as a paged source. The whole
// file is parsed up front; monthly extracts are tens of megabytes at
// most, and holding them in memory keeps paging trivially consistent.
type FileSource struct {
	records []regsync.RawRecord
}

// NewFileSource parses the CSV at path. The first row is the header.
// Historical extract files carry stray quotes and ragged rows, so the
// reader is lenient: short rows are padded with empty fields and extra
// trailing fields are dropped.
func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open extract file %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read header of %s", path)
	}

	var records []regsync.RawRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s line %d", path, line)
		}

		record := make(regsync.RawRecord, len(header))
		for i, name := range header {
			if i < len(row) {
				record[name] = row[i]
			} else {
				record[name] = ""
			}
		}
		records = append(records, record)
	}

	return &FileSource{records: records}, nil
}

func (s *FileSource) Count(context.Context) (int, error) {
	return len(s.records), nil
}

func (s *FileSource) Fetch(_ context.Context, offset, limit int) ([]regsync.RawRecord, error) {
	if offset < 0 || offset >= len(s.records) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.records) {
		end = len(s.records)
	}
	return s.records[offset:end], nil
}
