package table

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"datanerd/internal/logging"
	"datanerd/internal/types"
)

// LoadCSV reads a delimited file into a Table. The delimiter is sniffed from
// the header line. Failures are reported as *types.DataError.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &types.DataError{Reason: "open " + filepath.Base(path), Err: err}
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	t, err := ReadCSV(f, name, 0)
	if err != nil {
		return nil, err
	}
	logging.Data("loaded %s: %d rows x %d columns", path, t.Rows(), t.NumCols())
	return t, nil
}

// ReadCSV parses delimited text. A zero delim auto-detects among ',', ';',
// tab and '|'.
func ReadCSV(r io.Reader, name string, delim rune) (*Table, error) {
	br := bufio.NewReader(r)
	if delim == 0 {
		head, _ := br.Peek(4096)
		delim = sniffDelimiter(head)
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &types.DataError{Reason: "no header row"}
		}
		return nil, &types.DataError{Reason: "read header", Err: err}
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	names := make([]string, len(header))
	seen := make(map[string]int)
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = fmt.Sprintf("%s_%d", h, n+1)
		} else {
			seen[h] = 1
		}
		names[i] = h
	}

	values := make([][]string, len(names))
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, &types.DataError{Reason: fmt.Sprintf("read row %d", line), Err: err}
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" && len(names) > 1 {
			continue
		}
		if len(rec) > len(names) {
			return nil, &types.DataError{Reason: fmt.Sprintf("row %d has %d fields, header has %d", line, len(rec), len(names))}
		}
		for j := range names {
			v := ""
			if j < len(rec) {
				v = rec[j]
			}
			values[j] = append(values[j], v)
		}
	}

	cols := make([]*Column, len(names))
	for j, n := range names {
		cols[j] = NewStringColumn(n, values[j])
	}
	t, err := New(name, cols...)
	if err != nil {
		return nil, &types.DataError{Reason: "assemble table", Err: err}
	}
	return t, nil
}

func sniffDelimiter(head []byte) rune {
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if n := strings.Count(string(head), string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// WriteCSV writes t as comma-separated text with a header row.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.ColumnNames()); err != nil {
		return err
	}
	for i := 0; i < t.Rows(); i++ {
		if err := cw.Write(t.Row(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
