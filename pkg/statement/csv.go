package statement

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"golang.org/x/sync/errgroup"
)

const readConcurrency = 4

var ErrEmpty = errors.New("statement has no header")

// Read parses a CSV export with a header row.
func Read(r io.Reader, opts *Options) (*Statement, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}

	return FromTable(header, records[1:], opts)
}

func trimBOM(s string) string {
	const bom = "\ufeff"
	if len(s) >= len(bom) && s[:len(bom)] == bom {
		return s[len(bom):]
	}
	return s
}

// ReadFile parses the CSV export at path.
func ReadFile(path string, opts *Options) (*Statement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening statement %s: %w", path, err)
	}
	defer f.Close()

	st, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("parsing statement %s: %w", path, err)
	}
	st.Source = path

	slog.Debug("statement loaded", "path", path, "transactions", len(st.Transactions))
	return st, nil
}

// ReadAll loads several statements concurrently. Results keep the order of paths.
func ReadAll(ctx context.Context, paths []string, opts *Options) ([]*Statement, error) {
	list := make([]*Statement, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)

	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			st, err := ReadFile(p, opts)
			if err != nil {
				return err
			}
			list[i] = st
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return list, nil
}

// Merge concatenates statements. Columns are the union, in first-seen order.
func Merge(list ...*Statement) *Statement {
	out := &Statement{Columns: make([]string, 0), Transactions: make([]*Transaction, 0)}
	for _, st := range list {
		if st == nil {
			continue
		}
		for _, c := range st.Columns {
			if !slices.Contains(out.Columns, c) {
				out.Columns = append(out.Columns, c)
			}
		}
		out.Transactions = append(out.Transactions, st.Transactions...)
	}
	return out
}

// Header returns the source columns followed by the classification columns.
func (s *Statement) Header() []string {
	h := slices.Clone(s.Columns)
	for _, c := range OutputColumns {
		if !slices.Contains(h, c) {
			h = append(h, c)
		}
	}
	return h
}

// Write renders the classified statement as CSV.
func Write(w io.Writer, s *Statement) error {
	cw := csv.NewWriter(w)
	header := s.Header()

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	row := make([]string, len(header))
	for _, tx := range s.Transactions {
		for i, c := range header {
			row[i] = tx.Value(c)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}

// WriteFile renders the classified statement to path.
func WriteFile(path string, s *Statement) (retErr error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing file: %w", cerr)
		}
	}()
	return Write(f, s)
}
