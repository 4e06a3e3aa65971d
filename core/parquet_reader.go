package core

import (
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"howett.net/ranger"
)

// ParquetReader supplies input columns from a parquet file on disk or
// behind an http(s) URL that supports range requests
type ParquetReader struct {
	path   string
	file   *parquet.File
	rows   *parquet.Reader
	closer io.Closer
	read   int64
}

// OpenParquet opens a local path or an http(s) URL
func OpenParquet(path string) (*ParquetReader, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return openHTTPParquet(path)
	}
	tracer := GetTracer()
	start := time.Now()

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	pf, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "opening parquet file %s", path)
	}
	tracer.Info(TraceComponentInput, "Parquet reader initialized", TraceContext(
		"file", path,
		"open_ms", time.Since(start).Milliseconds(),
		"fields", len(pf.Schema().Fields()),
		"row_groups", len(pf.RowGroups()),
		"rows", pf.NumRows(),
	))
	return &ParquetReader{path: path, file: pf, closer: file}, nil
}

func openHTTPParquet(rawURL string) (*ParquetReader, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing URL %s", rawURL)
	}
	reader, err := ranger.NewReader(&ranger.HTTPRanger{URL: parsed})
	if err != nil {
		return nil, errors.Wrapf(err, "creating ranged reader for %s", rawURL)
	}
	length, err := reader.Length()
	if err != nil {
		return nil, errors.Wrapf(err, "reading content length of %s", rawURL)
	}
	pf, err := parquet.OpenFile(reader, length)
	if err != nil {
		return nil, errors.Wrapf(err, "opening remote parquet file %s", rawURL)
	}
	GetTracer().Info(TraceComponentInput, "Remote parquet reader initialized", TraceContext("url", rawURL, "bytes", length, "rows", pf.NumRows()))
	return &ParquetReader{path: rawURL, file: pf}, nil
}

// Close releases the underlying file
func (pr *ParquetReader) Close() error {
	if pr.rows != nil {
		pr.rows.Close()
	}
	if pr.closer != nil {
		return pr.closer.Close()
	}
	return nil
}

// ColumnNames lists the top-level columns in schema order
func (pr *ParquetReader) ColumnNames() []string {
	fields := pr.file.Schema().Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name()
	}
	return names
}

// NumRows is the number of rows in the file
func (pr *ParquetReader) NumRows() int64 {
	return pr.file.NumRows()
}

// DataTypes maps each column to the PMML dataType its physical type
// reads as
func (pr *ParquetReader) DataTypes() map[string]string {
	out := make(map[string]string)
	for _, f := range pr.file.Schema().Fields() {
		if !f.Leaf() {
			out[f.Name()] = "object"
			continue
		}
		switch f.Type().Kind() {
		case parquet.Boolean:
			out[f.Name()] = "boolean"
		case parquet.Int32, parquet.Int64:
			out[f.Name()] = "integer"
		case parquet.Float:
			out[f.Name()] = "float"
		case parquet.Double:
			out[f.Name()] = "double"
		default:
			out[f.Name()] = "string"
		}
	}
	return out
}

// ReadColumns reads up to limit further rows (all remaining rows when
// limit is 0) and pivots them into one slice per requested column;
// nulls become nil, which ingest treats as MISSING. Columns the file
// lacks are left out of the result. It returns the number of rows read.
func (pr *ParquetReader) ReadColumns(limit int, names []string) (map[string]interface{}, int, error) {
	if len(names) == 0 {
		names = pr.ColumnNames()
	}
	available := map[string]bool{}
	for _, n := range pr.ColumnNames() {
		available[n] = true
	}
	columns := make(map[string][]interface{}, len(names))
	for _, n := range names {
		if available[n] {
			columns[n] = nil
		}
	}

	if pr.rows == nil {
		pr.rows = parquet.NewReader(pr.file)
	}
	count := 0
	for limit == 0 || count < limit {
		row := make(map[string]interface{})
		if err := pr.rows.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, 0, errors.Wrapf(err, "reading row %d of %s", pr.read, pr.path)
		}
		for n := range columns {
			columns[n] = append(columns[n], row[n])
		}
		count++
		pr.read++
	}

	out := make(map[string]interface{}, len(columns))
	for n, values := range columns {
		if values == nil {
			values = []interface{}{}
		}
		out[n] = values
	}
	GetTracer().Debug(TraceComponentInput, "Read parquet batch", TraceContext("file", pr.path, "rows", count, "columns", len(out)))
	return out, count, nil
}
