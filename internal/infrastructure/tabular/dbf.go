// Package tabular serializes voucher records into the files accounting
// software imports: dBase tables and Excel workbooks.
package tabular

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/Valentin-Kaiser/go-dbase/dbase"
	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// dbfField is one column of the voucher table
type dbfField struct {
	name     string
	kind     dbase.DataType
	length   uint8
	decimals uint8
	value    func(r export.Record) any
}

// voucherFields is the column layout of the voucher table
var voucherFields = []dbfField{
	{name: "PZH", kind: dbase.Numeric, length: 8, value: func(r export.Record) any { return r.VoucherNo }},
	{name: "RQ", kind: dbase.Date, length: 8, value: func(r export.Record) any { return r.Date }},
	{name: "KMDM", kind: dbase.Character, length: 20, value: func(r export.Record) any { return r.AccountCode }},
	{name: "JFJE", kind: dbase.Numeric, length: 18, decimals: 2, value: func(r export.Record) any { return r.Debit }},
	{name: "DFJE", kind: dbase.Numeric, length: 18, decimals: 2, value: func(r export.Record) any { return r.Credit }},
	{name: "DWMC", kind: dbase.Character, length: 60, value: func(r export.Record) any { return r.CounterpartLabel }},
	{name: "ZY", kind: dbase.Character, length: 120, value: func(r export.Record) any { return r.Memo }},
	{name: "DJH", kind: dbase.Character, length: 40, value: func(r export.Record) any { return r.DocumentRef }},
}

// dbfMemoBlockSize is only used if a memo column is ever added
const dbfMemoBlockSize = 64

// DBFWriter writes records as a FoxPro dBase table with GBK encoded text.
// Characters GBK cannot represent are replaced rather than failing the file.
type DBFWriter struct{}

// NewDBFWriter creates a DBF writer
func NewDBFWriter() *DBFWriter {
	return &DBFWriter{}
}

// Ensure DBFWriter implements export.TableWriter
var _ export.TableWriter = (*DBFWriter)(nil)

// Format returns the export format
func (w *DBFWriter) Format() export.Format { return export.FormatDBF }

// ContentType returns the MIME type of the produced file
func (w *DBFWriter) ContentType() string { return "application/dbase" }

// Extension returns the file extension without the dot
func (w *DBFWriter) Extension() string { return "dbf" }

// Write serializes the records. An empty slice produces a valid table with no rows.
// The table is built in a scratch directory and read back.
func (w *DBFWriter) Write(records []export.Record) ([]byte, error) {
	dir, err := os.MkdirTemp("", "voucher-dbf-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "VOUCHER.DBF")
	if err := writeTable(path, records); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func writeTable(path string, records []export.Record) error {
	columns, err := voucherColumns()
	if err != nil {
		return err
	}

	table, err := dbase.NewTable(
		dbase.FoxPro,
		&dbase.Config{
			Filename:  path,
			Converter: dbase.NewDefaultConverter(simplifiedchinese.GBK),
		},
		columns,
		dbfMemoBlockSize,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create dbf table: %w", err)
	}

	// encoders keep state, so each file gets its own
	encoder := simplifiedchinese.GBK.NewEncoder()
	for i, r := range records {
		values, err := rowValues(encoder, r)
		if err != nil {
			_ = table.Close()
			return fmt.Errorf("record %d: %w", i+1, err)
		}
		row, err := table.RowFromMap(values)
		if err != nil {
			_ = table.Close()
			return fmt.Errorf("record %d: %w", i+1, err)
		}
		if err := row.Add(); err != nil {
			_ = table.Close()
			return fmt.Errorf("record %d: failed to write row: %w", i+1, err)
		}
	}
	if err := table.Close(); err != nil {
		return fmt.Errorf("failed to close dbf table: %w", err)
	}
	return nil
}

func voucherColumns() ([]*dbase.Column, error) {
	columns := make([]*dbase.Column, 0, len(voucherFields))
	for _, f := range voucherFields {
		col, err := dbase.NewColumn(f.name, f.kind, f.length, f.decimals, false)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.name, err)
		}
		columns = append(columns, col)
	}
	return columns, nil
}

func rowValues(encoder *encoding.Encoder, r export.Record) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(voucherFields))
	for _, f := range voucherFields {
		v, err := cellValue(encoder, f, f.value(r))
		if err != nil {
			return nil, err
		}
		values[f.name] = v
	}
	return values, nil
}

// cellValue converts a record value to what the table stores for the column
func cellValue(encoder *encoding.Encoder, f dbfField, v any) (any, error) {
	switch f.kind {
	case dbase.Character:
		s, _ := v.(string)
		return fitText(encoder, s, int(f.length)), nil
	case dbase.Date:
		t, _ := v.(time.Time)
		return t, nil
	case dbase.Numeric:
		switch n := v.(type) {
		case int:
			if len(fmt.Sprintf("%d", n)) > int(f.length) {
				return nil, fmt.Errorf("field %s: value %d exceeds %d digits", f.name, n, f.length)
			}
			return int64(n), nil
		case decimal.Decimal:
			s := n.StringFixed(int32(f.decimals))
			if len(s) > int(f.length) {
				return nil, fmt.Errorf("field %s: value %s exceeds %d digits", f.name, s, f.length)
			}
			return n.Round(int32(f.decimals)).InexactFloat64(), nil
		default:
			return nil, fmt.Errorf("field %s: unsupported numeric value %T", f.name, v)
		}
	default:
		return nil, fmt.Errorf("field %s: unsupported type %v", f.name, f.kind)
	}
}

// fitText returns the longest prefix of s whose GBK form fits in width bytes,
// never splitting a double-byte character. Runes GBK cannot encode become '?'.
func fitText(encoder *encoding.Encoder, s string, width int) string {
	out := make([]rune, 0, len(s))
	size := 0
	for _, r := range s {
		if r == utf8.RuneError {
			continue
		}
		n := 1
		if enc, err := encoder.Bytes([]byte(string(r))); err == nil {
			n = len(enc)
		} else {
			r = '?'
		}
		if size+n > width {
			break
		}
		out = append(out, r)
		size += n
	}
	return string(out)
}
