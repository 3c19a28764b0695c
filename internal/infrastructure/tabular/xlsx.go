package tabular

import (
	"bytes"
	"fmt"

	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/xuri/excelize/v2"
)

const voucherSheet = "vouchers"

var xlsxHeaders = []string{
	"Voucher No", "Date", "Account", "Debit", "Credit", "Counterpart", "Memo", "Document",
}

// XLSXWriter writes records as a single-sheet Excel workbook
type XLSXWriter struct{}

// NewXLSXWriter creates an XLSX writer
func NewXLSXWriter() *XLSXWriter {
	return &XLSXWriter{}
}

// Ensure XLSXWriter implements export.TableWriter
var _ export.TableWriter = (*XLSXWriter)(nil)

// Format returns the export format
func (w *XLSXWriter) Format() export.Format { return export.FormatXLSX }

// ContentType returns the MIME type of the produced file
func (w *XLSXWriter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension returns the file extension without the dot
func (w *XLSXWriter) Extension() string { return "xlsx" }

// Write serializes the records. Amounts are written as numbers with two decimals.
func (w *XLSXWriter) Write(records []export.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", voucherSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(voucherSheet)
	if err != nil {
		return nil, fmt.Errorf("open stream writer: %w", err)
	}

	header := make([]any, len(xlsxHeaders))
	for i, h := range xlsxHeaders {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}
	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		debit, _ := r.Debit.Round(2).Float64()
		credit, _ := r.Credit.Round(2).Float64()
		row := []any{
			r.VoucherNo,
			excelize.Cell{StyleID: dateStyle, Value: r.Date},
			r.AccountCode,
			excelize.Cell{StyleID: amountStyle, Value: debit},
			excelize.Cell{StyleID: amountStyle, Value: credit},
			r.CounterpartLabel,
			r.Memo,
			r.DocumentRef,
		}
		if err := sw.SetRow(cell, row); err != nil {
			return nil, fmt.Errorf("write record %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("flush sheet: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
