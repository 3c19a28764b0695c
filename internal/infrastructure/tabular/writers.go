package tabular

import "github.com/erp/voucher-export/internal/domain/export"

// Writers returns a writer for every supported export format
func Writers() []export.TableWriter {
	return []export.TableWriter{NewDBFWriter(), NewXLSXWriter()}
}
