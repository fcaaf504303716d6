package threeway

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/threeway/internal/shared"
)

const (
	exportSheet   = "Exceptions"
	exportMaxRows = 10000
)

var exportHeader = []interface{}{
	"ID", "Company", "PO", "Bill", "Vendor", "PO Total", "Bill Total", "Diff", "Pct Diff",
	"Status", "Reason", "Updated At", "What-if Matched",
}

// Export is a rendered workbook. Total counts every matching exception, so
// Total > Rows means the workbook was cut at the row cap.
type Export struct {
	Data  []byte
	Rows  int
	Total int
}

// Truncated reports whether matching exceptions were left out.
func (e Export) Truncated() bool {
	return e.Total > e.Rows
}

// ExportExceptions renders the exceptions matching the filter, newest first,
// as an XLSX workbook of at most ExportMaxRows rows.
func (s *Service) ExportExceptions(ctx context.Context, filter ExceptionFilter, override *Tolerance) (Export, error) {
	if err := filter.Validate(); err != nil {
		return Export{}, err
	}
	if override != nil {
		if err := override.Validate(); err != nil {
			return Export{}, err
		}
	}
	var (
		views []ExceptionView
		total int
	)
	for len(views) < s.cfg.ExportMaxRows {
		limit := min(shared.MaxPageSize, s.cfg.ExportMaxRows-len(views))
		rows, n, err := s.repo.ListExceptions(ctx, filter, limit, len(views))
		if err != nil {
			return Export{}, err
		}
		total = n
		views = append(views, annotate(rows, override)...)
		if len(rows) < limit || len(views) >= total {
			break
		}
	}
	data, err := renderWorkbook(views)
	if err != nil {
		return Export{}, err
	}
	out := Export{Data: data, Rows: len(views), Total: total}
	if out.Truncated() {
		s.logger.Warn("exception export truncated",
			slog.Int("rows", out.Rows),
			slog.Int("total", out.Total),
			slog.Int64("company_id", filter.CompanyID),
		)
	}
	return out, nil
}

func renderWorkbook(views []ExceptionView) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("threeway: export sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return nil, fmt.Errorf("threeway: export header: %w", err)
	}
	for i, v := range views {
		whatIf := ""
		if v.WhatIf != nil {
			whatIf = fmt.Sprintf("%t", v.WhatIf.Matched)
		}
		row := []interface{}{
			v.ID, v.CompanyID, v.PONumber, v.BillNumber, v.VendorName,
			v.POTotal.InexactFloat64(), v.BillTotal.InexactFloat64(), v.Diff.InexactFloat64(), v.PctDiff.InexactFloat64(),
			string(v.Status), v.ReasonCode, v.UpdatedAt.UTC().Format(time.RFC3339), whatIf,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("threeway: export row %d: %w", i+2, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("threeway: write workbook: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}
