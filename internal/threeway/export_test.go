package threeway

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportExceptionsWritesWorkbook(t *testing.T) {
	f := newFixture(t)
	exc := f.match(t, 20).Exception

	export, err := f.svc.ExportExceptions(context.Background(), ExceptionFilter{CompanyID: 1}, &Tolerance{Pct: dec("5"), Abs: dec("0")})
	require.NoError(t, err)
	require.False(t, export.Truncated())

	book, err := excelize.OpenReader(bytes.NewReader(export.Data))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "ID", rows[0][0])
	require.Equal(t, "PO-10", rows[1][2])
	require.Equal(t, "BILL-20", rows[1][3])
	require.Equal(t, "Acme Supplies", rows[1][4])
	require.Equal(t, string(exc.Status), rows[1][9])
	require.Equal(t, "true", rows[1][12])
}

func TestExportExceptionsEmpty(t *testing.T) {
	f := newFixture(t)
	export, err := f.svc.ExportExceptions(context.Background(), ExceptionFilter{}, nil)
	require.NoError(t, err)
	require.Zero(t, export.Total)

	book, err := excelize.OpenReader(bytes.NewReader(export.Data))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestExportExceptionsReportsTruncation(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.ExportMaxRows = 1
	f.setBill(21, "10400")
	f.match(t, 20)
	latest := f.match(t, 21).Exception

	export, err := f.svc.ExportExceptions(context.Background(), ExceptionFilter{CompanyID: 1}, nil)
	require.NoError(t, err)
	require.True(t, export.Truncated())
	require.Equal(t, 1, export.Rows)
	require.Equal(t, 2, export.Total)

	book, err := excelize.OpenReader(bytes.NewReader(export.Data))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "BILL-21", rows[1][3])
	require.Equal(t, latest.PONumber, rows[1][2])
}
