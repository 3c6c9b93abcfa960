package reconcile

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

type ReportFormat string

const (
	ReportCSV  ReportFormat = "csv"
	ReportXLSX ReportFormat = "xlsx"
)

func ParseReportFormat(raw string) (ReportFormat, error) {
	switch ReportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ReportCSV:
		return ReportCSV, nil
	case ReportXLSX:
		return ReportXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidReportFormat, raw)
}

func (f ReportFormat) ContentType() string {
	if f == ReportXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

var reportHeader = []string{"row", "action", "email", "username", "status", "before", "after", "error"}

func reportRecord(item domain.PreviewItem) []string {
	return []string{
		strconv.Itoa(item.Row),
		item.Action,
		item.Email,
		item.Username,
		string(item.Status),
		item.Before,
		item.After,
		item.Error,
	}
}

// WritePreviewReport writes the full item list as CSV.
func WritePreviewReport(w io.Writer, items []domain.PreviewItem) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return err
	}
	for _, item := range items {
		if err := cw.Write(reportRecord(item)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const reportSheet = "Sheet1"

// WritePreviewReportXLSX renders the same report as a single-sheet workbook.
func WritePreviewReportXLSX(w io.Writer, items []domain.PreviewItem) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := setSheetRow(f, 1, reportHeader); err != nil {
		return err
	}
	for i, item := range items {
		if err := setSheetRow(f, i+2, reportRecord(item)); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(reportSheet, "F", "G", 60); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("render workbook: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func setSheetRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(reportSheet, cell, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func writeReport(w io.Writer, format ReportFormat, items []domain.PreviewItem) error {
	if format == ReportXLSX {
		return WritePreviewReportXLSX(w, items)
	}
	return WritePreviewReport(w, items)
}
