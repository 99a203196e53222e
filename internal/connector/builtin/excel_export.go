package builtin

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/calder-io/flume/internal/connector"
	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/schema"
	"github.com/calder-io/flume/internal/storage"
)

// ExcelExport writes every input record to one xlsx file in storage: a
// header row followed by one row per record.
type ExcelExport struct {
	connector.Base
	store storage.Storage
}

func NewExcelExport(store storage.Storage) *ExcelExport {
	return &ExcelExport{
		Base: connector.Base{
			ConnID:   "excel_export",
			ConnName: "Excel Export",
			ConnKind: flume.RoleDestination,
			ConnSchema: schema.Object(map[string]*schema.Property{
				"filename": {Type: "string", Description: "Download filename; defaults to a generated export-*.xlsx name"},
				"sheet":    {Type: "string", Default: "Data"},
				"columns":  {Type: "array", Description: "Column order; defaults to the sorted union of record fields"},
			}),
		},
		store: store,
	}
}

func (e *ExcelExport) Execute(ctx context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
	records := gatherRecords(inputs)
	columns := exportColumns(e.Config, records)

	f := excelize.NewFile()
	defer f.Close()

	sheet := e.String("sheet", "Data")
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	for r, record := range records {
		for i, col := range columns {
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, cellValue(record[col])); err != nil {
				return nil, fmt.Errorf("write row %d: %w", r+1, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}

	filename := e.String("filename", "export-"+uuid.New().String()[:8]+".xlsx")
	info, err := e.store.Save(ctx, filename, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf)
	if err != nil {
		return nil, fmt.Errorf("store workbook: %w", err)
	}

	return flume.Receipt(map[string]any{
		"file_id":  info.ID,
		"filename": info.Filename,
		"rows":     len(records),
		"size":     info.Size,
	}), nil
}

// cellValue passes scalars through so numbers stay numbers in the sheet;
// structured values are rendered as text.
func cellValue(v any) any {
	switch v.(type) {
	case nil:
		return ""
	case bool, string, int, int64, float64:
		return v
	default:
		return fmt.Sprint(v)
	}
}
