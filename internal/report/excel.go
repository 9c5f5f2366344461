// Package report builds the daily inspection spreadsheet
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"inspection/internal/catalog"
	"inspection/internal/models"
	"inspection/internal/storage"
)

const (
	SummarySheet = "Resumo"
	RecordsSheet = "Registros"

	notRegistered = "❌ Não registrada"
)

var (
	summaryHeaders = []string{"Corredor", "Sala", "Chegada", "Saída"}
	recordHeaders  = []string{"Corredor", "Sala", "Data", "Tipo", "Hora", "Inspetor", "ID Inspetor", "Foto"}
)

// Build creates a workbook for date.
// The summary sheet lists every catalog room with its arrival and departure status;
// the records sheet lists the stored records as they are.
func Build(cat *catalog.Catalog, date string, records []models.Record, loc *time.Location) (*excelize.File, error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(RecordsSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}
	for sheet, headers := range map[string][]string{SummarySheet: summaryHeaders, RecordsSheet: recordHeaders} {
		if err := writeRow(f, sheet, 1, headers); err != nil {
			return nil, err
		}
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to style header: %w", err)
		}
	}

	byKey := make(map[models.Key]models.Slots)
	for i := range records {
		k := records[i].Key()
		slots := byKey[k]
		slots.Set(&records[i])
		byKey[k] = slots
	}

	row := 2
	for _, corridor := range cat.Corridors() {
		rooms, _ := cat.RoomsFor(corridor)
		for _, room := range rooms {
			slots := byKey[models.Key{Corridor: corridor, Room: room, Date: date}]
			values := []any{corridor, room, status(slots.Arrival, loc), status(slots.Departure, loc)}
			if err := writeRow(f, SummarySheet, row, values); err != nil {
				return nil, err
			}
			row++
		}
	}

	sorted := make([]models.Record, len(records))
	copy(sorted, records)
	storage.SortRecords(sorted)

	for i, rec := range sorted {
		values := []any{
			rec.Corridor,
			rec.Room,
			rec.Date,
			rec.Type.Label(),
			rec.CommittedAt.In(loc).Format("15:04:05"),
			rec.SubmittedBy.Name,
			rec.SubmittedBy.ID,
			rec.PhotoFileID,
		}
		if err := writeRow(f, RecordsSheet, i+2, values); err != nil {
			return nil, err
		}
	}

	_ = f.SetColWidth(SummarySheet, "A", "A", 22)
	_ = f.SetColWidth(SummarySheet, "C", "D", 30)
	_ = f.SetColWidth(RecordsSheet, "A", "A", 22)
	_ = f.SetColWidth(RecordsSheet, "H", "H", 40)

	return f, nil
}

// Write builds the report of date from the store and writes the xlsx to w
func Write(ctx context.Context, w io.Writer, store storage.Storage, cat *catalog.Catalog, date string, loc *time.Location) error {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return fmt.Errorf("invalid report date %q: %w", date, err)
	}

	records, err := store.ListByDate(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	f, err := Build(cat, date, records, loc)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Filename returns the attachment name of the report of date
func Filename(date string) string {
	return fmt.Sprintf("inspecoes_%s.xlsx", date)
}

func status(rec *models.Record, loc *time.Location) string {
	if rec == nil {
		return notRegistered
	}
	return fmt.Sprintf("✅ %s (%s)", rec.CommittedAt.In(loc).Format("15:04"), rec.SubmittedBy.Name)
}

func writeRow[T any](f *excelize.File, sheet string, row int, values []T) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to compute cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
