package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LongRow is one valid answer row joined with its respondent.
type LongRow struct {
	UserID      int64
	Username    string
	QuestionID  int64
	OptionID    int64
	RowID       int64
	ColumnID    int64
	Data        string
	SortOrder   int
	FilePath    string
	SubmittedAt string // RFC3339
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportLongCSV renders rows into a long-format CSV.
func ExportLongCSV(rows []LongRow) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"user_id", "username", "question_id", "option_id", "row_id", "column_id", "response_data", "sort_order", "file_path", "submitted_at"})
	for _, r := range rows {
		rec := []string{
			itoa64(r.UserID),
			r.Username,
			itoa64(r.QuestionID),
			itoa64(r.OptionID),
			itoa64(r.RowID),
			itoa64(r.ColumnID),
			r.Data,
			itoa(r.SortOrder),
			r.FilePath,
			r.SubmittedAt,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportWideCSV renders one line per respondent and one column per question.
// Multiple answers to a question are joined with " | ".
func ExportWideCSV(rows []LongRow) ([]byte, error) {
	type respondent struct {
		id   int64
		name string
	}
	cells := map[int64]map[int64][]string{}
	people := map[int64]respondent{}
	qset := map[int64]struct{}{}
	for _, r := range rows {
		if cells[r.UserID] == nil {
			cells[r.UserID] = map[int64][]string{}
		}
		people[r.UserID] = respondent{id: r.UserID, name: r.Username}
		qset[r.QuestionID] = struct{}{}
		cells[r.UserID][r.QuestionID] = append(cells[r.UserID][r.QuestionID], wideValue(r))
	}
	qids := make([]int64, 0, len(qset))
	for id := range qset {
		qids = append(qids, id)
	}
	sort.Slice(qids, func(i, j int) bool { return qids[i] < qids[j] })
	uids := make([]int64, 0, len(people))
	for id := range people {
		uids = append(uids, id)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := []string{"user_id", "username"}
	for _, q := range qids {
		header = append(header, "q"+itoa64(q))
	}
	_ = w.Write(header)
	for _, uid := range uids {
		rec := []string{itoa64(uid), people[uid].name}
		for _, q := range qids {
			rec = append(rec, strings.Join(cells[uid][q], " | "))
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func wideValue(r LongRow) string {
	switch {
	case r.FilePath != "":
		return r.FilePath
	case r.RowID != 0:
		return fmt.Sprintf("%d:%d", r.RowID, r.ColumnID)
	case r.OptionID != 0 && r.SortOrder > 0:
		return fmt.Sprintf("%d#%d", r.OptionID, r.SortOrder)
	case r.OptionID != 0 && r.Data != "":
		return fmt.Sprintf("%d=%s", r.OptionID, r.Data)
	case r.OptionID != 0:
		return itoa64(r.OptionID)
	}
	return r.Data
}

// ExportUnfinishedXLSX renders the unfinished-respondent list as a workbook.
func ExportUnfinishedXLSX(users []*UnfinishedUser) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Unfinished"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheet, "A1", &[]any{"Username", "Name", "Department", "Status"}); err != nil {
		return nil, err
	}
	for i, u := range users {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []any{u.Username, u.DisplayName, u.DepartmentName, string(u.Status)}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(sheet, "A", "D", 20); err != nil {
		return nil, err
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func itoa(i int) string { return strconv.Itoa(i) }

func itoa64(i int64) string { return strconv.FormatInt(i, 10) }
