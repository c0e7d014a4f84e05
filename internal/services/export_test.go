package services

import (
	"strings"
	"testing"
)

func TestWideValue(t *testing.T) {
	cases := []struct {
		row  LongRow
		want string
	}{
		{LongRow{FilePath: "/uploads/a.pdf", Data: "a.pdf"}, "/uploads/a.pdf"},
		{LongRow{RowID: 3, ColumnID: 4}, "3:4"},
		{LongRow{OptionID: 5, Data: "2"}, "5=2"},
		{LongRow{OptionID: 6, SortOrder: 3}, "6#3"},
		{LongRow{OptionID: 5}, "5"},
		{LongRow{Data: "free text"}, "free text"},
	}
	for _, tc := range cases {
		if got := wideValue(tc.row); got != tc.want {
			t.Fatalf("wideValue(%+v) = %q, want %q", tc.row, got, tc.want)
		}
	}
}

func TestExportWideCSVJoinsMultipleAnswers(t *testing.T) {
	rows := []LongRow{
		{UserID: 2, Username: "ben", QuestionID: 1, OptionID: 11},
		{UserID: 2, Username: "ben", QuestionID: 1, OptionID: 12},
		{UserID: 1, Username: "ann", QuestionID: 2, Data: "hello, world"},
	}
	out, err := ExportWideCSV(rows)
	if err != nil {
		t.Fatalf("ExportWideCSV: %v", err)
	}
	want := "user_id,username,q1,q2\n1,ann,,\"hello, world\"\n2,ben,11 | 12,\n"
	if string(out) != want {
		t.Fatalf("wide csv =\n%s\nwant\n%s", out, want)
	}
	long, err := ExportLongCSV(nil)
	if err != nil {
		t.Fatalf("ExportLongCSV: %v", err)
	}
	if !strings.HasPrefix(string(long), "user_id,username,question_id") {
		t.Fatalf("long header = %q", long)
	}
}
