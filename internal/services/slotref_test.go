package services

import (
	"reflect"
	"testing"

	"github.com/soaringjerry/surveyhub/internal/models"
)

func slotQuestions() map[int64]*models.Question {
	return map[int64]*models.Question{
		1: {ID: 1, Type: models.QuestionSingleChoice},
		2: {ID: 2, Type: models.QuestionRanking},
		3: {ID: 3, Type: models.QuestionMatrixMulti},
		4: {ID: 4, Type: models.QuestionFreeText},
		5: {ID: 5, Type: models.QuestionRating},
		6: {ID: 6, Type: models.QuestionFileUpload},
	}
}

func TestParseSlotRefVariants(t *testing.T) {
	qs := slotQuestions()
	cases := []struct {
		key, value string
		want       SlotRef
	}{
		{"question_1_option_10", "on", OptionSlot{QuestionID: 1, OptionID: 10}},
		{"question_1_option_10", "10", OptionSlot{QuestionID: 1, OptionID: 10}},
		{"question_1", "11", OptionSlot{QuestionID: 1, OptionID: 11}},
		{"question_2_option_20", "3", RankingSlot{QuestionID: 2, OptionID: 20, Position: 3}},
		{"question_3_row_30_col_31", "on", MatrixCellSlot{QuestionID: 3, RowID: 30, ColumnID: 31}},
		{"question_3_row_30", "32", MatrixCellSlot{QuestionID: 3, RowID: 30, ColumnID: 32}},
		{"question_4", "hello", FreeTextSlot{QuestionID: 4, Text: "hello"}},
		{"rating_5_50", "4.5", RatingSlot{QuestionID: 5, OptionID: 50, Value: "4.5"}},
		{"open_answer_70", "other", OpenAnswerSlot{OptionID: 70, Text: "other"}},
		{"existing_files_6", "8, 9", ExistingFilesDirective{QuestionID: 6, KeptIDs: []int64{8, 9}}},
		{"existing_files_6", "", ExistingFilesDirective{QuestionID: 6}},
	}
	for _, tc := range cases {
		got, err := ParseSlotRef(FormField{Key: tc.key, Value: tc.value}, qs)
		if err != nil {
			t.Fatalf("%s=%q: unexpected error %v", tc.key, tc.value, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s=%q: got %#v, want %#v", tc.key, tc.value, got, tc.want)
		}
	}
}

func TestParseSlotRefSkipsEmptyValues(t *testing.T) {
	qs := slotQuestions()
	for _, f := range []FormField{
		{Key: "rating_5_50", Value: ""},
		{Key: "question_1_option_10", Value: ""},
		{Key: "question_2_option_20", Value: " "},
		{Key: "question_3_row_30", Value: ""},
	} {
		got, err := ParseSlotRef(f, qs)
		if err != nil || got != nil {
			t.Fatalf("%s: got (%v, %v), want (nil, nil)", f.Key, got, err)
		}
	}
}

func TestParseSlotRefRejects(t *testing.T) {
	qs := slotQuestions()
	cases := []struct {
		key, value string
		code       ErrorCode
	}{
		{"answer_1", "x", ErrorInvalid},
		{"question_x", "x", ErrorInvalid},
		{"question_99_option_1", "on", ErrorUnknownSlot},
		{"question_1_option_10", "maybe", ErrorInvalid},
		{"question_2_option_20", "first", ErrorInvalid},
		{"question_1_row_1_col_2", "on", ErrorInvalid},
		{"question_5", "3", ErrorInvalid},
		{"rating_1_10", "3", ErrorInvalid},
		{"rating_5_50", "great", ErrorInvalid},
		{"rating_5", "3", ErrorInvalid},
		{"existing_files_6", "1,abc", ErrorInvalid},
		{"existing_files_4", "1", ErrorInvalid},
		{"open_answer_", "x", ErrorInvalid},
		{"question_1_option_-3", "on", ErrorInvalid},
	}
	for _, tc := range cases {
		_, err := ParseSlotRef(FormField{Key: tc.key, Value: tc.value}, qs)
		if !HasCode(err, tc.code) {
			t.Fatalf("%s=%q: got %v, want code %s", tc.key, tc.value, err, tc.code)
		}
	}
}

func TestFileQuestionID(t *testing.T) {
	for field, want := range map[string]int64{"file_12": 12, "question_7": 7} {
		got, err := FileQuestionID(field)
		if err != nil || got != want {
			t.Fatalf("%s: got (%d, %v), want %d", field, got, err, want)
		}
	}
	if _, err := FileQuestionID("attachment"); err == nil {
		t.Fatalf("expected error for unknown upload field")
	}
}
