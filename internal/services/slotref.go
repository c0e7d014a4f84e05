package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/soaringjerry/surveyhub/internal/models"
)

// SlotRef is the parsed form of a submitted field key. The set of
// implementations is closed; the dispatcher switches over them.
type SlotRef interface {
	slotRef()
}

// OptionSlot selects a choice option (single, multi or rating question).
type OptionSlot struct {
	QuestionID int64
	OptionID   int64
}

// RankingSlot places an option of a ranking question at Position.
type RankingSlot struct {
	QuestionID int64
	OptionID   int64
	Position   int
}

// MatrixCellSlot selects one (row, column) cell of a matrix question.
type MatrixCellSlot struct {
	QuestionID int64
	RowID      int64
	ColumnID   int64
}

// FreeTextSlot carries the answer to a free-text question.
type FreeTextSlot struct {
	QuestionID int64
	Text       string
}

// RatingSlot records a numeric rating against an option.
type RatingSlot struct {
	QuestionID int64
	OptionID   int64
	Value      string
}

// OpenAnswerSlot carries the text typed next to an "other, please specify" option.
type OpenAnswerSlot struct {
	OptionID int64
	Text     string
}

// ExistingFilesDirective lists the file rows of a question the respondent kept.
type ExistingFilesDirective struct {
	QuestionID int64
	KeptIDs    []int64
}

func (OptionSlot) slotRef()             {}
func (RankingSlot) slotRef()            {}
func (MatrixCellSlot) slotRef()         {}
func (FreeTextSlot) slotRef()           {}
func (RatingSlot) slotRef()             {}
func (OpenAnswerSlot) slotRef()         {}
func (ExistingFilesDirective) slotRef() {}

const (
	prefixQuestion      = "question_"
	prefixRating        = "rating_"
	prefixOpenAnswer    = "open_answer_"
	prefixExistingFiles = "existing_files_"
	prefixFile          = "file_"
)

// ParseSlotRef turns a raw field into a SlotRef using the survey's questions to
// disambiguate value shapes. A nil SlotRef with a nil error means the field
// carries nothing to apply (an empty rating, an unticked checkbox).
func ParseSlotRef(field FormField, questions map[int64]*models.Question) (SlotRef, error) {
	key := strings.TrimSpace(field.Key)
	switch {
	case strings.HasPrefix(key, prefixExistingFiles):
		return parseExistingFiles(key, field.Value, questions)
	case strings.HasPrefix(key, prefixOpenAnswer):
		oid, err := parseID(strings.TrimPrefix(key, prefixOpenAnswer))
		if err != nil {
			return nil, NewInvalidError("malformed open answer key")
		}
		return OpenAnswerSlot{OptionID: oid, Text: field.Value}, nil
	case strings.HasPrefix(key, prefixRating):
		return parseRating(key, field.Value, questions)
	case strings.HasPrefix(key, prefixQuestion):
		return parseQuestionField(key, field.Value, questions)
	}
	return nil, NewInvalidError(fmt.Sprintf("unrecognised field %q", key))
}

func parseQuestionField(key, value string, questions map[int64]*models.Question) (SlotRef, error) {
	parts := strings.Split(strings.TrimPrefix(key, prefixQuestion), "_")
	qid, err := parseID(parts[0])
	if err != nil {
		return nil, NewInvalidError("malformed question id")
	}
	q, ok := questions[qid]
	if !ok {
		return nil, NewUnknownSlotError(fmt.Sprintf("question %d is not part of this survey", qid))
	}

	switch {
	case len(parts) == 1:
		return parseBareQuestion(q, value)
	case len(parts) == 3 && parts[1] == "option":
		oid, err := parseID(parts[2])
		if err != nil {
			return nil, NewInvalidError("malformed option id")
		}
		return parseOptionValue(q, oid, value)
	case len(parts) == 5 && parts[1] == "row" && parts[3] == "col":
		if !q.Type.IsMatrix() {
			return nil, NewInvalidError(fmt.Sprintf("question %d is not a matrix", qid))
		}
		row, err1 := parseID(parts[2])
		col, err2 := parseID(parts[4])
		if err1 != nil || err2 != nil {
			return nil, NewInvalidError("malformed matrix cell")
		}
		return MatrixCellSlot{QuestionID: qid, RowID: row, ColumnID: col}, nil
	case len(parts) == 3 && parts[1] == "row":
		// radio matrices post the chosen column as the value
		if !q.Type.IsMatrix() {
			return nil, NewInvalidError(fmt.Sprintf("question %d is not a matrix", qid))
		}
		row, err := parseID(parts[2])
		if err != nil {
			return nil, NewInvalidError("malformed matrix row")
		}
		if strings.TrimSpace(value) == "" {
			return nil, nil
		}
		col, err := parseID(value)
		if err != nil {
			return nil, NewInvalidError("matrix column must be an option id")
		}
		return MatrixCellSlot{QuestionID: qid, RowID: row, ColumnID: col}, nil
	}
	return nil, NewInvalidError(fmt.Sprintf("unrecognised field %q", key))
}

func parseBareQuestion(q *models.Question, value string) (SlotRef, error) {
	switch q.Type {
	case models.QuestionFreeText:
		return FreeTextSlot{QuestionID: q.ID, Text: value}, nil
	case models.QuestionSingleChoice, models.QuestionMultiChoice:
		if strings.TrimSpace(value) == "" {
			return nil, nil
		}
		oid, err := parseID(value)
		if err != nil {
			return nil, NewInvalidError("choice value must be an option id")
		}
		return OptionSlot{QuestionID: q.ID, OptionID: oid}, nil
	}
	return nil, NewInvalidError(fmt.Sprintf("question %d does not accept a bare value", q.ID))
}

func parseOptionValue(q *models.Question, oid int64, value string) (SlotRef, error) {
	v := strings.TrimSpace(value)
	if q.Type == models.QuestionRanking {
		if v == "" {
			return nil, nil
		}
		pos, err := strconv.Atoi(v)
		if err != nil || pos < 0 {
			return nil, NewInvalidError("ranking position must be a non-negative integer")
		}
		return RankingSlot{QuestionID: q.ID, OptionID: oid, Position: pos}, nil
	}
	switch q.Type {
	case models.QuestionSingleChoice, models.QuestionMultiChoice, models.QuestionRating:
	default:
		return nil, NewInvalidError(fmt.Sprintf("question %d has no selectable options", q.ID))
	}
	switch strings.ToLower(v) {
	case "on", "true", strconv.FormatInt(oid, 10):
		return OptionSlot{QuestionID: q.ID, OptionID: oid}, nil
	case "", "off", "false":
		return nil, nil
	}
	return nil, NewInvalidError("option value must be \"on\"")
}

func parseRating(key, value string, questions map[int64]*models.Question) (SlotRef, error) {
	parts := strings.Split(strings.TrimPrefix(key, prefixRating), "_")
	if len(parts) != 2 {
		return nil, NewInvalidError("malformed rating key")
	}
	qid, err1 := parseID(parts[0])
	oid, err2 := parseID(parts[1])
	if err1 != nil || err2 != nil {
		return nil, NewInvalidError("malformed rating key")
	}
	q, ok := questions[qid]
	if !ok {
		return nil, NewUnknownSlotError(fmt.Sprintf("question %d is not part of this survey", qid))
	}
	if q.Type != models.QuestionRating {
		return nil, NewInvalidError(fmt.Sprintf("question %d is not a rating question", qid))
	}
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, nil
	}
	if _, err := strconv.ParseFloat(v, 64); err != nil {
		return nil, NewInvalidError("rating must be numeric")
	}
	return RatingSlot{QuestionID: qid, OptionID: oid, Value: v}, nil
}

func parseExistingFiles(key, value string, questions map[int64]*models.Question) (SlotRef, error) {
	qid, err := parseID(strings.TrimPrefix(key, prefixExistingFiles))
	if err != nil {
		return nil, NewInvalidError("malformed existing files key")
	}
	q, ok := questions[qid]
	if !ok {
		return nil, NewUnknownSlotError(fmt.Sprintf("question %d is not part of this survey", qid))
	}
	if q.Type != models.QuestionFileUpload {
		return nil, NewInvalidError(fmt.Sprintf("question %d does not accept files", qid))
	}
	kept, err := parseIDList(value)
	if err != nil {
		return nil, NewInvalidError("existing files must be a comma separated id list")
	}
	return ExistingFilesDirective{QuestionID: qid, KeptIDs: kept}, nil
}

// FileQuestionID extracts the question id from an upload field name
// ("file_<qid>" or "question_<qid>").
func FileQuestionID(field string) (int64, error) {
	switch {
	case strings.HasPrefix(field, prefixFile):
		return parseID(strings.TrimPrefix(field, prefixFile))
	case strings.HasPrefix(field, prefixQuestion):
		return parseID(strings.TrimPrefix(field, prefixQuestion))
	}
	return 0, fmt.Errorf("unrecognised upload field %q", field)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("id must be positive: %d", id)
	}
	return id, nil
}

func parseIDList(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		id, err := parseID(p)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
