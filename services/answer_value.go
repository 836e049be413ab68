package services

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"irb-review-api/models"
)

const dateAnswerLayout = "2006-01-02"

// AnswerValue is the typed form of a stored answer. Answers travel as
// plain strings at the storage and HTTP boundaries; ParseAnswer validates
// the string against the question's declared type and StorageString
// converts back.
type AnswerValue interface {
	StorageString() string
	isAnswerValue()
}

// TextValue holds free-text and single-choice answers.
type TextValue string

func (v TextValue) StorageString() string { return string(v) }
func (TextValue) isAnswerValue()          {}

// NumberValue holds answers to number questions.
type NumberValue float64

func (v NumberValue) StorageString() string {
	return strconv.FormatFloat(float64(v), 'f', -1, 64)
}
func (NumberValue) isAnswerValue() {}

// DateValue holds answers to date questions, date precision only.
type DateValue time.Time

func (v DateValue) StorageString() string {
	return time.Time(v).Format(dateAnswerLayout)
}
func (DateValue) isAnswerValue() {}

// MultiSelectValue holds checkbox answers. Stored as a JSON string array.
type MultiSelectValue []string

func (v MultiSelectValue) StorageString() string {
	if len(v) == 0 {
		return ""
	}
	encoded, err := json.Marshal([]string(v))
	if err != nil {
		return ""
	}
	return string(encoded)
}
func (MultiSelectValue) isAnswerValue() {}

// ParseAnswer validates raw against the question's declared type and
// returns the typed value. An empty raw clears the answer and is always
// accepted; required-ness is enforced by the submit guard, not here.
func ParseAnswer(q models.Question, raw string) (AnswerValue, error) {
	if strings.TrimSpace(raw) == "" {
		return TextValue(""), nil
	}

	switch q.QuestionType {
	case models.QuestionTypeNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, &ValidationError{QuestionID: q.QuestionID, Message: "answer must be a number"}
		}
		return NumberValue(n), nil

	case models.QuestionTypeDate:
		t, err := time.Parse(dateAnswerLayout, strings.TrimSpace(raw))
		if err != nil {
			return nil, &ValidationError{QuestionID: q.QuestionID, Message: "answer must be a date in YYYY-MM-DD format"}
		}
		return DateValue(t), nil

	case models.QuestionTypeCheckbox:
		selected, err := parseMultiSelect(raw)
		if err != nil {
			return nil, &ValidationError{QuestionID: q.QuestionID, Message: "answer must be a list of selected options"}
		}
		if opts := q.OptionList(); len(opts) > 0 {
			for _, s := range selected {
				if !containsString(opts, s) {
					return nil, &ValidationError{QuestionID: q.QuestionID, Message: "selection " + strconv.Quote(s) + " is not one of the question's options"}
				}
			}
		}
		return MultiSelectValue(selected), nil

	case models.QuestionTypeSelect, models.QuestionTypeRadio:
		if opts := q.OptionList(); len(opts) > 0 && !containsString(opts, raw) {
			return nil, &ValidationError{QuestionID: q.QuestionID, Message: "answer is not one of the question's options"}
		}
		return TextValue(raw), nil

	default:
		// text, textarea and file_upload captions stay free-form.
		return TextValue(raw), nil
	}
}

// parseMultiSelect accepts either a JSON string array or a comma
// separated list, the two shapes clients send for checkbox questions.
func parseMultiSelect(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var selected []string
		if err := json.Unmarshal([]byte(trimmed), &selected); err != nil {
			return nil, err
		}
		return selected, nil
	}
	parts := strings.Split(trimmed, ",")
	selected := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			selected = append(selected, s)
		}
	}
	return selected, nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
