package models

import (
	"encoding/json"
	"time"
)

// Question input types.
const (
	QuestionTypeText       = "text"
	QuestionTypeTextarea   = "textarea"
	QuestionTypeSelect     = "select"
	QuestionTypeRadio      = "radio"
	QuestionTypeCheckbox   = "checkbox"
	QuestionTypeDate       = "date"
	QuestionTypeNumber     = "number"
	QuestionTypeFileUpload = "file_upload"
)

// ValidQuestionType reports whether t is a supported question input type.
func ValidQuestionType(t string) bool {
	switch t {
	case QuestionTypeText, QuestionTypeTextarea, QuestionTypeSelect, QuestionTypeRadio,
		QuestionTypeCheckbox, QuestionTypeDate, QuestionTypeNumber, QuestionTypeFileUpload:
		return true
	}
	return false
}

// Submission type filters restrict a question to standard or exempt
// protocols; FilterBoth matches every submission.
const (
	FilterStandard = "standard"
	FilterExempt   = "exempt"
	FilterBoth     = "both"
)

// ConditionOperator compares a previously given answer with a stored value.
// Unknown operators evaluate true so a data error can never hide a question.
type ConditionOperator string

const (
	OperatorEquals     ConditionOperator = "equals"
	OperatorNotEquals  ConditionOperator = "not_equals"
	OperatorContains   ConditionOperator = "contains"
	OperatorIsEmpty    ConditionOperator = "is_empty"
	OperatorIsNotEmpty ConditionOperator = "is_not_empty"
)

// ValidOperator reports whether op is accepted when a condition is stored.
// Evaluation is lenient with unknown operators; writes are not.
func ValidOperator(op ConditionOperator) bool {
	switch op {
	case OperatorEquals, OperatorNotEquals, OperatorContains, OperatorIsEmpty, OperatorIsNotEmpty:
		return true
	}
	return false
}

// Section groups questions inside a board's questionnaire.
type Section struct {
	SectionID    int        `gorm:"primaryKey;column:section_id" json:"section_id"`
	BoardID      int        `gorm:"column:board_id" json:"board_id"`
	SectionName  string     `gorm:"column:section_name" json:"section_name"`
	Slug         string     `gorm:"column:slug" json:"slug"`
	DisplayOrder int        `gorm:"column:display_order" json:"display_order"`
	CreateAt     *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt     *time.Time `gorm:"column:update_at" json:"update_at"`

	Questions []Question `gorm:"foreignKey:SectionID" json:"questions,omitempty"`
}

// Question is a single questionnaire item. Visibility is controlled by its
// conditions: the question is shown only when every condition passes against
// the submission's current answers.
type Question struct {
	QuestionID           int        `gorm:"primaryKey;column:question_id" json:"question_id"`
	SectionID            int        `gorm:"column:section_id" json:"section_id"`
	QuestionText         string     `gorm:"column:question_text" json:"question_text"`
	QuestionType         string     `gorm:"column:question_type" json:"question_type"`
	Options              *string    `gorm:"column:options" json:"options,omitempty"`
	IsRequired           bool       `gorm:"column:is_required" json:"is_required"`
	DisplayOrder         int        `gorm:"column:display_order" json:"display_order"`
	IsActive             bool       `gorm:"column:is_active" json:"is_active"`
	SubmissionTypeFilter string     `gorm:"column:submission_type_filter" json:"submission_type_filter"`
	CreateAt             *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt             *time.Time `gorm:"column:update_at" json:"update_at"`
	DeleteAt             *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`

	Conditions []QuestionCondition `gorm:"foreignKey:QuestionID" json:"conditions,omitempty"`
}

// QuestionCondition gates a question's visibility on another question's
// answer. All conditions of a question must pass (AND semantics).
type QuestionCondition struct {
	ConditionID         int               `gorm:"primaryKey;column:condition_id" json:"condition_id"`
	QuestionID          int               `gorm:"column:question_id" json:"question_id"`
	DependsOnQuestionID int               `gorm:"column:depends_on_question_id" json:"depends_on_question_id"`
	Operator            ConditionOperator `gorm:"column:operator" json:"operator"`
	CompareValue        string            `gorm:"column:compare_value" json:"compare_value"`
	CreatedAt           time.Time         `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides
func (Section) TableName() string {
	return "board_sections"
}

func (Question) TableName() string {
	return "board_questions"
}

func (QuestionCondition) TableName() string {
	return "question_conditions"
}

// OptionList decodes the JSON-encoded option labels of a choice question.
// Non-choice questions and malformed payloads yield an empty list.
func (q *Question) OptionList() []string {
	if q.Options == nil || *q.Options == "" {
		return nil
	}
	var opts []string
	if err := json.Unmarshal([]byte(*q.Options), &opts); err != nil {
		return nil
	}
	return opts
}

// SetOptionList stores option labels as their JSON encoding.
func (q *Question) SetOptionList(opts []string) error {
	if len(opts) == 0 {
		q.Options = nil
		return nil
	}
	encoded, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	s := string(encoded)
	q.Options = &s
	return nil
}

// IsChoiceType reports whether the question restricts answers to its options.
func (q *Question) IsChoiceType() bool {
	switch q.QuestionType {
	case QuestionTypeSelect, QuestionTypeRadio, QuestionTypeCheckbox:
		return true
	}
	return false
}

// MatchesSubmissionType reports whether the question applies to a protocol
// of the given submission type.
func (q *Question) MatchesSubmissionType(submissionType string) bool {
	return q.SubmissionTypeFilter == FilterBoth || q.SubmissionTypeFilter == submissionType
}
