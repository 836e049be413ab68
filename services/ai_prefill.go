package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"irb-review-api/config"
	"irb-review-api/models"

	"gorm.io/gorm"
)

const (
	maxProtocolBytes    = 100_000
	prefillAttempts     = 3
	prefillAttemptDelay = 500 * time.Millisecond
)

// PrefillSuggestion is one draft answer produced by the provider.
type PrefillSuggestion struct {
	QuestionID int    `json:"question_id"`
	Answer     string `json:"answer"`
}

// PrefillResult is the provider's output: draft answers plus a short
// protocol summary stored on the submission.
type PrefillResult struct {
	Summary     string              `json:"summary"`
	Suggestions []PrefillSuggestion `json:"answers"`
}

// PrefillRequest carries everything a provider needs for one attempt.
type PrefillRequest struct {
	Model     string
	MaxTokens int
	Protocol  string
	Questions []models.Question
}

// PrefillProvider wraps one external AI service. Implementations make a
// single attempt; retries and backoff live in PrefillService.
type PrefillProvider interface {
	Name() string
	Prefill(ctx context.Context, req PrefillRequest) (*PrefillResult, error)
}

// PrefillService drafts questionnaire answers from the uploaded protocol
// document. It is strictly an enrichment step: failures surface as
// ExternalAdapterFailure and never touch stored responses, and drafted
// answers stay unconfirmed until the submitter accepts or edits them.
type PrefillService struct {
	db       *gorm.DB
	provider PrefillProvider
}

// NewPrefillService builds the service. provider may be nil, in which
// case the board's configured provider is resolved per call.
func NewPrefillService(db *gorm.DB, provider PrefillProvider) *PrefillService {
	if db == nil {
		db = config.DB
	}
	return &PrefillService{db: db, provider: provider}
}

// Run drafts answers for the submission's visible questions that have no
// user-authored answer yet. Only the submitter may trigger it, only
// while the submission is editable, and only on boards with AI enabled.
// ctx bounds the whole call; this is the one workflow operation a caller
// may cancel.
func (s *PrefillService) Run(ctx context.Context, actor Actor, submissionID int) ([]models.Response, error) {
	sub, board, questions, protocol, err := s.loadPrefillInput(actor, submissionID)
	if err != nil {
		return nil, err
	}

	provider := s.provider
	if provider == nil {
		provider, err = providerFor(board)
		if err != nil {
			return nil, err
		}
	}

	req := PrefillRequest{
		Model:     board.AIModel,
		MaxTokens: board.AIMaxTokens,
		Protocol:  protocol,
		Questions: questions,
	}
	result, err := callWithRetries(ctx, provider, req)
	if err != nil {
		return nil, err
	}

	return s.storePrefill(actor, sub.SubmissionID, questions, result)
}

// loadPrefillInput gathers the submission, board config, the questions
// worth drafting and the protocol text in one read transaction.
func (s *PrefillService) loadPrefillInput(actor Actor, submissionID int) (*models.Submission, *models.Board, []models.Question, string, error) {
	var sub *models.Submission
	var board models.Board
	var candidates []models.Question
	var protocol string

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		sub, err = loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		if sub.SubmittedBy != actor.UserID {
			return &AuthorizationError{Action: "ai_prefill", UserID: actor.UserID, Reason: "only the submitter may request AI prefill"}
		}
		if !sub.IsEditable() {
			return &InvalidStateTransitionError{
				SubmissionID: sub.SubmissionID,
				From:         sub.Status,
				Event:        "ai_prefill",
				Reason:       "prefill is only available while drafting or revising",
			}
		}

		if err := tx.Where("board_id = ? AND delete_at IS NULL", sub.BoardID).First(&board).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "board", ID: sub.BoardID}
			}
			return err
		}
		if !board.AIEnabled {
			return &ValidationError{Field: "board", Message: "AI prefill is not enabled for this board"}
		}

		questions, err := boardQuestions(tx, sub.BoardID)
		if err != nil {
			return err
		}
		responses, err := submissionResponses(tx, sub.SubmissionID)
		if err != nil {
			return err
		}

		// Draft only visible questions without a user-authored or
		// confirmed answer; file uploads cannot be drafted.
		locked := make(map[int]bool, len(responses))
		for _, r := range responses {
			if !r.AIPrefilled || r.UserConfirmed {
				locked[r.QuestionID] = true
			}
		}
		for _, q := range VisibleQuestionList(questions, sub.SubmissionType, AnswerSetFromResponses(responses)) {
			if q.QuestionType == models.QuestionTypeFileUpload || locked[q.QuestionID] {
				continue
			}
			candidates = append(candidates, q)
		}
		if len(candidates) == 0 {
			return &ValidationError{Field: "responses", Message: "every visible question already has an answer"}
		}

		protocol, err = loadProtocolText(tx, sub.SubmissionID)
		return err
	})
	if err != nil {
		return nil, nil, nil, "", err
	}
	return sub, &board, candidates, protocol, nil
}

// loadProtocolText reads the newest uploaded protocol document from the
// upload directory, capped at maxProtocolBytes.
func loadProtocolText(tx *gorm.DB, submissionID int) (string, error) {
	var file models.SubmissionFile
	err := tx.Where("submission_id = ? AND file_type = ? AND delete_at IS NULL", submissionID, models.FileTypeProtocol).
		Order("uploaded_at DESC").
		First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", &ValidationError{Field: "files", Message: "no protocol document uploaded"}
		}
		return "", err
	}

	uploadPath := os.Getenv("UPLOAD_PATH")
	if uploadPath == "" {
		uploadPath = "./uploads"
	}
	path := filepath.Join(uploadPath, "submissions", strconv.Itoa(submissionID), file.StoredName)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ExternalAdapterFailure{Provider: "file-store", Err: err}
	}
	if len(data) > maxProtocolBytes {
		data = data[:maxProtocolBytes]
	}
	return string(data), nil
}

// callWithRetries runs the provider with bounded attempts and backoff.
// ctx cancellation stops immediately; exhausted attempts wrap the last
// error as ExternalAdapterFailure.
func callWithRetries(ctx context.Context, provider PrefillProvider, req PrefillRequest) (*PrefillResult, error) {
	var lastErr error
	for attempt := 1; attempt <= prefillAttempts; attempt++ {
		result, err := provider.Prefill(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		log.Printf("ai prefill attempt %d/%d failed (provider=%s): %v", attempt, prefillAttempts, provider.Name(), err)
		if attempt < prefillAttempts {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(time.Duration(attempt) * prefillAttemptDelay):
				continue
			}
			break
		}
	}
	return nil, &ExternalAdapterFailure{Provider: provider.Name(), Err: lastErr}
}

// storePrefill writes the drafted answers, marked ai_prefilled and
// unconfirmed. User-authored and confirmed rows are never overwritten,
// and nothing is written if the submission left an editable state while
// the provider ran.
func (s *PrefillService) storePrefill(actor Actor, submissionID int, asked []models.Question, result *PrefillResult) ([]models.Response, error) {
	askedIDs := make(map[int]bool, len(asked))
	for _, q := range asked {
		askedIDs[q.QuestionID] = true
	}

	var stored []models.Response
	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := loadSubmission(tx, submissionID)
		if err != nil {
			return err
		}
		if !sub.IsEditable() {
			return &InvalidStateTransitionError{
				SubmissionID: sub.SubmissionID,
				From:         sub.Status,
				Event:        "ai_prefill",
				Reason:       "submission left the editable state while prefill ran",
			}
		}

		now := time.Now()
		for _, suggestion := range result.Suggestions {
			if !askedIDs[suggestion.QuestionID] || strings.TrimSpace(suggestion.Answer) == "" {
				continue
			}

			var existing models.Response
			err := tx.Where("submission_id = ? AND question_id = ?", sub.SubmissionID, suggestion.QuestionID).First(&existing).Error
			switch {
			case err == nil:
				if !existing.AIPrefilled || existing.UserConfirmed {
					continue
				}
				updates := map[string]interface{}{"answer": suggestion.Answer, "updated_at": now}
				if err := tx.Model(&models.Response{}).Where("response_id = ?", existing.ResponseID).Updates(updates).Error; err != nil {
					return err
				}
				existing.Answer = suggestion.Answer
				existing.UpdatedAt = now
				stored = append(stored, existing)
			case errors.Is(err, gorm.ErrRecordNotFound):
				fresh := models.Response{
					SubmissionID:  sub.SubmissionID,
					QuestionID:    suggestion.QuestionID,
					Answer:        suggestion.Answer,
					AIPrefilled:   true,
					UserConfirmed: false,
					CreatedAt:     now,
					UpdatedAt:     now,
				}
				if err := tx.Create(&fresh).Error; err != nil {
					return err
				}
				stored = append(stored, fresh)
			default:
				return err
			}
		}

		if summary := strings.TrimSpace(result.Summary); summary != "" {
			if err := tx.Model(&models.Submission{}).
				Where("submission_id = ?", sub.SubmissionID).
				Update("ai_summary", summary).Error; err != nil {
				return err
			}
		}

		return writeAudit(tx, actor, "ai_prefill", sub,
			map[string]interface{}{"drafted": len(stored)},
			"AI prefill stored draft answers")
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

/* ==========================
   Gemini provider
   ========================== */

// providerFor resolves the board's configured provider.
func providerFor(board *models.Board) (PrefillProvider, error) {
	switch board.AIProvider {
	case "", "gemini":
		return NewGeminiProvider(), nil
	default:
		return nil, &ExternalAdapterFailure{Provider: board.AIProvider, Err: fmt.Errorf("unsupported AI provider")}
	}
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

// GeminiProvider calls Google's Generative Language REST API.
type GeminiProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewGeminiProvider() *GeminiProvider {
	base := os.Getenv("AI_BASE_URL")
	if base == "" {
		base = "https://generativelanguage.googleapis.com"
	}
	return &GeminiProvider{
		BaseURL: base,
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Prefill(ctx context.Context, req PrefillRequest) (*PrefillResult, error) {
	if p.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not configured")
	}
	model := req.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}

	body := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: buildPrefillPrompt(req)}}}},
	}
	if req.MaxTokens > 0 {
		body.GenerationConfig = &geminiGenConfig{MaxOutputTokens: req.MaxTokens}
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.BaseURL, model, p.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("provider returned no candidates")
	}

	text := parsed.Candidates[0].Content.Parts[0].Text
	text = strings.TrimSpace(text)
	text = strings.Trim(text, "`")
	text = strings.TrimPrefix(text, "json")
	text = strings.TrimSpace(text)

	var result PrefillResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("provider returned malformed JSON: %w", err)
	}
	return &result, nil
}

func buildPrefillPrompt(req PrefillRequest) string {
	var b strings.Builder
	b.WriteString("You are assisting a researcher who is filling in an ethics review questionnaire.\n")
	b.WriteString("Draft concise answers strictly from the protocol document below. ")
	b.WriteString("If the document does not cover a question, omit that question from your answer.\n\n")
	b.WriteString("QUESTIONS:\n")
	for _, q := range req.Questions {
		fmt.Fprintf(&b, "- id=%d type=%s: %s", q.QuestionID, q.QuestionType, q.QuestionText)
		if opts := q.OptionList(); len(opts) > 0 {
			fmt.Fprintf(&b, " (options: %s)", strings.Join(opts, " | "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nPROTOCOL DOCUMENT:\n")
	b.WriteString(req.Protocol)
	b.WriteString("\n\nAnswer STRICTLY as JSON in this shape:\n")
	b.WriteString(`{"summary": "two-sentence protocol summary", "answers": [{"question_id": 1, "answer": "..."}]}`)
	return b.String()
}
