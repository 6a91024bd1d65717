// Package quiz generates multiple-choice quizzes from a document and grades
// answers against server-held sessions.
package quiz

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"docqa/internal/domain"
)

// Format selects how answers are graded.
type Format string

const (
	// FormatMCQ grades a single option letter; score is 0 or 100.
	FormatMCQ Format = "mcq"
	// FormatFreeText grades typed text by similarity to the expected answer;
	// correct iff the score is at least PassScore. No options are shown.
	FormatFreeText Format = "free_text"
)

const PassScore = 80

// Letters are the option keys of every question, in display order.
var Letters = [4]string{"A", "B", "C", "D"}

// Question is the server-side record of one quiz question.
type Question struct {
	ID            string            `json:"id"`
	Text          string            `json:"question"`
	Options       map[string]string `json:"options"`
	CorrectLetter string            `json:"correct_letter"`
	// Answer is the expected answer before option balancing.
	Answer        string `json:"answer,omitempty"`
	Justification string `json:"justification"`
	Explanation   string `json:"explanation"`
	Signature     string `json:"signature"`
}

// CorrectText returns the option text behind CorrectLetter.
func (q Question) CorrectText() string { return q.Options[q.CorrectLetter] }

// ExpectedAnswer is the text free-text answers and hints are measured
// against.
func (q Question) ExpectedAnswer() string {
	if q.Answer != "" {
		return q.Answer
	}
	return q.CorrectText()
}

// PublicQuestion is what a quiz taker sees before grading.
type PublicQuestion struct {
	ID       string            `json:"id"`
	Question string            `json:"question"`
	Options  map[string]string `json:"options,omitempty"`
	Type     Format            `json:"type"`
}

func (q Question) Public(format Format) PublicQuestion {
	if format == FormatFreeText {
		return PublicQuestion{ID: q.ID, Question: q.Text, Type: format}
	}
	opts := make(map[string]string, len(q.Options))
	for k, v := range q.Options {
		opts[k] = v
	}
	return PublicQuestion{ID: q.ID, Question: q.Text, Options: opts, Type: format}
}

// Session holds the ungraded questions of one quiz and the scores of the
// graded ones.
type Session struct {
	ID        string     `json:"session_id"`
	DocID     string     `json:"document_id"`
	Format    Format     `json:"format"`
	Questions []Question `json:"questions"`
	Total     int        `json:"total"`
	Scores    []int      `json:"scores"`
	CreatedAt time.Time  `json:"created_at"`
}

// Result is the outcome of grading one answer.
type Result struct {
	Correct       bool   `json:"correct"`
	Score         int    `json:"score"`
	Feedback      string `json:"feedback"`
	CorrectLetter string `json:"correct_letter,omitempty"`
	CorrectAnswer string `json:"correct_answer"`
	Justification string `json:"justification"`
	Explanation   string `json:"explanation"`
	Remaining     int    `json:"remaining"`
	// Final is set when this answer emptied the session.
	Final *Progress `json:"final_results,omitempty"`
}

type Progress struct {
	Answered     int     `json:"answered"`
	Total        int     `json:"total_questions"`
	Remaining    int     `json:"remaining"`
	AverageScore float64 `json:"average_score"`
}

func (s *Session) Progress() Progress {
	p := Progress{Answered: len(s.Scores), Total: s.Total, Remaining: len(s.Questions)}
	if len(s.Scores) > 0 {
		sum := 0
		for _, v := range s.Scores {
			sum += v
		}
		p.AverageScore = math.Round(float64(sum)/float64(len(s.Scores))*100) / 100
	}
	return p
}

func (s *Session) find(questionID string) int {
	for i, q := range s.Questions {
		if q.ID == questionID {
			return i
		}
	}
	return -1
}

// Grade evaluates answer for question id, removes the question and records
// its score. The session is unchanged when an error is returned.
func (s *Session) Grade(questionID, answer string) (Result, error) {
	i := s.find(questionID)
	if i < 0 {
		return Result{}, domain.ErrUnknownQuestion
	}
	res, err := grade(s.Questions[i], s.Format, answer)
	if err != nil {
		return Result{}, err
	}
	s.Questions = append(s.Questions[:i], s.Questions[i+1:]...)
	s.Scores = append(s.Scores, res.Score)
	res.Remaining = len(s.Questions)
	if len(s.Questions) == 0 {
		p := s.Progress()
		res.Final = &p
	}
	return res, nil
}

// Hint returns the first four words of the expected answer.
func (s *Session) Hint(questionID string) (string, error) {
	i := s.find(questionID)
	if i < 0 {
		return "", domain.ErrUnknownQuestion
	}
	words := strings.Fields(s.Questions[i].ExpectedAnswer())
	return "Hint: " + strings.Join(words[:min(4, len(words))], " ") + "...", nil
}

func grade(q Question, format Format, answer string) (Result, error) {
	res := Result{
		CorrectAnswer: q.CorrectText(),
		Justification: q.Justification,
		Explanation:   q.Explanation,
	}
	switch format {
	case FormatFreeText:
		if strings.TrimSpace(answer) == "" {
			return Result{}, fmt.Errorf("%w: answer is empty", domain.ErrValidation)
		}
		res.CorrectAnswer = q.ExpectedAnswer()
		res.Score = Similarity(answer, res.CorrectAnswer)
		res.Correct = res.Score >= PassScore
		switch {
		case res.Correct:
			res.Feedback = "Excellent answer!"
		case res.Score >= 60:
			res.Feedback = "Close. Review the key sentence."
		default:
			res.Feedback = "Not quite. Try re-reading the section."
		}
		res.Justification = fmt.Sprintf("Your answer matched %d%% of the expected answer. %s", res.Score, q.Justification)
	default:
		letter, err := NormalizeLetter(answer)
		if err != nil {
			return Result{}, err
		}
		res.CorrectLetter = q.CorrectLetter
		res.Correct = letter == q.CorrectLetter
		if res.Correct {
			res.Score = 100
			res.Feedback = "Correct!"
		} else {
			res.Feedback = fmt.Sprintf("Incorrect. The correct answer is %s.", q.CorrectLetter)
		}
	}
	return res, nil
}

// NormalizeLetter accepts "b", " B ", "B)" or "(b)" and returns "B".
func NormalizeLetter(answer string) (string, error) {
	s := strings.ToUpper(strings.Trim(answer, " \t\r\n().:"))
	for _, l := range Letters {
		if s == l {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: answer must be one of A, B, C or D, got %q", domain.ErrValidation, answer)
}

// Similarity returns the Levenshtein similarity of a and b as a percentage
// after case folding and dropping punctuation.
func Similarity(a, b string) int {
	na, nb := normalize(a), normalize(b)
	longest := max(len([]rune(na)), len([]rune(nb)))
	if longest == 0 {
		return 100
	}
	return int(math.Round((1 - float64(levenshtein(na, nb))/float64(longest)) * 100))
}

func normalize(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r):
		default:
			if space && len(out) > 0 {
				out = append(out, ' ')
			}
			space = false
			out = append(out, unicode.ToLower(r))
		}
	}
	return string(out)
}

func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}
	dp := make([]int, len(br)+1)
	for j := range dp {
		dp[j] = j
	}
	for i := 1; i <= len(ar); i++ {
		prev := dp[0]
		dp[0] = i
		for j := 1; j <= len(br); j++ {
			tmp := dp[j]
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			dp[j] = min(dp[j]+1, dp[j-1]+1, prev+cost)
			prev = tmp
		}
	}
	return dp[len(br)]
}

// Store keeps quiz sessions between requests. Implementations serialize
// operations on the same session so a question is graded at most once.
type Store interface {
	Create(ctx context.Context, s Session) error
	Evaluate(ctx context.Context, sessionID, questionID, answer string) (Result, error)
	Progress(ctx context.Context, sessionID string) (Progress, error)
	Hint(ctx context.Context, sessionID, questionID string) (string, error)
	Questions(ctx context.Context, sessionID string) ([]PublicQuestion, error)
	End(ctx context.Context, sessionID string) (Progress, error)
}
