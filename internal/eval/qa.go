package eval

import (
	"fmt"
	"strings"
	"time"
)

// QAScore is one heuristic dimension of a question/answer pair, normalized
// to [0, 1].
type QAScore struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}

type QAEvaluation struct {
	Scores      []QAScore `json:"scores"`
	Overall     float64   `json:"overall"`
	EvaluatedAt string    `json:"evaluated_at"`
}

// ScoreAnswerRelevancy measures how much of the question's vocabulary the
// answer picks up. Word overlap is doubled before capping, so echoing half
// the question already counts as fully relevant.
func ScoreAnswerRelevancy(question, answer string) QAScore {
	questionWords := words(question)
	if len(questionWords) == 0 {
		return QAScore{Name: "answer_relevancy", Score: 0, Reason: "empty question"}
	}
	answerSet := toSet(words(answer))
	overlap := 0
	for _, word := range questionWords {
		if answerSet[word] {
			overlap++
		}
	}
	score := float64(overlap) / float64(len(questionWords)) * 2
	if score > 1 {
		score = 1
	}
	return QAScore{
		Name:   "answer_relevancy",
		Score:  round2(score),
		Reason: fmt.Sprintf("%d of %d question words covered", overlap, len(questionWords)),
	}
}

// ScoreFaithfulness measures the share of answer words grounded in the
// supplied context documents. No context means nothing can be grounded.
func ScoreFaithfulness(answer string, context []string) QAScore {
	if len(context) == 0 {
		return QAScore{Name: "faithfulness", Score: 0, Reason: "no context supplied"}
	}
	answerWords := words(answer)
	if len(answerWords) == 0 {
		return QAScore{Name: "faithfulness", Score: 0, Reason: "empty answer"}
	}
	contextSet := toSet(words(strings.Join(context, " ")))
	grounded := 0
	for _, word := range answerWords {
		if contextSet[word] {
			grounded++
		}
	}
	return QAScore{
		Name:   "faithfulness",
		Score:  round2(float64(grounded) / float64(len(answerWords))),
		Reason: fmt.Sprintf("%d of %d answer words grounded in context", grounded, len(answerWords)),
	}
}

// ScoreCompleteness buckets by answer length. Word counts are a coarse
// proxy, but very short answers are almost never complete ones.
func ScoreCompleteness(answer string) QAScore {
	count := len(words(answer))
	var score float64
	switch {
	case count < 5:
		score = 0.2
	case count < 20:
		score = 0.5
	case count < 100:
		score = 0.8
	default:
		score = 1.0
	}
	return QAScore{
		Name:   "completeness",
		Score:  score,
		Reason: fmt.Sprintf("%d words", count),
	}
}

// EvaluateAnswer runs the heuristic scorers over one question/answer pair.
// Faithfulness is only scored when context is supplied; Overall is the mean
// of the dimensions that ran.
func EvaluateAnswer(question, answer string, context []string) QAEvaluation {
	scores := []QAScore{ScoreAnswerRelevancy(question, answer)}
	if len(context) > 0 {
		scores = append(scores, ScoreFaithfulness(answer, context))
	}
	scores = append(scores, ScoreCompleteness(answer))
	total := 0.0
	for _, score := range scores {
		total += score.Score
	}
	return QAEvaluation{
		Scores:      scores,
		Overall:     round2(total / float64(len(scores))),
		EvaluatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func words(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
