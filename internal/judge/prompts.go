package judge

import (
	"fmt"
	"strings"
)

const answerFormat = `Respond in this exact JSON format:
{"score": <1-5>, "reason": "<one sentence explanation>"}`

// RelevancePrompt rates how well an answer addresses its question.
func RelevancePrompt(question, answer string) string {
	return fmt.Sprintf(`You are an expert evaluator. Rate how well the ANSWER addresses the QUESTION.

QUESTION: %s
ANSWER: %s

Rate on a scale of 1-5:
1 = Completely off-topic, does not address the question at all
2 = Slightly related but misses the main point
3 = Partially addresses the question but incomplete
4 = Mostly addresses the question with minor gaps
5 = Directly and completely addresses the question

%s`, question, answer, answerFormat)
}

// FaithfulnessPrompt rates whether an answer is grounded in retrieved context.
func FaithfulnessPrompt(question, answer string, context []string) string {
	return fmt.Sprintf(`You are an expert evaluator. Rate whether the ANSWER is grounded in the CONTEXT.

CONTEXT:
%s

QUESTION: %s
ANSWER: %s

Rate on a scale of 1-5:
1 = Answer contains claims not supported by context (hallucination)
2 = Most claims are unsupported
3 = Mix of grounded and ungrounded claims
4 = Mostly grounded with minor unsupported details
5 = Every claim in the answer is supported by the context

%s`, strings.Join(context, "\n---\n"), question, answer, answerFormat)
}

// CorrectnessPrompt rates an answer against a known expected answer.
func CorrectnessPrompt(question, answer, expected string) string {
	return fmt.Sprintf(`You are an expert evaluator. Rate how well the ANSWER matches the EXPECTED answer to the QUESTION.

QUESTION: %s
EXPECTED: %s
ANSWER: %s

Rate on a scale of 1-5:
1 = Contradicts the expected answer or is entirely wrong
2 = Mostly wrong with a fragment of the expected content
3 = Partially correct but missing key facts from the expected answer
4 = Matches the expected answer with minor omissions or extra detail
5 = Fully consistent with the expected answer

%s`, question, expected, answer, answerFormat)
}

// HelpfulnessPrompt rates how useful an answer would be to the asker.
func HelpfulnessPrompt(question, answer string) string {
	return fmt.Sprintf(`You are an expert evaluator. Rate how helpful the ANSWER would be to a human asking the QUESTION.

QUESTION: %s
ANSWER: %s

Rate on a scale of 1-5:
1 = Unhelpful, confusing, or incorrect
2 = Slightly helpful but mostly unclear
3 = Somewhat helpful but incomplete or verbose
4 = Helpful with minor room for improvement
5 = Extremely helpful, clear, complete, and actionable

%s`, question, answer, answerFormat)
}
