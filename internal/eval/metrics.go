package eval

import "strings"

// Heuristics are the cheap, model-free quality signals for one answer.
type Heuristics struct {
	// KeywordCoverage is the fraction of expected keywords the answer
	// mentions, in [0, 1].
	KeywordCoverage float64 `json:"keyword_coverage"`
	// Faithfulness is the fraction of answer tokens that appear in the
	// retrieved context, in [0, 1]. Meaningless without context.
	Faithfulness float64 `json:"faithfulness"`
	// Hallucination is 1 - Faithfulness: the share of answer tokens with
	// no support in the context.
	Hallucination float64 `json:"hallucination"`
	// AnswerWords is the answer length in whitespace-separated words.
	AnswerWords int `json:"answer_words"`
}

// Tokenize lowercases text and splits it into alphanumeric tokens.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// KeywordCoverage returns the fraction of keywords found in the answer.
// Matching is on whole tokens, case-insensitive. No keywords scores 0.
func KeywordCoverage(answer string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	tokens := make(map[string]bool)
	for _, t := range Tokenize(answer) {
		tokens[t] = true
	}
	hits := 0
	for _, kw := range keywords {
		found := true
		for _, t := range Tokenize(kw) {
			if !tokens[t] {
				found = false
				break
			}
		}
		if found {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// Faithfulness returns the fraction of answer tokens present in the
// retrieved context. An empty answer or empty context scores 0.
func Faithfulness(answer string, contexts []string) float64 {
	tokens := Tokenize(answer)
	if len(tokens) == 0 || len(contexts) == 0 {
		return 0
	}
	contextTokens := make(map[string]bool)
	for _, c := range contexts {
		for _, t := range Tokenize(c) {
			contextTokens[t] = true
		}
	}
	supported := 0
	for _, t := range tokens {
		if contextTokens[t] {
			supported++
		}
	}
	return float64(supported) / float64(len(tokens))
}

// ComputeHeuristics scores one answer against its fixture and context.
func ComputeHeuristics(answer string, keywords []string, contexts []string) Heuristics {
	faith := Faithfulness(answer, contexts)
	return Heuristics{
		KeywordCoverage: KeywordCoverage(answer, keywords),
		Faithfulness:    faith,
		Hallucination:   1 - faith,
		AnswerWords:     len(strings.Fields(answer)),
	}
}
