package prompt

// CharsPerToken is the character-based token heuristic. Exact tokenizer
// counts are deliberately out of scope; four characters per token is close
// enough for budgeting.
const CharsPerToken = 4

// EstimateTokens estimates the token cost of text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + CharsPerToken - 1) / CharsPerToken
}
