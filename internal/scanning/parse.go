package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseClassificationJSON parses the JSON answer of an LLM backend
func parseClassificationJSON(text string) (*ClassifyResponse, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var raw struct {
		Classifications []struct {
			Value      *float64 `json:"value"`
			Category   *string  `json:"category"`
			Confidence *float64 `json:"confidence"`
		} `json:"classifications"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	if raw.Classifications == nil {
		return nil, fmt.Errorf("response has no classifications")
	}

	resp := &ClassifyResponse{
		Classifications: make([]Classification, 0, len(raw.Classifications)),
	}
	for i, c := range raw.Classifications {
		if c.Value == nil || c.Category == nil || c.Confidence == nil {
			return nil, fmt.Errorf("classification %d is missing a field", i)
		}
		resp.Classifications = append(resp.Classifications, Classification{
			Value:      *c.Value,
			Category:   strings.ToLower(strings.TrimSpace(*c.Category)),
			Confidence: *c.Confidence,
		})
	}
	return resp, nil
}
