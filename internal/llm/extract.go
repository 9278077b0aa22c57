package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	goFence    = regexp.MustCompile("(?s)```(?:go|golang)\\s*\\n(.*?)```")
	plainFence = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n(.*?)```")
)

// ExtractCodeBlock returns the first ```go fenced block, else the first
// fenced block of any language, else the whole response trimmed.
func ExtractCodeBlock(response string) string {
	if m := goFence.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := plainFence.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(response)
}

// ExtractJSON decodes the first JSON value in response into v. Fenced
// blocks are unwrapped first; otherwise the outermost [...] or {...} span
// is used.
func ExtractJSON(response string, v any) error {
	body := strings.TrimSpace(response)
	if m := plainFence.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if err := json.Unmarshal([]byte(body), v); err == nil {
		return nil
	}
	for _, pair := range [][2]string{{"[", "]"}, {"{", "}"}} {
		start := strings.Index(body, pair[0])
		end := strings.LastIndex(body, pair[1])
		if start >= 0 && end > start {
			if err := json.Unmarshal([]byte(body[start:end+1]), v); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("no JSON value found in response (%d bytes)", len(response))
}
