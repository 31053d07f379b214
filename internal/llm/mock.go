package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// MockClient is used when no real provider is configured. It answers
// with the same JSON shape the interpreter prompt asks the real model
// for, driven by keyword heuristics.
type MockClient struct{}

var taskNumberRe = regexp.MustCompile(`task\s+#?([0-9a-f-]+)`)

func (m *MockClient) Complete(ctx context.Context, req Request) (string, error) {
	last := ""
	for _, t := range req.Turns {
		if t.Role == "user" {
			last = t.Content
		}
	}
	lower := strings.ToLower(last)

	out := map[string]any{"action": "unknown", "confidence": 0.2}
	switch {
	case strings.HasPrefix(lower, "add") || strings.Contains(lower, "new task") || strings.Contains(lower, "remind me to"):
		out["action"] = "add"
		out["confidence"] = 0.9
		out["title"] = extractTitle(last)
	case strings.Contains(lower, "list") || strings.Contains(lower, "show") || strings.Contains(lower, "pending") || strings.Contains(lower, "what do i"):
		out["action"] = "list"
		out["confidence"] = 0.9
		if strings.Contains(lower, "done") || strings.Contains(lower, "completed") {
			out["status_filter"] = "completed"
		} else if strings.Contains(lower, "pending") || strings.Contains(lower, "open") {
			out["status_filter"] = "pending"
		}
	case strings.Contains(lower, "done") || strings.Contains(lower, "complete") || strings.Contains(lower, "finish"):
		out["action"] = "complete"
		out["confidence"] = 0.85
		fillTarget(out, lower, last)
	case strings.Contains(lower, "delete") || strings.Contains(lower, "remove"):
		out["action"] = "delete"
		out["confidence"] = 0.85
		fillTarget(out, lower, last)
	case strings.Contains(lower, "rename") || strings.Contains(lower, "change") || strings.Contains(lower, "update"):
		out["action"] = "unknown"
		out["confidence"] = 0.3
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func fillTarget(out map[string]any, lower, original string) {
	if m := taskNumberRe.FindStringSubmatch(lower); m != nil {
		out["task_id"] = m[1]
		return
	}
	// fall back to the quoted or trailing phrase as a title reference
	ref := extractTitle(original)
	if ref != "" {
		out["title_match"] = ref
	} else {
		out["confidence"] = 0.4
	}
}

func extractTitle(msg string) string {
	lower := strings.ToLower(msg)
	for _, marker := range []string{"task to ", "remind me to ", "add ", "delete the ", "remove the ", "complete the ", "mark the "} {
		if i := strings.Index(lower, marker); i >= 0 {
			rest := strings.TrimSpace(msg[i+len(marker):])
			rest = strings.TrimSuffix(rest, ".")
			for _, suffix := range []string{" task", " as done", " done"} {
				rest = strings.TrimSuffix(rest, suffix)
			}
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
