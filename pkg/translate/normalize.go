package translate

import (
	"fmt"
	"strings"

	"github.com/chriscow/livekit-translate-go/pkg/ai/llm"
)

// Normalize converts loosely shaped conversation history into a turn sequence
// that can be submitted to a translation model. It never fails.
//
// Records without a role, with an unknown role, or whose content is empty
// after flattening and trimming are dropped. Content lists are joined with no
// separator; other non-text content is stringified. The result always starts
// with a system turn: supplied system turns are moved to the front in their
// original order, and when there are none a system turn carrying directive is
// prepended.
func Normalize(history []map[string]any, directive string) []llm.Message {
	turns := make([]llm.Message, 0, len(history)+1)
	for _, record := range history {
		if record == nil {
			continue
		}
		rawRole, ok := record["role"]
		if !ok || rawRole == nil {
			continue
		}
		turns = append(turns, llm.Message{
			Role:    llm.MessageRole(strings.ToLower(strings.TrimSpace(stringify(rawRole)))),
			Content: flatten(record["content"]),
		})
	}
	return NormalizeTurns(turns, directive)
}

// NormalizeTurns applies the same rules as Normalize to typed turns.
func NormalizeTurns(turns []llm.Message, directive string) []llm.Message {
	var system, rest []llm.Message
	for _, t := range turns {
		if !t.Role.Valid() {
			continue
		}
		t.Content = strings.TrimSpace(t.Content)
		if t.Content == "" {
			continue
		}
		if t.Role == llm.RoleSystem {
			system = append(system, t)
		} else {
			rest = append(rest, t)
		}
	}

	if len(system) == 0 {
		directive = strings.TrimSpace(directive)
		if directive == "" {
			directive = DefaultDirective
		}
		system = []llm.Message{{Role: llm.RoleSystem, Content: directive}}
	}

	out := make([]llm.Message, 0, len(system)+len(rest))
	out = append(out, system...)
	return append(out, rest...)
}

func flatten(content any) string {
	switch c := content.(type) {
	case nil:
		return ""
	case string:
		return c
	case []string:
		return strings.Join(c, "")
	case []any:
		var b strings.Builder
		for _, part := range c {
			b.WriteString(fragment(part))
		}
		return b.String()
	default:
		return stringify(c)
	}
}

// fragment renders one element of a content list.
func fragment(part any) string {
	switch p := part.(type) {
	case nil:
		return ""
	case string:
		return p
	case map[string]any:
		if text, ok := p["text"].(string); ok {
			return text
		}
		return ""
	default:
		return stringify(p)
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}
