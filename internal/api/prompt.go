package api

import (
	"regexp"
	"strings"

	"github.com/chatrelay/chatrelay/pkg/api"
)

// System-prompt handling modes. The UI has no system-message slot, so the
// caller picks how system content is folded into the submitted prompt.
const (
	ModeDelete        = "delete"
	ModeMerge         = "merge"
	ModeMergePostUI   = "merge_post_user_instructions"
	ModeMergePostMeta = "merge_post_meta"
	ModeKeep          = "keep"
	roleSystem        = "system"
)

var (
	uiClosingRe   = regexp.MustCompile(`(?i)(</user_instructions>)`)
	metaClosingRe = regexp.MustCompile(`(?i)(</meta\s*prompt>)`)
)

// applySystemPromptMode rewrites the message list according to mode.
// Unrecognized modes behave like "keep".
func applySystemPromptMode(messages []api.ChatMessage, mode string) []api.ChatMessage {
	mode = strings.ReplaceAll(strings.ToLower(mode), "-", "_")

	switch mode {
	case ModeDelete:
		return dropSystem(messages)

	case ModeMerge:
		system, rest := splitSystem(messages)
		if system == "" || len(rest) == 0 {
			return rest
		}
		rest[len(rest)-1].Content = system + "\n" + rest[len(rest)-1].Content
		return rest

	case ModeMergePostUI:
		return mergeAfter(messages, uiClosingRe, true)

	case ModeMergePostMeta:
		return mergeAfter(messages, metaClosingRe, false)

	default: // keep
		return messages
	}
}

// mergeAfter folds system content into the last message, inserting it just
// after the closing marker when present. prepend controls where the system
// text lands when no marker is found.
func mergeAfter(messages []api.ChatMessage, marker *regexp.Regexp, prepend bool) []api.ChatMessage {
	system, rest := splitSystem(messages)
	if system == "" || len(rest) == 0 {
		return rest
	}

	last := rest[len(rest)-1].Content
	locs := marker.FindAllStringIndex(last, -1)
	if len(locs) > 0 {
		idx := locs[len(locs)-1][1]
		rest[len(rest)-1].Content = last[:idx] + "\n" + system + "\n" + last[idx:]
	} else if prepend {
		rest[len(rest)-1].Content = system + "\n" + last
	} else {
		rest[len(rest)-1].Content = last + "\n" + system
	}
	return rest
}

func dropSystem(messages []api.ChatMessage) []api.ChatMessage {
	out := make([]api.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role != roleSystem {
			out = append(out, m)
		}
	}
	return out
}

// splitSystem joins all system contents and returns them with the
// non-system remainder (copied, so callers can mutate).
func splitSystem(messages []api.ChatMessage) (string, []api.ChatMessage) {
	var system []string
	rest := make([]api.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == roleSystem {
			system = append(system, m.Content)
		} else {
			rest = append(rest, m)
		}
	}
	return strings.Join(system, "\n"), rest
}

// flatten joins message contents into the single prompt string the UI
// composer receives.
func flatten(messages []api.ChatMessage) string {
	parts := make([]string, len(messages))
	for i, m := range messages {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}
