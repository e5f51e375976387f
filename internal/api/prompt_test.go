package api

import (
	"testing"

	"github.com/chatrelay/chatrelay/pkg/api"
)

func msgs(pairs ...string) []api.ChatMessage {
	out := make([]api.ChatMessage, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, api.ChatMessage{Role: pairs[i], Content: pairs[i+1]})
	}
	return out
}

func TestApplySystemPromptMode_Delete(t *testing.T) {
	got := applySystemPromptMode(msgs("system", "be terse", "user", "hi"), ModeDelete)
	if len(got) != 1 || got[0].Content != "hi" {
		t.Fatalf("got %+v, want only the user message", got)
	}
}

func TestApplySystemPromptMode_Merge(t *testing.T) {
	got := applySystemPromptMode(msgs("system", "be terse", "user", "hi"), ModeMerge)
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
	if got[0].Content != "be terse\nhi" {
		t.Errorf("content = %q", got[0].Content)
	}
}

func TestApplySystemPromptMode_MergeJoinsMultipleSystems(t *testing.T) {
	got := applySystemPromptMode(
		msgs("system", "one", "system", "two", "user", "hi"), ModeMerge)
	if got[len(got)-1].Content != "one\ntwo\nhi" {
		t.Errorf("content = %q", got[len(got)-1].Content)
	}
}

func TestApplySystemPromptMode_MergePostUserInstructions(t *testing.T) {
	user := "<user_instructions>use bullet points</user_instructions>\nactual question"
	got := applySystemPromptMode(msgs("system", "sys", "user", user), ModeMergePostUI)
	want := "<user_instructions>use bullet points</user_instructions>\nsys\n\nactual question"
	if got[0].Content != want {
		t.Errorf("content = %q\nwant      %q", got[0].Content, want)
	}

	// No marker: system content leads.
	got = applySystemPromptMode(msgs("system", "sys", "user", "plain"), ModeMergePostUI)
	if got[0].Content != "sys\nplain" {
		t.Errorf("no-marker content = %q", got[0].Content)
	}
}

func TestApplySystemPromptMode_MergePostMeta(t *testing.T) {
	user := "intro </meta prompt> question"
	got := applySystemPromptMode(msgs("system", "sys", "user", user), ModeMergePostMeta)
	want := "intro </meta prompt>\nsys\n question"
	if got[0].Content != want {
		t.Errorf("content = %q\nwant      %q", got[0].Content, want)
	}

	// No marker: system content trails.
	got = applySystemPromptMode(msgs("system", "sys", "user", "plain"), ModeMergePostMeta)
	if got[0].Content != "plain\nsys" {
		t.Errorf("no-marker content = %q", got[0].Content)
	}
}

func TestApplySystemPromptMode_KeepAndUnknown(t *testing.T) {
	in := msgs("system", "sys", "user", "hi")
	for _, mode := range []string{ModeKeep, "bogus", ""} {
		got := applySystemPromptMode(in, mode)
		if len(got) != 2 || got[0].Role != "system" {
			t.Errorf("mode %q altered the messages: %+v", mode, got)
		}
	}
}

func TestApplySystemPromptMode_HyphenAlias(t *testing.T) {
	got := applySystemPromptMode(msgs("system", "sys", "user", "hi"), "merge-post-user-instructions")
	if len(got) != 1 || got[0].Content != "sys\nhi" {
		t.Errorf("hyphenated mode not normalized: %+v", got)
	}
}

func TestApplySystemPromptMode_DoesNotMutateInput(t *testing.T) {
	in := msgs("system", "sys", "user", "hi")
	applySystemPromptMode(in, ModeMerge)
	if in[1].Content != "hi" {
		t.Errorf("input mutated: %q", in[1].Content)
	}
}

func TestFlatten(t *testing.T) {
	got := flatten(msgs("user", "a", "assistant", "b", "user", "c"))
	if got != "a\nb\nc" {
		t.Errorf("flatten = %q", got)
	}
}
