package automator

import "testing"

func TestConversationIDFromURL(t *testing.T) {
	const id = "0196f3a2-1111-2222-3333-444455556666"
	cases := []struct {
		href   string
		wantID string
		wantOK bool
	}{
		{"https://chatgpt.com/c/" + id, id, true},
		{"https://chatgpt.com/c/" + id + "?model=gpt-4o", id, true},
		{"https://chatgpt.com/c/" + id + "#section", id, true},
		{"https://chatgpt.com/c/" + id + "/", id, true},
		{"https://chatgpt.com/", "", false},
		{"https://chatgpt.com/c/", "", false},
		{"https://chatgpt.com/c/not-a-uuid", "", false},
		{"https://chatgpt.com/g/g-abc/c/" + id, id, true},
	}

	for _, tc := range cases {
		got, ok := ConversationIDFromURL(tc.href)
		if ok != tc.wantOK || string(got) != tc.wantID {
			t.Errorf("ConversationIDFromURL(%q) = (%q, %v), want (%q, %v)",
				tc.href, got, ok, tc.wantID, tc.wantOK)
		}
	}
}

func TestNormalizeTypingMode(t *testing.T) {
	cases := []struct {
		raw  string
		want TypingMode
	}{
		{"normal", ModeNormal},
		{"fast", ModeFast},
		{"paste", ModePaste},
		{" PASTE ", ModePaste},
		{"", ModeNormal},
		{"slow", ModeNormal},
	}
	for _, tc := range cases {
		if got := NormalizeTypingMode(tc.raw); got != tc.want {
			t.Errorf("NormalizeTypingMode(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
