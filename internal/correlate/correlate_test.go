package correlate

import (
	"strings"
	"testing"
)

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		tag := string(New())
		if seen[tag] {
			t.Fatalf("duplicate tag after %d generations: %s", i, tag)
		}
		seen[tag] = true
	}
}

func TestEmbedExtract_RoundTrip(t *testing.T) {
	tag := New()
	tagged := Embed("What is the capital of France?", tag)

	if !strings.HasPrefix(tagged, "What is the capital of France?") {
		t.Errorf("prompt body mangled: %q", tagged)
	}
	if !strings.Contains(tagged, string(tag)) {
		t.Errorf("tag not embedded: %q", tagged)
	}

	got, ok := Extract(tagged)
	if !ok {
		t.Fatal("tag not extracted from tagged prompt")
	}
	if got != tag {
		t.Errorf("extracted %s, want %s", got, tag)
	}
}

func TestExtract_NoTag(t *testing.T) {
	if _, ok := Extract("plain reply with no marker"); ok {
		t.Error("extracted a tag from untagged text")
	}
}

func TestExtract_FromEchoedReply(t *testing.T) {
	tag := New()
	echoed := "Sure!\nHere you go.\n<chatName=\"Request\" uChatId=\"" + string(tag) + "\"/>"
	got, ok := Extract(echoed)
	if !ok || got != tag {
		t.Errorf("Extract = (%s, %v), want (%s, true)", got, ok, tag)
	}
}
