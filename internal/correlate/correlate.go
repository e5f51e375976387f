// Package correlate generates the unique tag embedded in every submitted
// prompt. The responding UI echoes the tag back inside the conversation, so
// a reply can always be matched to its originating request even though
// submission and completion are fully decoupled.
package correlate

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/chatrelay/chatrelay/internal/domain"
)

// New returns a fresh correlation tag. Tags are 128-bit random identifiers,
// collision-free across the process lifetime, and are never reused.
func New() domain.Tag {
	return domain.Tag(uuid.NewString())
}

// Embed appends the tag trailer to the prompt. The trailer format is fixed:
// the UI preserves it verbatim, which is what makes extraction reliable.
func Embed(prompt string, tag domain.Tag) string {
	return fmt.Sprintf("%s\n<chatName=\"Request\" uChatId=\"%s\"/>", prompt, tag)
}

var tagRe = regexp.MustCompile(`uChatId="([0-9a-fA-F-]{36})"`)

// Extract recovers a tag from echoed content. It is the fallback correlation
// mechanism; the redirect-derived conversation handle is authoritative.
func Extract(text string) (domain.Tag, bool) {
	m := tagRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return domain.Tag(m[1]), true
}
