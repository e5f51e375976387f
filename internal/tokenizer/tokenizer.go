// Package tokenizer counts tokens for the usage block of the completions
// response. Counts are best effort: the UI backend reports no usage of its
// own, so clients get the same numbers the real API would compute.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

var (
	mu       sync.Mutex
	byModel  = map[string]*tiktoken.Tiktoken{}
	fallback *tiktoken.Tiktoken
	initOnce sync.Once
)

func fallbackEncoder() *tiktoken.Tiktoken {
	initOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(fallbackEncoding)
		if err == nil {
			fallback = enc
		}
	})
	return fallback
}

func encoderFor(model string) *tiktoken.Tiktoken {
	if model == "" {
		return fallbackEncoder()
	}

	mu.Lock()
	defer mu.Unlock()
	if enc, ok := byModel[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc = fallbackEncoder()
	}
	byModel[model] = enc
	return enc
}

// Count returns the number of tokens in text for the given model, falling
// back to cl100k_base for unknown models and to a bytes/4 estimate when no
// encoding data is available (e.g. offline first run).
func Count(text, model string) int {
	enc := encoderFor(model)
	if enc == nil {
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
