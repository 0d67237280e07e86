package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoder is the tiktoken encoding used when none is configured.
const DefaultEncoder = "o200k_base"

var (
	encodersMu sync.Mutex
	encoders   = map[string]*tiktoken.Tiktoken{}
)

func encoding(name string) (*tiktoken.Tiktoken, error) {
	if name == "" {
		name = DefaultEncoder
	}
	encodersMu.Lock()
	defer encodersMu.Unlock()

	if enc, ok := encoders[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	encoders[name] = enc
	return enc, nil
}

// CountTokens returns the number of tokens of text under the given encoding.
func CountTokens(text, encoder string) (int, error) {
	enc, err := encoding(encoder)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// TruncateTokens cuts text down to at most maxTokens tokens. A non-positive
// budget leaves text unchanged.
func TruncateTokens(text, encoder string, maxTokens int) (string, error) {
	if maxTokens <= 0 || text == "" {
		return text, nil
	}
	enc, err := encoding(encoder)
	if err != nil {
		return "", err
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, nil
	}
	return enc.Decode(tokens[:maxTokens]), nil
}

// ContextWindow estimates the context size a request needs: the prompt
// tokens plus a fixed reserve for the answer.
func ContextWindow(prompt, encoder string, reserve int) (int, error) {
	n, err := CountTokens(prompt, encoder)
	if err != nil {
		return 0, err
	}
	return n + reserve, nil
}
