package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// ErrMalformedOutput is returned when a model reply cannot be decoded into
// the requested output type, even after repair.
var ErrMalformedOutput = errors.New("malformed model output")

// maxQuotedOutput bounds how much of a bad reply ends up in an error.
const maxQuotedOutput = 200

// GenerateSchema returns the JSON schema of the type behind value, which
// may be a pointer. Definitions are inlined and additional properties
// are rejected, as structured output endpoints expect.
func GenerateSchema(value any) any {
	t := reflect.TypeOf(value)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r := jsonschema.Reflector{DoNotReference: true}
	return r.Reflect(reflect.New(t).Interface())
}

// UnmarshalFlexible decodes a model reply into out. Replies that are not
// plain JSON are tried in this order: without a markdown fence, as a JSON
// string holding the payload, as the outermost object or array inside
// surrounding prose, and finally repaired by jsonrepair.
//
// Example:
//
//	var ents model.Entities
//	UnmarshalFlexible(`{"entities": [{"text": "Jane Smith", "label": "PERSON"}]}`, &ents)
//	UnmarshalFlexible("```json\n{\"entities\": []}\n```", &ents)
//	UnmarshalFlexible(`"{\"entities\": []}"`, &ents)
//	UnmarshalFlexible(`Sure! {entities: [{text: 'Privacy Act', label: 'LEGISLATION'},]}`, &ents)
func UnmarshalFlexible(input string, out any) error {
	candidates := payloadCandidates(input)
	for _, c := range candidates {
		if json.Unmarshal([]byte(c), out) == nil {
			return nil
		}
	}

	lastErr := errors.New("no JSON object or array found")
	for _, c := range candidates {
		if c[0] != '{' && c[0] != '[' {
			continue
		}
		repaired, err := jsonrepair.JSONRepair(collapseDoubledBrace(c))
		if err != nil {
			lastErr = err
			continue
		}
		if lastErr = json.Unmarshal([]byte(repaired), out); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %v (reply: %s)", ErrMalformedOutput, lastErr, quote(input))
}

// payloadCandidates lists the strings a reply's JSON payload may be,
// most literal first, without duplicates.
func payloadCandidates(reply string) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		for _, seen := range out {
			if seen == s {
				return
			}
		}
		out = append(out, s)
	}

	body := trimFence(reply)
	add(body)

	var inner string
	if json.Unmarshal([]byte(body), &inner) == nil {
		body = trimFence(inner)
		add(body)
	}
	add(enclosed(body))
	return out
}

// trimFence removes a markdown code fence around s, with or without a
// language tag.
func trimFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = s[3:]
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// enclosed returns the text from the first opening bracket to the last
// matching closing one, or "" when s has none.
func enclosed(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closing := "}"
	if s[start] == '[' {
		closing = "]"
	}
	end := strings.LastIndex(s, closing)
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}

// collapseDoubledBrace turns "{ {" at the start of s into "{", a glitch
// some models produce when asked for an object.
func collapseDoubledBrace(s string) string {
	if !strings.HasPrefix(s, "{") {
		return s
	}
	if rest := strings.TrimSpace(s[1:]); strings.HasPrefix(rest, "{") {
		return rest
	}
	return s
}

func quote(s string) string {
	if len(s) <= maxQuotedOutput {
		return s
	}
	return s[:maxQuotedOutput] + "..."
}
