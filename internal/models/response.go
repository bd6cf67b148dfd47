package models

import (
	"fmt"
	"slices"
	"strings"
)

// ResponseMode selects which tokens a trial listens for.
type ResponseMode string

const (
	ResponseSetOf ResponseMode = "set"
	ResponseAll   ResponseMode = "all"
	ResponseNone  ResponseMode = "none"
)

// Sentinel spellings accepted in config files.
const (
	AllKeys = "ALL_KEYS"
	NoKeys  = "NO_KEYS"
)

// ResponseSet is the set of response tokens a trial accepts.
type ResponseSet struct {
	Mode          ResponseMode
	Tokens        []string
	CaseSensitive bool
}

// AcceptAll returns a set matching every token.
func AcceptAll() ResponseSet { return ResponseSet{Mode: ResponseAll} }

// AcceptNone returns a set matching no token.
func AcceptNone() ResponseSet { return ResponseSet{Mode: ResponseNone} }

// AcceptTokens returns a set matching exactly the given tokens.
func AcceptTokens(tokens ...string) ResponseSet {
	return ResponseSet{Mode: ResponseSetOf, Tokens: tokens}
}

// Accepts reports whether token is in the set.
func (s ResponseSet) Accepts(token string) bool {
	switch s.Mode {
	case ResponseAll:
		return true
	case ResponseNone:
		return false
	}
	if s.CaseSensitive {
		return slices.Contains(s.Tokens, token)
	}
	for _, t := range s.Tokens {
		if strings.EqualFold(t, token) {
			return true
		}
	}
	return false
}

func (s ResponseSet) String() string {
	switch s.Mode {
	case ResponseAll:
		return AllKeys
	case ResponseNone:
		return NoKeys
	}
	return "[" + strings.Join(s.Tokens, ",") + "]"
}

// ParseResponseSet builds a ResponseSet from a decoded config value: either a
// sentinel string or a list of tokens.
func ParseResponseSet(v any) (ResponseSet, error) {
	switch val := v.(type) {
	case nil:
		return AcceptAll(), nil
	case string:
		switch strings.ToLower(val) {
		case "all_keys", "all":
			return AcceptAll(), nil
		case "no_keys", "none":
			return AcceptNone(), nil
		}
		return AcceptTokens(val), nil
	case []string:
		return AcceptTokens(val...), nil
	case []any:
		tokens := make([]string, 0, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return ResponseSet{}, fmt.Errorf("choices[%d]: expected string, got %T", i, item)
			}
			tokens = append(tokens, s)
		}
		return AcceptTokens(tokens...), nil
	default:
		return ResponseSet{}, fmt.Errorf("choices: unsupported value of type %T", v)
	}
}

// UnmarshalTOML implements toml.Unmarshaler.
func (s *ResponseSet) UnmarshalTOML(v any) error {
	parsed, err := ParseResponseSet(v)
	if err != nil {
		return err
	}
	parsed.CaseSensitive = s.CaseSensitive
	*s = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *ResponseSet) UnmarshalYAML(unmarshal func(any) error) error {
	var v any
	if err := unmarshal(&v); err != nil {
		return err
	}
	parsed, err := ParseResponseSet(v)
	if err != nil {
		return err
	}
	parsed.CaseSensitive = s.CaseSensitive
	*s = parsed
	return nil
}
