package mapper

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
)

const (
	matchSimple = "simple"
	matchRegex  = "regex"
)

// DynamicTemplate maps newly seen fields onto a user supplied definition
// when their name, path or detected kind match.
type DynamicTemplate struct {
	Name             string
	Match            string
	Unmatch          string
	PathMatch        string
	PathUnmatch      string
	MatchMappingType string
	MatchPattern     string
	Mapping          map[string]any

	regexes map[string]*regexp.Regexp
}

// NewDynamicTemplate builds a template from its declaration body.
func NewDynamicTemplate(name string, conf map[string]any) (*DynamicTemplate, error) {
	t := &DynamicTemplate{Name: name, MatchPattern: matchSimple}
	for key, v := range conf {
		switch key {
		case "match", "unmatch", "path_match", "path_unmatch", "match_mapping_type", "match_pattern":
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: dynamic template [%s] parameter [%s] must be a string", apperrors.ErrIllegalArgument, name, key)
			}
			switch key {
			case "match":
				t.Match = s
			case "unmatch":
				t.Unmatch = s
			case "path_match":
				t.PathMatch = s
			case "path_unmatch":
				t.PathUnmatch = s
			case "match_mapping_type":
				t.MatchMappingType = s
			case "match_pattern":
				t.MatchPattern = s
			}
		case "mapping":
			m, ok := asMap(v)
			if !ok {
				return nil, fmt.Errorf("%w: dynamic template [%s] mapping must be an object", apperrors.ErrIllegalArgument, name)
			}
			t.Mapping = m
		default:
			return nil, fmt.Errorf("%w: dynamic template [%s] has unsupported parameter [%s]", apperrors.ErrIllegalArgument, name, key)
		}
	}
	if t.Mapping == nil {
		return nil, fmt.Errorf("%w: dynamic template [%s] must declare a mapping", apperrors.ErrIllegalArgument, name)
	}
	if t.Match == "" && t.PathMatch == "" && t.MatchMappingType == "" {
		return nil, fmt.Errorf("%w: dynamic template [%s] must set match, path_match or match_mapping_type", apperrors.ErrIllegalArgument, name)
	}
	switch t.MatchPattern {
	case matchSimple:
	case matchRegex:
		t.regexes = make(map[string]*regexp.Regexp)
		for _, p := range []string{t.Match, t.Unmatch, t.PathMatch, t.PathUnmatch} {
			if p == "" {
				continue
			}
			re, err := regexp.Compile("^(?:" + p + ")$")
			if err != nil {
				return nil, fmt.Errorf("%w: dynamic template [%s] pattern [%s]: %v", apperrors.ErrIllegalArgument, name, p, err)
			}
			t.regexes[p] = re
		}
	default:
		return nil, fmt.Errorf("%w: dynamic template [%s] has unknown match_pattern [%s]", apperrors.ErrIllegalArgument, name, t.MatchPattern)
	}
	return t, nil
}

func (t *DynamicTemplate) patternMatch(pattern, value string) bool {
	if t.MatchPattern == matchRegex {
		return t.regexes[pattern].MatchString(value)
	}
	return simpleMatch(pattern, value)
}

// Matches reports whether the template applies to the field at path with
// simple name name. matchType is the detected kind; an empty matchType only
// matches templates without a match_mapping_type.
func (t *DynamicTemplate) Matches(path, name, matchType string) bool {
	if t.PathMatch != "" && !t.patternMatch(t.PathMatch, path) {
		return false
	}
	if t.Match != "" && !t.patternMatch(t.Match, name) {
		return false
	}
	if t.PathUnmatch != "" && t.patternMatch(t.PathUnmatch, path) {
		return false
	}
	if t.Unmatch != "" && t.patternMatch(t.Unmatch, name) {
		return false
	}
	if t.MatchMappingType != "" && t.MatchMappingType != "*" {
		if matchType == "" {
			return false
		}
		if !simpleMatch(t.MatchMappingType, matchType) {
			return false
		}
	}
	return true
}

// MappingType returns the type the template declares, falling back to
// dynamicType.
func (t *DynamicTemplate) MappingType(dynamicType string) string {
	if v, ok := t.Mapping["type"].(string); ok {
		return substitute(v, "", dynamicType)
	}
	return dynamicType
}

// MappingForName returns the template mapping with {name} and
// {dynamic_type} placeholders resolved.
func (t *DynamicTemplate) MappingForName(name, dynamicType string) map[string]any {
	return substituteMap(t.Mapping, name, dynamicType)
}

func (t *DynamicTemplate) toMap() map[string]any {
	body := map[string]any{"mapping": t.Mapping}
	if t.Match != "" {
		body["match"] = t.Match
	}
	if t.Unmatch != "" {
		body["unmatch"] = t.Unmatch
	}
	if t.PathMatch != "" {
		body["path_match"] = t.PathMatch
	}
	if t.PathUnmatch != "" {
		body["path_unmatch"] = t.PathUnmatch
	}
	if t.MatchMappingType != "" {
		body["match_mapping_type"] = t.MatchMappingType
	}
	if t.MatchPattern != matchSimple {
		body["match_pattern"] = t.MatchPattern
	}
	return map[string]any{t.Name: body}
}

func substitute(s, name, dynamicType string) string {
	if name != "" {
		s = strings.ReplaceAll(s, "{name}", name)
	}
	if dynamicType != "" {
		s = strings.ReplaceAll(s, "{dynamic_type}", dynamicType)
		s = strings.ReplaceAll(s, "{dynamicType}", dynamicType)
	}
	return s
}

func substituteMap(m map[string]any, name, dynamicType string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[substitute(k, name, dynamicType)] = substituteValue(v, name, dynamicType)
	}
	return out
}

func substituteValue(v any, name, dynamicType string) any {
	switch t := v.(type) {
	case string:
		return substitute(t, name, dynamicType)
	case map[string]any:
		return substituteMap(t, name, dynamicType)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = substituteValue(e, name, dynamicType)
		}
		return out
	}
	return v
}

// SimpleMatch matches value against a pattern where '*' matches any run of
// characters.
func SimpleMatch(pattern, value string) bool {
	return simpleMatch(pattern, value)
}

func simpleMatch(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	first := strings.IndexByte(pattern, '*')
	if first < 0 {
		return pattern == value
	}
	if first == 0 {
		if len(pattern) == 1 {
			return true
		}
		next := strings.IndexByte(pattern[1:], '*')
		if next < 0 {
			return strings.HasSuffix(value, pattern[1:])
		}
		part := pattern[1 : next+1]
		for i := strings.Index(value, part); i >= 0; {
			if simpleMatch(pattern[next+1:], value[i+len(part):]) {
				return true
			}
			j := strings.Index(value[i+1:], part)
			if j < 0 {
				break
			}
			i += j + 1
		}
		return false
	}
	return len(value) >= first &&
		pattern[:first] == value[:first] &&
		simpleMatch(pattern[first:], value[first:])
}

// parseTemplates decodes a dynamic_templates list: each entry is a single
// key object mapping the template name to its declaration.
func parseTemplates(v any) ([]*DynamicTemplate, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: dynamic_templates must be a list", apperrors.ErrIllegalArgument)
	}
	out := make([]*DynamicTemplate, 0, len(list))
	for _, entry := range list {
		m, ok := asMap(entry)
		if !ok || len(m) != 1 {
			return nil, fmt.Errorf("%w: each dynamic template must be an object with a single name", apperrors.ErrIllegalArgument)
		}
		for name, body := range m {
			conf, ok := asMap(body)
			if !ok {
				return nil, fmt.Errorf("%w: dynamic template [%s] must be an object", apperrors.ErrIllegalArgument, name)
			}
			t, err := NewDynamicTemplate(name, conf)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// LoadTemplates reads dynamic templates from YAML. The document is either
// the template list itself or an object with a dynamic_templates key.
func LoadTemplates(r io.Reader) ([]*DynamicTemplate, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding templates: %w", err)
	}
	if m, ok := asMap(doc); ok {
		doc = m["dynamic_templates"]
		if doc == nil {
			return nil, nil
		}
	}
	return parseTemplates(normalize(doc))
}

// asMap accepts both JSON and YAML shaped maps.
func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = e
		}
		return out, true
	}
	return nil, false
}

// normalize rewrites YAML decoded values into the shapes produced by
// encoding/json so definitions parse the same way from either source.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any, map[any]any:
		m, _ := asMap(t)
		out := make(map[string]any, len(m))
		for k, e := range m {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	}
	return v
}
