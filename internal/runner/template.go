package runner

import (
	"strings"

	"github.com/openmaw-ai/openmaw/pkg/value"
)

// expand resolves {{input}} and {{settings.KEY}} placeholders in a string.
func expand(s, input string, settings map[string]string) string {
	out := strings.ReplaceAll(s, "{{input}}", input)
	for k, v := range settings {
		out = strings.ReplaceAll(out, "{{settings."+k+"}}", v)
	}
	return out
}

// expandValue resolves placeholders recursively through an arbitrary JSON
// body template: strings expand in place, objects and arrays recurse,
// everything else passes through.
func expandValue(v value.Value, input string, settings map[string]string) value.Value {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.Str()
		return value.String(expand(s, input, settings))
	case value.KindObject:
		members := v.Members()
		for i := range members {
			members[i].Val = expandValue(members[i].Val, input, settings)
		}
		return value.Object(members...)
	case value.KindArray:
		elems := v.Elems()
		for i := range elems {
			elems[i] = expandValue(elems[i], input, settings)
		}
		return value.Array(elems...)
	}
	return v
}
