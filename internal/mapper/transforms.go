// Package mapper provides the asset transformation engine. It converts a
// source-shaped MetadataAsset into the shape a target system expects by
// applying the ordered rules of a mapping profile. Mapping is pure: no I/O,
// no side effects, identical input always yields an identical result.
package mapper

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Context carries the fixed inputs a transform may consult. It is derived
// from the profile and environment, never from mutable runtime state, so
// transforms stay deterministic.
type Context struct {
	// Environment is the deployment environment name (dev, staging, prod).
	Environment string
	// TargetSystem is the system the asset is being shaped for.
	TargetSystem string
	// TypeMap translates source column types to target column types.
	TypeMap map[string]string
}

// TransformFunc is a registered pure transformation. The arg is the part of
// the transform spec after the colon ("truncate:63" → arg "63").
type TransformFunc func(value, arg string, tc Context) (string, error)

// argValidator checks a transform argument at registration time so a bad
// spec fails as a ConfigurationError, never at runtime.
type argValidator func(arg string) error

func noArg(arg string) error {
	if arg != "" {
		return fmt.Errorf("unexpected argument %q", arg)
	}
	return nil
}

func requireArg(arg string) error {
	if arg == "" {
		return fmt.Errorf("argument required")
	}
	return nil
}

func intArg(arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return fmt.Errorf("argument must be a positive integer, got %q", arg)
	}
	return nil
}

// SplitSpec splits a transform spec "name:arg" into name and arg. An empty
// spec is a plain copy.
func SplitSpec(spec string) (name, arg string) {
	if spec == "" {
		return "identity", ""
	}
	if i := strings.IndexByte(spec, ':'); i >= 0 {
		return spec[:i], spec[i+1:]
	}
	return spec, ""
}

// builtins returns the closed table of built-in transforms together with
// their argument validators.
func builtins() (map[string]TransformFunc, map[string]argValidator) {
	fns := map[string]TransformFunc{
		"identity": func(v, _ string, _ Context) (string, error) {
			return v, nil
		},
		"upper": func(v, _ string, _ Context) (string, error) {
			return strings.ToUpper(v), nil
		},
		"lower": func(v, _ string, _ Context) (string, error) {
			return strings.ToLower(v), nil
		},
		"snake": func(v, _ string, _ Context) (string, error) {
			return toSnake(v), nil
		},
		"camel": func(v, _ string, _ Context) (string, error) {
			return toCamel(v), nil
		},
		"prefix": func(v, arg string, _ Context) (string, error) {
			return arg + v, nil
		},
		"suffix": func(v, arg string, _ Context) (string, error) {
			return v + arg, nil
		},
		"truncate": func(v, arg string, _ Context) (string, error) {
			n, err := strconv.Atoi(arg)
			if err != nil {
				return "", fmt.Errorf("truncate: bad length %q", arg)
			}
			return truncate(v, n), nil
		},
		"coerce": func(v, _ string, tc Context) (string, error) {
			if mapped, ok := tc.TypeMap[v]; ok {
				return mapped, nil
			}
			return "", fmt.Errorf("coerce: no mapping for type %q", v)
		},
		"env_prefix": func(v, _ string, tc Context) (string, error) {
			if tc.Environment == "" {
				return v, nil
			}
			return tc.Environment + "_" + v, nil
		},
	}
	checks := map[string]argValidator{
		"identity":   noArg,
		"upper":      noArg,
		"lower":      noArg,
		"snake":      noArg,
		"camel":      noArg,
		"prefix":     requireArg,
		"suffix":     requireArg,
		"truncate":   intArg,
		"coerce":     noArg,
		"env_prefix": noArg,
	}
	return fns, checks
}

// truncate cuts a string to at most n bytes without splitting runes.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8StartByte(s[n]) {
		n--
	}
	return s[:n]
}

func utf8StartByte(b byte) bool {
	return b&0xC0 != 0x80
}

// toSnake converts camelCase, PascalCase, kebab-case, and space-separated
// names to snake_case.
func toSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	prevLower := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '-' || r == '.':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
			prevLower = false
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	return b.String()
}

// toCamel converts snake_case, kebab-case, and space-separated names to
// camelCase.
func toCamel(s string) string {
	titler := cases.Title(language.Und, cases.NoLower)
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
	if len(parts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		b.WriteString(titler.String(p))
	}
	return b.String()
}
