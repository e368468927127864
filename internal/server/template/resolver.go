package template

import (
	"fmt"
	"regexp"

	"fleetcmd/internal/types"
)

// placeholderPattern matches $Name tokens in a template body.
var placeholderPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// Resolve substitutes placeholder tokens in the template body with concrete
// values and returns the fully-resolved command string.
//
// Precedence per token: caller-supplied value, then declared default, then
// failure when the parameter is required. Tokens without a declared
// parameter and declared required parameters left without a value are
// rejected. Substitution is literal; the resolver does not interpret or
// sandbox the resulting command.
func Resolve(tpl *types.CommandTemplate, values map[string]string) (string, error) {
	declared := make(map[string]types.Parameter, len(tpl.Params))
	for _, p := range tpl.Params {
		declared[p.Name] = p
	}

	// Validate the body before touching anything else so a bad template
	// fails the whole batch with no partial work.
	var resolveErr error
	resolved := placeholderPattern.ReplaceAllStringFunc(tpl.Command, func(token string) string {
		if resolveErr != nil {
			return token
		}

		name := token[1:]
		param, ok := declared[name]
		if !ok {
			resolveErr = fmt.Errorf("%w: $%s", types.ErrUndeclaredPlaceholder, name)
			return token
		}

		if v, supplied := values[name]; supplied {
			return v
		}
		if param.Default != "" {
			return param.Default
		}
		if param.Required {
			resolveErr = fmt.Errorf("%w: %s", types.ErrMissingRequiredParameter, name)
			return token
		}
		return ""
	})
	if resolveErr != nil {
		return "", resolveErr
	}

	// Declared required parameters with no default must be supplied even
	// when the body no longer references them; templates are edited
	// elsewhere and may drift from their declarations.
	for _, p := range tpl.Params {
		if !p.Required || p.Default != "" {
			continue
		}
		if _, supplied := values[p.Name]; !supplied {
			return "", fmt.Errorf("%w: %s", types.ErrUnresolvedDeclaredParameter, p.Name)
		}
	}

	return resolved, nil
}

// Placeholders returns the distinct placeholder names referenced by a
// template body, in order of first appearance.
func Placeholders(body string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}
