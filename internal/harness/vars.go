package harness

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var varRef = regexp.MustCompile(`\$\{([^}]+)\}`)

const proposalRef = "proposal:"

// substitute replaces ${name} references in every string of v. A string
// that is exactly one reference keeps the variable's value as is.
func (h *Harness) substitute(ctx context.Context, v any) (any, error) {
	switch val := v.(type) {
	case string:
		var firstErr error
		out := varRef.ReplaceAllStringFunc(val, func(ref string) string {
			name := ref[2 : len(ref)-1]
			resolved, err := h.resolve(ctx, name)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			return resolved
		})
		if firstErr != nil {
			return nil, firstErr
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			r, err := h.substitute(ctx, elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			r, err := h.substitute(ctx, elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolve looks up one variable. proposal:A,B,C names the most recent
// proposal over exactly that intent set.
func (h *Harness) resolve(ctx context.Context, name string) (string, error) {
	if v, ok := h.vars[name]; ok {
		return v, nil
	}
	if !strings.HasPrefix(name, proposalRef) {
		return "", fmt.Errorf("undefined variable %q", name)
	}

	want := proposalAlias(strings.Split(strings.TrimPrefix(name, proposalRef), ","))
	proposals, err := h.settlement.Proposals(ctx, "")
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}
	id := ""
	var latest int64
	for _, p := range proposals {
		if proposalAlias(p.IntentIDs()) != want {
			continue
		}
		if ts := p.CreatedAt.UnixNano(); id == "" || ts > latest {
			id, latest = p.ID, ts
		}
	}
	if id == "" {
		return "", fmt.Errorf("no proposal over intents %s", strings.TrimPrefix(name, proposalRef))
	}
	h.aliases[id] = want
	return id, nil
}

// lookupPath walks a dotted path ("legs.0.status") through a JSON value.
func lookupPath(v any, path string) (any, bool) {
	cur := v
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
