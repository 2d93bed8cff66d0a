package funnel

import (
	"fmt"
	"regexp"
	"strings"
)

var rePlaceholder = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// LeadVars builds the substitution bag for a seeded session: well-known
// aliases first (first non-empty raw field wins), then every raw lead-data
// key on top. A nil bag yields nil, which disables substitution entirely.
func LeadVars(leadData map[string]any, ticketCode string) map[string]any {
	if leadData == nil {
		return nil
	}

	vars := map[string]any{
		"customer_name":    firstNonEmpty(leadData, "nome", "name"),
		"customer_email":   firstNonEmpty(leadData, "email"),
		"customer_phone":   firstNonEmpty(leadData, "contacto", "telefone", "phone"),
		"order_number":     ticketCode,
		"valor":            firstNonEmpty(leadData, "valor_solicitado", "valor"),
		"valor_emprestimo": firstNonEmpty(leadData, "valor_solicitado", "valor"),
	}
	for k, v := range leadData {
		vars[k] = v
	}
	return vars
}

// Substitute replaces every {{identifier}} occurrence with the matching
// value from vars. Identifiers are trimmed of surrounding whitespace.
// Unknown identifiers stay verbatim, braces included, so a typo is visible
// in production instead of silently vanishing. Substituted values are never
// re-scanned. A nil vars bag is a plain pass-through.
func Substitute(text string, vars map[string]any) string {
	if text == "" || vars == nil {
		return text
	}

	return rePlaceholder.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if value, ok := vars[name]; ok {
			return stringify(value)
		}
		return match
	})
}

func firstNonEmpty(data map[string]any, keys ...string) any {
	for _, k := range keys {
		v, ok := data[k]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		return v
	}
	return ""
}

func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// JSON numbers; render 2500 as "2500", not "2500.000000"
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
