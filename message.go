package generations

// Role is a canonical chat role.
type Role string

// Canonical chat roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single canonical chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// roleSynonyms maps every accepted role spelling to its canonical role.
var roleSynonyms = map[string]Role{
	"user":   RoleUser,
	"human":  RoleUser,
	"person": RoleUser,
	"ai":     RoleAssistant,
	"agent":  RoleAssistant,
	"robot":  RoleAssistant,
	// assistant is accepted so canonical messages survive a second pass.
	"assistant": RoleAssistant,
	"system":    RoleSystem,
	"core":      RoleSystem,
	"base":      RoleSystem,
}

// CanonicalRole maps a role synonym to its canonical role. Matching is exact.
func CanonicalRole(role string) (Role, bool) {
	r, ok := roleSynonyms[role]
	return r, ok
}

// NormalizeMessages converts generic {role, content} records into canonical messages.
// Records may be Message, map[string]any or map[string]string values.
// Non-object records, records with empty content and unknown roles are dropped silently; order is kept.
func NormalizeMessages(records []any) []Message {
	out := make([]Message, 0, len(records))
	for _, rec := range records {
		role, content, ok := roleAndContent(rec)
		if !ok || content == "" {
			continue
		}
		r, ok := CanonicalRole(role)
		if !ok {
			continue
		}
		out = append(out, Message{Role: r, Content: content})
	}
	return out
}

func roleAndContent(rec any) (role, content string, ok bool) {
	switch m := rec.(type) {
	case Message:
		return string(m.Role), m.Content, true
	case *Message:
		if m == nil {
			return "", "", false
		}
		return string(m.Role), m.Content, true
	case map[string]string:
		return m["role"], m["content"], true
	case map[string]any:
		role, _ = m["role"].(string)
		content, _ = m["content"].(string)
		return role, content, true
	default:
		return "", "", false
	}
}
