package generations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalRole(t *testing.T) {
	t.Parallel()
	tests := []struct {
		role string
		want Role
		ok   bool
	}{
		{"user", RoleUser, true},
		{"human", RoleUser, true},
		{"person", RoleUser, true},
		{"ai", RoleAssistant, true},
		{"agent", RoleAssistant, true},
		{"robot", RoleAssistant, true},
		{"assistant", RoleAssistant, true},
		{"system", RoleSystem, true},
		{"core", RoleSystem, true},
		{"base", RoleSystem, true},
		{"Human", "", false},
		{"tool", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			t.Parallel()
			got, ok := CanonicalRole(tt.role)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeMessages(t *testing.T) {
	t.Parallel()
	records := []any{
		map[string]any{"role": "human", "content": "hi"},
		"not an object",
		map[string]any{"role": "ai", "content": ""},
		map[string]any{"role": "wizard", "content": "dropped"},
		map[string]string{"role": "robot", "content": "hello"},
		Message{Role: RoleSystem, Content: "sys"},
		(*Message)(nil),
		&Message{Role: "base", Content: "base"},
		map[string]any{"role": "user", "content": 42},
	}
	got := NormalizeMessages(records)
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleSystem, Content: "base"},
	}, got)
}

func TestNormalizeMessages_Empty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, NormalizeMessages(nil))
	assert.NotNil(t, NormalizeMessages(nil))
}
