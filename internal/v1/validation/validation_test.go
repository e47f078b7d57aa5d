package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode string // "" means valid
	}{
		{"simple name", "Alice", ""},
		{"empty", "", CodeDisplayNameEmpty},
		{"whitespace only", "   \t ", CodeDisplayNameEmpty},
		{"trimmed to valid", "  Bob  ", ""},
		{"exactly 50", strings.Repeat("a", 50), ""},
		{"51 chars", strings.Repeat("a", 51), CodeDisplayNameTooLong},
		{"surrounding spaces not counted", " " + strings.Repeat("a", 50) + " ", ""},
		{"unicode name", "Zoë Müller", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := DisplayName(tt.input)
			if tt.wantCode == "" {
				assert.Nil(t, ref)
				return
			}
			require.NotNil(t, ref)
			assert.Equal(t, tt.wantCode, ref.Code)
			assert.Equal(t, tt.input, ref.Value)
			assert.NotEmpty(t, ref.Reason)
		})
	}
}

func TestRoomID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode string
	}{
		{"simple id", "room-1", ""},
		{"underscores", "team_standup", ""},
		{"empty", "", CodeRoomIDEmpty},
		{"exactly 64", strings.Repeat("x", 64), ""},
		{"65 chars", strings.Repeat("x", 65), CodeRoomIDTooLong},
		{"single dot", "room.1", CodeRoomIDInvalidPattern},
		{"space", "room 1", CodeRoomIDInvalidPattern},
		{"unicode", "räum", CodeRoomIDInvalidPattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := RoomID(tt.input)
			if tt.wantCode == "" {
				assert.Nil(t, ref)
				return
			}
			require.NotNil(t, ref)
			assert.Equal(t, tt.wantCode, ref.Code)
		})
	}
}

func TestPassword(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode string
	}{
		{"empty", "", CodePasswordEmpty},
		{"3 chars", "abc", CodePasswordTooShort},
		{"exactly 4", "abcd", ""},
		{"exactly 128", strings.Repeat("p", 128), ""},
		{"129 chars", strings.Repeat("p", 129), CodePasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := Password(tt.input)
			if tt.wantCode == "" {
				assert.Nil(t, ref)
				return
			}
			require.NotNil(t, ref)
			assert.Equal(t, tt.wantCode, ref.Code)
		})
	}
}

func TestCustomType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode string
	}{
		{"simple", "chat.message", ""},
		{"hyphen and underscore", "game_move-1", ""},
		{"empty", "", CodeCustomTypeEmpty},
		{"exactly 32", strings.Repeat("c", 32), ""},
		{"33 chars", strings.Repeat("c", 33), CodeCustomTypeTooLong},
		{"slash", "chat/message", CodeCustomTypeInvalidPattern},
		{"space", "chat message", CodeCustomTypeInvalidPattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := CustomType(tt.input)
			if tt.wantCode == "" {
				assert.Nil(t, ref)
				return
			}
			require.NotNil(t, ref)
			assert.Equal(t, tt.wantCode, ref.Code)
		})
	}
}

func TestRefusalError(t *testing.T) {
	ref := RoomID("bad room")
	require.NotNil(t, ref)
	assert.Contains(t, ref.Error(), CodeRoomIDInvalidPattern)
}

func TestTrimDisplayName(t *testing.T) {
	assert.Equal(t, "Alice", TrimDisplayName("  Alice\t"))
}
