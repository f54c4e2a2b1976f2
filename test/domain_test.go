package test

import (
	"testing"

	"github.com/Nidios1/zyea-chat-app-sub001/internal/domain"
)

func TestConversationType_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		typ      domain.ConversationType
		expected bool
	}{
		{
			name:     "Valid Type: Private",
			typ:      domain.ConversationTypePrivate,
			expected: true,
		},
		{
			name:     "Valid Type: Group",
			typ:      domain.ConversationTypeGroup,
			expected: true,
		},
		{
			name:     "Invalid Type: Unknown Value",
			typ:      domain.ConversationType("broadcast"),
			expected: false,
		},
		{
			name:     "Invalid Type: Empty String",
			typ:      domain.ConversationType(""),
			expected: false,
		},
		{
			name:     "Invalid Type: Wrong Case",
			typ:      domain.ConversationType("PRIVATE"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.typ.IsValid()
			if got != tt.expected {
				t.Errorf("IsValid() for type %q got = %v, want %v", tt.typ, got, tt.expected)
			}
		})
	}
}

func TestMessageType_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		typ      domain.MessageType
		expected bool
	}{
		{
			name:     "Valid Type: Text",
			typ:      domain.MessageTypeText,
			expected: true,
		},
		{
			name:     "Valid Type: Image",
			typ:      domain.MessageTypeImage,
			expected: true,
		},
		{
			name:     "Valid Type: Video",
			typ:      domain.MessageTypeVideo,
			expected: true,
		},
		{
			name:     "Invalid Type: Audio Not Supported",
			typ:      domain.MessageType("audio"),
			expected: false,
		},
		{
			name:     "Invalid Type: Empty String",
			typ:      domain.MessageType(""),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.typ.IsValid()
			if got != tt.expected {
				t.Errorf("IsValid() for type %q got = %v, want %v", tt.typ, got, tt.expected)
			}
		})
	}
}
