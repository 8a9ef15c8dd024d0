package prompt

import (
	"strings"
	"testing"
)

func TestBuild_Layout(t *testing.T) {
	b := NewBuilder(Vietnamese, "", 0)
	chunks := []string{
		"Tường lửa là hệ thống kiểm soát lưu lượng mạng vào và ra.",
		"Tường lửa có thể là phần cứng hoặc phần mềm.",
	}
	p := b.Build(chunks, " Tường lửa là gì? ")

	if !strings.HasPrefix(p, ImStart+"system\n") {
		t.Errorf("prompt should start with the system segment:\n%s", p)
	}
	if !strings.HasSuffix(p, AssistantDelimiter+"\n") {
		t.Errorf("prompt should end with the assistant placeholder:\n%s", p)
	}
	if !strings.Contains(p, chunks[0]+ContextSeparator+chunks[1]) {
		t.Error("chunks should be joined with the separator")
	}
	if !strings.Contains(p, "Câu hỏi: Tường lửa là gì?\n") {
		t.Error("question should be trimmed and labelled")
	}
	if !strings.Contains(p, b.Refusal()) {
		t.Error("refusal sentence should be part of the instruction")
	}
	if strings.Contains(p, "rỗng hoặc quá ngắn") {
		t.Error("normal context should not use the strict template")
	}
}

func TestBuild_StrictVariant(t *testing.T) {
	b := NewBuilder(English, "", 50)
	tests := []struct {
		name   string
		chunks []string
	}{
		{"empty", nil},
		{"short", []string{"too short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !b.IsStrict(tt.chunks) {
				t.Fatal("expected strict")
			}
			p := b.Build(tt.chunks, "What is a firewall?")
			if !strings.Contains(p, "empty or too short") {
				t.Errorf("strict template not used:\n%s", p)
			}
		})
	}
}

func TestNewBuilder_Defaults(t *testing.T) {
	b := NewBuilder("fr", "", 0)
	if b.Refusal() != "Tôi không có thông tin về câu hỏi này." {
		t.Errorf("unknown language should fall back to Vietnamese, got %q", b.Refusal())
	}
	custom := NewBuilder(English, "No answer.", 0)
	if custom.Refusal() != "No answer." {
		t.Errorf("custom refusal ignored: %q", custom.Refusal())
	}
}
