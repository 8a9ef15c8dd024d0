// Package prompt assembles ChatML prompts that restrict the model to supplied context.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ChatML role delimiters.
const (
	ImStart            = "<|im_start|>"
	ImEnd              = "<|im_end|>"
	AssistantDelimiter = ImStart + "assistant"
)

// ContextSeparator joins context chunks.
const ContextSeparator = "\n---\n"

// DefaultMinContextChars is the joined-context length below which the strict template is used.
const DefaultMinContextChars = 50

// Language selects the template set.
type Language string

const (
	Vietnamese Language = "vi"
	English    Language = "en"
)

type templates struct {
	refusal       string
	system        string
	strictSystem  string
	contextHeader string
	questionLabel string
}

var templateSets = map[Language]templates{
	Vietnamese: {
		refusal: "Tôi không có thông tin về câu hỏi này.",
		system: `Bạn là một trợ lý AI chuyên về an toàn thông tin. Hãy trả lời câu hỏi chỉ dựa trên thông tin tham khảo được cung cấp.

Quy tắc quan trọng:
- Chỉ sử dụng thông tin tham khảo, KHÔNG dùng kiến thức bên ngoài
- Trả lời ngắn gọn, súc tích và có cấu trúc rõ ràng
- KHÔNG lặp lại câu hỏi trong câu trả lời
- KHÔNG nhắc lại tiêu đề "Thông tin tham khảo" hay từ "ngữ cảnh"
- Nếu thông tin không đủ để trả lời, chỉ trả lời đúng một câu: "%s"`,
		strictSystem: `Bạn là một trợ lý AI chuyên về an toàn thông tin. Thông tin tham khảo dưới đây rỗng hoặc quá ngắn.

Quy tắc bắt buộc:
- KHÔNG được dùng kiến thức bên ngoài dưới bất kỳ hình thức nào
- KHÔNG được suy đoán hay bịa đặt
- Nếu thông tin tham khảo không trả lời trực tiếp câu hỏi, chỉ trả lời đúng một câu: "%s"
- KHÔNG thêm bất kỳ nội dung nào khác`,
		contextHeader: "Thông tin tham khảo:",
		questionLabel: "Câu hỏi:",
	},
	English: {
		refusal: "I don't have information about this question.",
		system: `You are an information security assistant. Answer the question using only the reference information provided.

Rules:
- Use only the reference information; do NOT use outside knowledge
- Answer concisely with a clear structure
- Do NOT repeat the question in the answer
- Do NOT restate the "Reference information" header or the word "context"
- If the information is insufficient, reply with exactly one sentence: "%s"`,
		strictSystem: `You are an information security assistant. The reference information below is empty or too short.

Mandatory rules:
- Do NOT use outside knowledge in any form
- Do NOT guess or invent facts
- Unless the reference information directly answers the question, reply with exactly one sentence: "%s"
- Do NOT add anything else`,
		contextHeader: "Reference information:",
		questionLabel: "Question:",
	},
}

// Builder renders prompts for one language.
type Builder struct {
	lang            Language
	refusal         string
	minContextChars int
}

// NewBuilder returns a builder for lang. An empty refusal uses the language default;
// minContextChars <= 0 uses DefaultMinContextChars. Unknown languages fall back to Vietnamese.
func NewBuilder(lang Language, refusal string, minContextChars int) *Builder {
	if _, ok := templateSets[lang]; !ok {
		lang = Vietnamese
	}
	if refusal == "" {
		refusal = templateSets[lang].refusal
	}
	if minContextChars <= 0 {
		minContextChars = DefaultMinContextChars
	}
	return &Builder{lang: lang, refusal: refusal, minContextChars: minContextChars}
}

// Refusal returns the fixed sentence used when the model must not answer.
func (b *Builder) Refusal() string {
	return b.refusal
}

// QuestionLabel returns the label placed before the question, which answers must not echo.
func (b *Builder) QuestionLabel() string {
	return templateSets[b.lang].questionLabel
}

// IsStrict reports whether chunks are too thin for the normal template.
func (b *Builder) IsStrict(chunks []string) bool {
	return utf8.RuneCountInString(JoinContext(chunks)) < b.minContextChars
}

// JoinContext joins chunks with ContextSeparator.
func JoinContext(chunks []string) string {
	return strings.Join(chunks, ContextSeparator)
}

// Build renders the system, user and assistant-placeholder segments.
func (b *Builder) Build(chunks []string, question string) string {
	t := templateSets[b.lang]
	system := t.system
	if b.IsStrict(chunks) {
		system = t.strictSystem
	}
	var sb strings.Builder
	sb.WriteString(ImStart + "system\n")
	sb.WriteString(fmt.Sprintf(system, b.refusal))
	sb.WriteString("\n" + ImEnd + "\n")
	sb.WriteString(ImStart + "user\n")
	sb.WriteString(t.contextHeader + "\n")
	sb.WriteString(JoinContext(chunks))
	sb.WriteString("\n\n" + t.questionLabel + " " + strings.TrimSpace(question))
	sb.WriteString("\n" + ImEnd + "\n")
	sb.WriteString(AssistantDelimiter + "\n")
	return sb.String()
}
