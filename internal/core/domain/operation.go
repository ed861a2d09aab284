package domain

import (
	"strings"
	"unicode/utf8"
)

// OperationKind names one logical remote call type.
type OperationKind string

const (
	KindPing OperationKind = "ping"

	// Azure AI Language
	KindSentiment         OperationKind = "language.sentiment"
	KindKeyPhrases        OperationKind = "language.key_phrases"
	KindLanguageDetection OperationKind = "language.detection"
	KindEntities          OperationKind = "language.entities"
	KindSummarize         OperationKind = "language.summarize"
	KindConversation      OperationKind = "language.conversation_summary"
	KindJobStatus         OperationKind = "language.job_status"

	// Azure AI Translator
	KindTranslate     OperationKind = "translator.translate"
	KindDetect        OperationKind = "translator.detect"
	KindTransliterate OperationKind = "translator.transliterate"
	KindLanguages     OperationKind = "translator.languages"

	// Azure AI Vision
	KindImageAnalysis OperationKind = "vision.analyze"

	// Azure OpenAI
	KindChatCompletion OperationKind = "openai.chat"
	KindChatStream     OperationKind = "openai.chat_stream"
)

// Service returns the part of the kind before the first dot ("language" for
// "language.sentiment"). Kinds without a dot have no service.
func (k OperationKind) Service() string {
	if i := strings.IndexByte(string(k), '.'); i > 0 {
		return string(k[:i])
	}
	return ""
}

// Payload is the caller input of an operation, measured for size limits and
// usage volume. Binary payloads are measured in bytes, text in characters.
type Payload struct {
	Text        string
	Data        []byte
	ContentType string
}

// TextPayload wraps a text input.
func TextPayload(text string) Payload {
	return Payload{Text: text}
}

// BinaryPayload wraps a binary input such as an image.
func BinaryPayload(data []byte, contentType string) Payload {
	if data == nil {
		data = []byte{}
	}
	return Payload{Data: data, ContentType: contentType}
}

// IsBinary reports whether the payload carries raw bytes.
func (p Payload) IsBinary() bool {
	return p.Data != nil
}

// Size returns bytes for binary payloads and characters for text.
func (p Payload) Size() int {
	if p.IsBinary() {
		return len(p.Data)
	}
	return utf8.RuneCountInString(p.Text)
}

// Empty reports whether there is nothing to send. Whitespace-only text is empty.
func (p Payload) Empty() bool {
	if p.IsBinary() {
		return len(p.Data) == 0
	}
	return strings.TrimSpace(p.Text) == ""
}
