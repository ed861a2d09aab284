// Package openai wraps Azure OpenAI chat completions.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/rpc"
)

const (
	APIVersion = "2024-10-21"
	// AuthHeader is the key header of Azure OpenAI resources.
	AuthHeader = "api-key"
	// MaxPromptSize bounds the characters of all messages in one request.
	MaxPromptSize = 100000
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tune one completion.
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// DefaultChatOptions mirrors the usual console chat settings.
var DefaultChatOptions = ChatOptions{Temperature: 0.7, MaxTokens: 1000, TopP: 1}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Completion is a chat completion response.
type Completion struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

func (c Completion) Validate() error {
	if len(c.Choices) == 0 {
		return errors.New("no choices in completion")
	}
	if c.Choices[0].Message.Role == "" {
		return errors.New("first choice has no message")
	}
	return nil
}

// Content returns the text of the first choice.
func (c Completion) Content() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Message.Content
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatRequest struct {
	Messages      []Message      `json:"messages"`
	Temperature   float64        `json:"temperature"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	TopP          float64        `json:"top_p,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

// Service calls a single chat deployment through a resilient client.
// The client must route the "openai" service to a provider configured with
// AuthHeader and APIVersion.
type Service struct {
	client     *rpc.Client
	deployment string
}

func New(client *rpc.Client, deployment string) *Service {
	return &Service{client: client, deployment: deployment}
}

// Chat sends messages and returns the completion.
func (s *Service) Chat(ctx context.Context, messages []Message, opts ChatOptions) (Completion, error) {
	op, err := s.chatOperation(domain.KindChatCompletion, messages, opts)
	if err != nil {
		return Completion{}, err
	}
	return rpc.Do[Completion](ctx, s.client, op)
}

func (s *Service) chatOperation(kind domain.OperationKind, messages []Message, opts ChatOptions) (rpc.Operation, error) {
	if s.deployment == "" {
		return rpc.Operation{}, domain.NewFailure(domain.FailureInvalidInput, "chat: no deployment configured")
	}
	if len(messages) == 0 {
		return rpc.Operation{}, domain.NewFailure(domain.FailureInvalidInput, "chat: no messages")
	}

	var prompt strings.Builder
	for _, m := range messages {
		prompt.WriteString(m.Content)
	}

	body := chatRequest{
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		TopP:        opts.TopP,
	}
	if kind == domain.KindChatStream {
		body.Stream = true
		body.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	path := fmt.Sprintf("/openai/deployments/%s/chat/completions", s.deployment)
	op := rpc.NewOperation(kind, prompt.String(), path, body)
	op.Override.MaxPayloadSize = MaxPromptSize
	return op, nil
}

// Conversation keeps a system prompt plus a bounded message history and a
// running token count. It is safe for concurrent use.
type Conversation struct {
	mu         sync.Mutex
	system     Message
	history    []Message
	maxHistory int
	tokens     int
}

// NewConversation creates a conversation keeping the last maxHistory
// messages (default 10) after the system prompt.
func NewConversation(systemPrompt string, maxHistory int) *Conversation {
	if maxHistory <= 0 {
		maxHistory = 10
	}
	return &Conversation{
		system:     Message{Role: RoleSystem, Content: systemPrompt},
		maxHistory: maxHistory,
	}
}

func (c *Conversation) add(m Message) {
	c.history = append(c.history, m)
	if len(c.history) > c.maxHistory {
		c.history = append([]Message(nil), c.history[len(c.history)-c.maxHistory:]...)
	}
}

// AddUser appends a user message.
func (c *Conversation) AddUser(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.add(Message{Role: RoleUser, Content: content})
}

// AddAssistant appends an assistant message.
func (c *Conversation) AddAssistant(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.add(Message{Role: RoleAssistant, Content: content})
}

// Messages returns the system prompt followed by the retained history.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, 0, len(c.history)+1)
	out = append(out, c.system)
	return append(out, c.history...)
}

// Tokens returns the total tokens reported across completions.
func (c *Conversation) Tokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// Clear drops the history and token count, keeping the system prompt.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	c.tokens = 0
}

// Send adds input as a user message, requests a completion over the
// conversation and records the reply. On failure the user message is
// kept so the caller can retry the turn with Resend.
func (s *Service) Send(ctx context.Context, conv *Conversation, input string, opts ChatOptions) (Completion, error) {
	conv.AddUser(input)
	return s.Resend(ctx, conv, opts)
}

// Resend requests a completion for the current conversation.
func (s *Service) Resend(ctx context.Context, conv *Conversation, opts ChatOptions) (Completion, error) {
	comp, err := s.Chat(ctx, conv.Messages(), opts)
	if err != nil {
		return Completion{}, err
	}
	conv.record(comp)
	return comp, nil
}

// SendStream is Send with the reply streamed to onDelta.
func (s *Service) SendStream(ctx context.Context, conv *Conversation, input string, opts ChatOptions, onDelta func(string)) (Completion, error) {
	conv.AddUser(input)
	comp, err := s.ChatStream(ctx, conv.Messages(), opts, onDelta)
	if err != nil {
		return Completion{}, err
	}
	conv.record(comp)
	return comp, nil
}

func (c *Conversation) record(comp Completion) {
	c.mu.Lock()
	c.add(comp.Choices[0].Message)
	c.tokens += comp.Usage.TotalTokens
	c.mu.Unlock()
}
