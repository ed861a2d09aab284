package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vietddude/cogcall/internal/control"
	"github.com/vietddude/cogcall/internal/services/openai"
)

var (
	chatSystem      string
	chatMaxHistory  int
	chatTemperature float64
	chatMaxTokens   int
	chatStream      bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt...]",
	Short: "Chat with an Azure OpenAI deployment",
	Long: `With a prompt, chat sends one message and prints the reply. Without one it
starts an interactive session; /clear resets the history and /exit quits.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := openai.DefaultChatOptions
		opts.Temperature = chatTemperature
		opts.MaxTokens = chatMaxTokens

		withApp(func(ctx context.Context, app *control.App) error {
			conv := openai.NewConversation(chatSystem, chatMaxHistory)

			if len(args) > 0 {
				_, err := sendTurn(ctx, app.OpenAI, conv, strings.Join(args, " "), opts)
				return err
			}
			return chatLoop(ctx, app.OpenAI, conv, opts)
		})
	},
}

func chatLoop(ctx context.Context, svc *openai.Service, conv *openai.Conversation, opts openai.ChatOptions) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			conv.Clear()
			fmt.Println("History cleared.")
			continue
		}

		comp, err := sendTurn(ctx, svc, conv, input, opts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("Chat request failed", "error", err)
			continue
		}
		fmt.Printf("(tokens: %d this turn, %d total)\n", comp.Usage.TotalTokens, conv.Tokens())
	}
}

// sendTurn prints the reply, streaming it when --stream is set.
func sendTurn(ctx context.Context, svc *openai.Service, conv *openai.Conversation, input string, opts openai.ChatOptions) (openai.Completion, error) {
	if !chatStream {
		comp, err := svc.Send(ctx, conv, input, opts)
		if err == nil {
			fmt.Println(comp.Content())
		}
		return comp, err
	}

	comp, err := svc.SendStream(ctx, conv, input, opts, func(delta string) {
		fmt.Print(delta)
	})
	fmt.Println()
	return comp, err
}

func init() {
	chatCmd.Flags().StringVar(&chatSystem, "system", "You are a helpful assistant.", "system prompt")
	chatCmd.Flags().IntVar(&chatMaxHistory, "max-history", 10, "messages kept after the system prompt")
	chatCmd.Flags().Float64Var(&chatTemperature, "temperature", openai.DefaultChatOptions.Temperature, "sampling temperature")
	chatCmd.Flags().IntVar(&chatMaxTokens, "max-tokens", openai.DefaultChatOptions.MaxTokens, "maximum completion tokens")
	chatCmd.Flags().BoolVar(&chatStream, "stream", false, "print the reply as it is generated")
	rootCmd.AddCommand(chatCmd)
}
