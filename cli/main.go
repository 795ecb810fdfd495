// Command chatd-cli is an interactive chat client. It either owns the
// conversation locally and talks to the engine directly, or talks to a
// running chatd over WebSocket.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/chatd/internal/adapter/llm"
)

func main() {
	// Optional; flags and the environment still work without it.
	_ = godotenv.Load()
	log.SetFlags(log.Ltime)

	rootCmd := &cobra.Command{
		Use:   "chatd-cli",
		Short: "Interactive chat against an OpenAI-compatible engine",
	}

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Start a local chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			mock, _ := flags.GetBool("mock")
			engineURL, _ := flags.GetString("engine-url")
			apiKey, _ := flags.GetString("api-key")
			model, _ := flags.GetString("model")
			budget, _ := flags.GetInt("budget")
			system, _ := flags.GetString("system")
			loadPath, _ := flags.GetString("load")
			savePath, _ := flags.GetString("save")
			maxTokens, _ := flags.GetInt("max-tokens")

			mode := llm.ModeHTTP
			if mock {
				mode = llm.ModeMock
			}
			engine := llm.NewEngine(mode, engineURL, apiKey, 5*time.Minute)

			r := newREPL(engine, model, budget, cmd.OutOrStdout())
			r.savePath = savePath
			if maxTokens > 0 {
				r.opts.MaxTokens = &maxTokens
			}
			if loadPath != "" {
				if err := r.load(loadPath); err != nil {
					return fmt.Errorf("load %s: %w", loadPath, err)
				}
			}
			if system != "" {
				if err := r.conv.SetOrPrependSystemPrompt(system); err != nil {
					return err
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Starting chat session (/exit to quit, /save, /load, /system, /clear, /history)")
			fmt.Fprintln(cmd.OutOrStdout(), "----------------------------------------")
			return r.run(context.Background(), cmd.InOrStdin())
		},
	}

	chatCmd.Flags().Bool("mock", false, "Use the built-in mock engine")
	chatCmd.Flags().String("engine-url", envOr("ENGINE_URL", "http://localhost:8000"), "OpenAI-compatible engine base URL")
	chatCmd.Flags().String("api-key", os.Getenv("ENGINE_API_KEY"), "Engine API key")
	chatCmd.Flags().String("model", envOr("DEFAULT_MODEL", "default"), "Model name")
	chatCmd.Flags().Int("budget", 16384, "Context budget in prompt bytes (0 disables trimming)")
	chatCmd.Flags().String("system", "", "Set the system prompt")
	chatCmd.Flags().String("load", "", "Load a chat file at start")
	chatCmd.Flags().String("save", "", "Save the chat file on exit and on /save")
	chatCmd.Flags().Int("max-tokens", 0, "Max tokens per reply (0 means engine default)")

	wsCmd := &cobra.Command{
		Use:   "ws",
		Short: "Chat through a running chatd over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			model, _ := cmd.Flags().GetString("model")
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Connecting to %s...\n", addr)
			client, err := dialWS(addr, model)
			if err != nil {
				return err
			}
			defer client.Close()
			fmt.Fprintln(out, "Connected. Type a message and press Enter; /quit to exit.")

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "\n> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				input := strings.TrimSpace(scanner.Text())
				if input == "" {
					continue
				}
				if input == "/quit" {
					fmt.Fprintln(out, "Bye!")
					return nil
				}
				if err := client.send(input, out); err != nil {
					log.Printf("Send error: %v", err)
				}
				fmt.Fprintln(out)
			}
		},
	}
	wsCmd.Flags().String("addr", "ws://localhost:8080/v1/chat/ws", "WebSocket server address")
	wsCmd.Flags().String("model", "", "Model name")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(wsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
