package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"

	"github.com/xiaot623/gogo/chatd/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatd/internal/chatfile"
	"github.com/xiaot623/gogo/chatd/internal/domain"
)

// repl is an interactive session over a locally owned conversation.
type repl struct {
	engine   llm.Engine
	conv     *domain.Conversation
	model    string
	budget   int
	opts     llm.Options
	savePath string
	out      io.Writer
}

func newREPL(engine llm.Engine, model string, budget int, out io.Writer) *repl {
	return &repl{
		engine: engine,
		conv:   domain.NewConversation(),
		model:  model,
		budget: budget,
		out:    out,
	}
}

// load replaces the conversation with the chat file at path. A missing
// file leaves the conversation alone and is not an error.
func (r *repl) load(path string) error {
	conv, err := chatfile.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	r.conv = conv
	return nil
}

func (r *repl) save(path string) error {
	if path == "" {
		return errors.New("no save path; use /save <path> or --save")
	}
	return chatfile.Save(path, r.conv)
}

// run reads lines from in until EOF or /exit.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Fprint(r.out, "\nYou: ")
		if !scanner.Scan() {
			break
		}
		quit, err := r.handleLine(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintf(r.out, "\nError: %v\n", err)
		}
		if quit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if r.savePath != "" {
		return r.save(r.savePath)
	}
	return nil
}

// handleLine runs one command or chat turn.
func (r *repl) handleLine(ctx context.Context, line string) (bool, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return false, nil
	}

	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/exit", "/quit", "exit":
		return true, nil
	case "/clear":
		r.conv.ClearKeepSystem()
		fmt.Fprintln(r.out, "Conversation cleared.")
		return false, nil
	case "/system":
		if arg == "" {
			return false, errors.New("usage: /system <text>")
		}
		return false, r.conv.SetOrPrependSystemPrompt(arg)
	case "/save":
		path := arg
		if path == "" {
			path = r.savePath
		}
		if err := r.save(path); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Saved %d messages to %s\n", r.conv.Len(), path)
		return false, nil
	case "/load":
		read := chatfile.Load
		if rest, ok := strings.CutPrefix(arg, "--lenient"); ok {
			read = chatfile.LoadLenient
			arg = strings.TrimSpace(rest)
		}
		if arg == "" {
			return false, errors.New("usage: /load [--lenient] <path>")
		}
		conv, err := read(arg)
		if err != nil {
			return false, err
		}
		r.conv = conv
		fmt.Fprintf(r.out, "Loaded %d messages from %s\n", conv.Len(), arg)
		return false, nil
	case "/history":
		for _, msg := range r.conv.Messages() {
			fmt.Fprintf(r.out, "[%s] %s\n", msg.Role, msg.Content)
		}
		return false, nil
	}

	return false, r.turn(ctx, line)
}

// turn sends one user message. Interrupting the generation cancels it and
// leaves the conversation as it was before the message.
func (r *repl) turn(ctx context.Context, text string) error {
	msg, err := domain.NewMessage(domain.RoleUser, text)
	if err != nil {
		return err
	}

	work := r.conv.Clone()
	work.Append(msg)
	if dropped := llm.TrimToBudget(work, r.budget, llm.PromptSize); dropped > 0 {
		fmt.Fprintf(r.out, "(dropped %d old messages to fit the context)\n", dropped)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprint(r.out, "\nAssistant: ")
	gen, err := r.engine.GenerateStream(ctx, llm.NewPrompt(r.model, work, r.opts), func(fragment string) error {
		_, err := io.WriteString(r.out, fragment)
		return err
	})
	fmt.Fprintln(r.out)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("generation interrupted")
		}
		return err
	}

	reply, err := domain.NewMessage(domain.RoleAssistant, gen.Text)
	if err != nil {
		return err
	}
	work.Append(reply)
	r.conv = work
	return nil
}
