package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/leofalp/tokenmeter/core/client"
	"github.com/leofalp/tokenmeter/core/cost"
	"github.com/leofalp/tokenmeter/internal/config"
	"github.com/leofalp/tokenmeter/providers/ai"
	"github.com/leofalp/tokenmeter/providers/ledger"
)

const usageText = `tokenmeter - Gemini from the terminal, with a running cost

Usage: tokenmeter <command> [options]

Commands:
  ask     Send one prompt (arguments or stdin) and print the answer
  chat    Interactive conversation with streamed answers
  stats   Show persisted usage for a day and in total
  reset   Delete persisted usage

Chat commands:
  /stats        Print the session totals
  /reset        Zero the session totals
  /key <value>  Switch to another API key
  /quit         Leave the chat

`

// run executes one command and returns the process exit code.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string, std streams) int {
	if len(args) == 0 {
		printUsage(std.err)
		return 2
	}

	command, rest := args[0], args[1:]
	if command == "help" || command == "-h" || command == "--help" {
		printUsage(std.out)
		return 0
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(std.err, "Error: %v\n", err)
		return 1
	}
	defer a.close()

	switch command {
	case "ask":
		err = a.ask(ctx, rest, std)
	case "chat":
		err = a.chat(ctx, rest, std)
	case "stats":
		err = a.stats(ctx, rest, std)
	case "reset":
		err = a.reset(ctx, std)
	default:
		fmt.Fprintf(std.err, "Error: unknown command %q\n\n", command)
		printUsage(std.err)
		return 2
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(std.err, "Error: %v\n", err)
		if errors.Is(err, client.ErrNotConfigured) {
			fmt.Fprintln(std.err, "Set GEMINI_API_KEY in the environment or in .env.")
		}
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
	fmt.Fprintln(w, config.Description())
}

func (a *app) ask(ctx context.Context, args []string, std streams) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(std.err)
	system := fs.String("system", "", "System instruction")
	showCost := fs.Bool("cost", true, "Print the cost of the request to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	prompt := strings.Join(fs.Args(), " ")
	if prompt == "" {
		data, err := readAll(std.in)
		if err != nil {
			return fmt.Errorf("read prompt: %w", err)
		}
		prompt = strings.TrimSpace(data)
	}
	if prompt == "" {
		return errors.New("empty prompt")
	}

	answer, err := a.client.Generate(ctx, prompt, *system)
	if err != nil {
		return err
	}
	fmt.Fprintln(std.out, answer)

	if *showCost {
		a.printLastCost(std.err)
	}
	return nil
}

func (a *app) chat(ctx context.Context, args []string, std streams) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(std.err)
	system := fs.String("system", "", "System instruction")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var history []ai.Message
	scanner := bufio.NewScanner(std.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(std.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return a.writeSession(std.out)
		case line == "/stats":
			if err := a.writeSession(std.out); err != nil {
				return err
			}
			continue
		case line == "/reset":
			a.accountant.Reset()
			fmt.Fprintln(std.out, "session totals reset")
			continue
		case strings.HasPrefix(line, "/key"):
			a.client.UpdateAPIKey(strings.TrimSpace(strings.TrimPrefix(line, "/key")))
			fmt.Fprintln(std.out, "API key updated")
			continue
		}

		answer, err := a.streamTurn(ctx, line, history, *system, std.out)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(std.err, "Error: %v\n", err)
			continue
		}
		history = append(history,
			ai.Message{Role: ai.RoleUser, Content: line},
			ai.Message{Role: ai.RoleAssistant, Content: answer},
		)

		if entry, ok := a.last.take(); ok {
			fmt.Fprintf(std.err, "[%s]\n", entry.Cost)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return a.writeSession(std.out)
}

// restartNotice separates an interrupted answer from its retried replacement.
const restartNotice = "\n[connection interrupted, restarting answer]\n"

// streamTurn prints chunks as they arrive and returns the full answer. When
// the request restarts mid-stream only the chunks of the final attempt are
// kept.
func (a *app) streamTurn(ctx context.Context, prompt string, history []ai.Message, system string, out io.Writer) (string, error) {
	var answer strings.Builder
	ctx = client.ContextWithRestartHook(ctx, func(attempt int, err error) {
		a.logger.Debug("stream restarted", slog.Int("attempt", attempt), slog.String("error", err.Error()))
		answer.Reset()
		fmt.Fprint(out, restartNotice)
	})
	for chunk, err := range a.client.GenerateStream(ctx, prompt, history, system) {
		if err != nil {
			fmt.Fprintln(out)
			return "", err
		}
		answer.WriteString(chunk)
		fmt.Fprint(out, chunk)
	}
	fmt.Fprintln(out)
	return answer.String(), nil
}

func (a *app) stats(ctx context.Context, args []string, std streams) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(std.err)
	day := fs.String("day", ledger.DayKey(time.Now()), "UTC day to report (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.ledger == nil {
		return errNoLedger
	}
	if _, err := time.Parse(time.DateOnly, *day); err != nil {
		return fmt.Errorf("invalid -day %q, use YYYY-MM-DD", *day)
	}

	rows, err := a.ledger.DailyReport(ctx, *day)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintf(std.out, "No usage recorded on %s\n", *day)
	} else if err := ledger.WriteRows(std.out, rows, a.pricing.Currency); err != nil {
		return err
	}

	totals, err := a.ledger.Totals(ctx)
	if err != nil {
		return err
	}
	if totals.Requests > 0 {
		fmt.Fprintf(std.out, "\nAll time (%s to %s): %d requests, %.6f %s\n",
			totals.FirstDay, totals.LastDay, totals.Requests, totals.Cost(), a.pricing.Currency)
	}
	return nil
}

func (a *app) reset(ctx context.Context, std streams) error {
	if a.ledger == nil {
		return errNoLedger
	}
	if err := a.ledger.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(std.out, "ledger cleared")
	return nil
}

func (a *app) printLastCost(w io.Writer) {
	entry, ok := a.last.take()
	if !ok {
		fmt.Fprintln(w, "usage metadata unavailable, cost not recorded")
		return
	}
	if err := cost.WriteBreakdown(w, entry.Kind, entry.Usage, entry.Cost, a.pricing); err != nil {
		a.logger.Warn("writing cost breakdown", slog.String("error", err.Error()))
	}
}

func (a *app) writeSession(w io.Writer) error {
	return cost.WriteReport(w, a.accountant.Snapshot(), a.pricing, time.Now())
}

func readAll(r io.Reader) (string, error) {
	if r == nil {
		return "", nil
	}
	data, err := io.ReadAll(r)
	return string(data), err
}
