package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/samber/lo"

	"github.com/memcli/memcli"
)

const (
	promptPrefix = "memcached ~ "
	// executeTimeout bounds a single line of interactive mode.
	executeTimeout = 10 * time.Second
)

var verbDescriptions = map[memcli.Verb]string{
	memcli.VerbSet:     "Store data under key",
	memcli.VerbAdd:     "Store data only if key does not exist",
	memcli.VerbReplace: "Store data only if key already exists",
	memcli.VerbAppend:  "Add data after the existing value",
	memcli.VerbPrepend: "Add data before the existing value",
	memcli.VerbGet:     "Get value by key",
	memcli.VerbGets:    "Get value and CAS token by key",
	memcli.VerbGat:     "Get value and update its expiration",
	memcli.VerbGats:    "Get value and CAS token and update its expiration",
}

type replCommander struct {
	client      commandDoer
	history     *history
	out         io.Writer
	exit        func(code int)
	suggestions []prompt.Suggest
}

func newREPLCommander(client commandDoer, h *history, out io.Writer) *replCommander {
	verbs := append(memcli.Verbs(memcli.CategoryStorage), memcli.Verbs(memcli.CategoryRetrieval)...)
	suggestions := lo.Map(verbs, func(v memcli.Verb, _ int) prompt.Suggest {
		return prompt.Suggest{Text: string(v), Description: verbDescriptions[v]}
	})
	suggestions = append(suggestions,
		prompt.Suggest{Text: "help", Description: "Show help message"},
		prompt.Suggest{Text: "exit", Description: "Exit the program"},
		prompt.Suggest{Text: "quit", Description: "Exit the program"},
	)

	return &replCommander{
		client:      client,
		history:     h,
		out:         out,
		exit:        os.Exit,
		suggestions: suggestions,
	}
}

func startInteractiveMode(client *memcli.Client) error {
	var h *history
	if dir := defaultConfigDir(); dir != "" {
		// interactive mode works without history
		h, _ = openHistory(dir, historyMaxLines)
	}
	defer func() { _ = h.close() }()

	r := newREPLCommander(client, h, os.Stdout)

	fmt.Println("Welcome to memcli interactive mode")
	fmt.Printf("Commands are sent to %s\n", client.Addr().Address)
	fmt.Println("Type 'exit' or 'quit' to exit")

	p := prompt.New(
		r.executor,
		r.completer,
		prompt.OptionTitle("memcli"),
		prompt.OptionPrefix(promptPrefix),
		prompt.OptionInputTextColor(prompt.Yellow),
		prompt.OptionHistory(h.lines()),
	)

	p.Run()
	return nil
}

// completer only suggests for the first word of the line.
func (r *replCommander) completer(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	if before == "" || strings.Contains(before, " ") {
		return []prompt.Suggest{}
	}

	return prompt.FilterHasPrefix(r.suggestions, d.GetWordBeforeCursor(), true)
}

func (r *replCommander) executor(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	if err := r.history.add(line); err != nil {
		_, _ = fmt.Fprintf(r.out, "Warning: %v\n", err)
	}

	args := strings.Fields(line)
	switch args[0] {
	case "help":
		r.handleHelp()
	case "exit", "quit":
		r.handleExit()
	default:
		ctx, cancel := context.WithTimeout(context.Background(), executeTimeout)
		defer cancel()

		if err := execute(ctx, r.client, r.out, args); err != nil {
			_, _ = fmt.Fprintf(r.out, "Error: %v\n", err)
		}
	}
}

func (r *replCommander) handleHelp() {
	_, _ = fmt.Fprintln(r.out, "Available commands:")
	for _, s := range r.suggestions {
		_, _ = fmt.Fprintf(r.out, "  %-8s %s\n", s.Text, s.Description)
	}
	_, _ = fmt.Fprintln(r.out)
	_, _ = fmt.Fprintln(r.out, "Usage:")
	_, _ = fmt.Fprintln(r.out, "  <set|add|replace|append|prepend> <key> <value>")
	_, _ = fmt.Fprintln(r.out, "  <get|gets|gat|gats> <key>")
}

func (r *replCommander) handleExit() {
	_, _ = fmt.Fprintln(r.out, "Bye!")
	_ = r.history.close()
	r.exit(0)
}
