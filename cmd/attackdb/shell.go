package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/renatospessotto/Trabalho-arquivos/internal/console"
)

const shellHelp = `commands:
  build <csv>
  list
  find <n> field value ... [<n> field value ...]
  delete <n> field value ... [<n> field value ...]
  insert <id> <year> <loss> <country> <attackType> <targetIndustry> <defense> ...
  update <n> field value ... <m> field value ... [...]
  index build | get <id>... | check | dump
  freelist
  stats
  backup <dir>
  help
  exit
values with spaces go in double quotes; NULO is an absent value`

func shellCompleter(names []string) *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(names)+2)
	for _, name := range names {
		if name == "index" {
			items = append(items, readline.PcItem("index",
				readline.PcItem("build"), readline.PcItem("get"),
				readline.PcItem("check"), readline.PcItem("dump")))
			continue
		}
		items = append(items, readline.PcItem(name))
	}
	items = append(items, readline.PcItem("help"), readline.PcItem("exit"))
	return readline.NewPrefixCompleter(items...)
}

// runShell reads commands from the terminal until exit or end of input.
func runShell(ctx context.Context, a *app) error {
	handlers := a.handlers()
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".attackdb_history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "attackdb> ",
		HistoryFile:     historyFile,
		AutoComplete:    shellCompleter(names),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}
	defer rl.Close()

	return shellLoop(ctx, a, handlers, rl.Readline)
}

// shellLoop dispatches each line read by next. A failed command is reported
// and the loop continues.
func shellLoop(ctx context.Context, a *app, handlers map[string]handler, next func() (string, error)) error {
	for {
		line, err := next()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		tokens, err := console.Tokenize(line)
		if err != nil {
			fmt.Fprintln(a.out, err)
			continue
		}
		name, args := tokens[0], tokens[1:]
		switch name {
		case "exit", "quit":
			return nil
		case "help":
			fmt.Fprintln(a.out, shellHelp)
			continue
		}
		h, ok := handlers[name]
		if !ok {
			fmt.Fprintf(a.out, "unknown command %q, try help\n", name)
			continue
		}
		a.logger.Debug("Shell command", zap.String("command", name), zap.Int("args", len(args)))
		_ = a.run(ctx, name, h, args)
	}
}
