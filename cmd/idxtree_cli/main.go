package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/sushant-115/idxtree/api/indexservice"
	"github.com/sushant-115/idxtree/core/indexmanager"
	"github.com/sushant-115/idxtree/pkg/logger"
	"github.com/sushant-115/idxtree/pkg/telemetry"
)

var (
	addr     = flag.String("addr", "", "Index server gRPC address; empty runs against an in-process index")
	timeout  = flag.Duration("timeout", 10*time.Second, "Per-command timeout")
	logLevel = flag.String("log_level", "warn", "Log level for the in-process index")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [command [args...]]\n\nWith no command, starts an interactive shell.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	index, closeIndex, err := openIndex()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeIndex()

	sh := &shell{index: index, out: os.Stdout}
	if args := flag.Args(); len(args) > 0 {
		if err := runOne(sh, args); err != nil && !errors.Is(err, errExit) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			closeIndex()
			os.Exit(1)
		}
		return
	}
	if err := interactive(sh); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}

// openIndex connects to a server, or builds an in-process manager when no
// address is given.
func openIndex() (indexmanager.RecordIndex, func(), error) {
	if *addr != "" {
		client, err := indexservice.Dial(*addr)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil
	}
	zlogger, err := logger.New(logger.Config{Level: *logLevel, Format: "console", OutputFile: "stderr", Service: "idxtree-cli"})
	if err != nil {
		return nil, nil, err
	}
	manager, err := indexmanager.NewTreeIndexManager(zlogger, telemetry.Noop())
	if err != nil {
		return nil, nil, err
	}
	return manager, func() {
		_ = manager.Close(context.Background())
		_ = zlogger.Sync()
	}, nil
}

func runOne(sh *shell, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	return sh.exec(ctx, args)
}

func interactive(sh *shell) error {
	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".idxtree_history")
	}
	items := make([]readline.PrefixCompleterInterface, 0, len(commands)+2)
	for name := range commands {
		items = append(items, readline.PcItem(name))
	}
	items = append(items, readline.PcItem("exit"), readline.PcItem("quit"))

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "idxtree> ",
		HistoryFile:     historyFile,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	sh.out = rl.Stdout()

	target := "in-process index"
	if *addr != "" {
		target = *addr
	}
	fmt.Fprintf(sh.out, "idxtree CLI connected to %s. Type 'help' for commands, 'exit' or 'quit' to leave.\n", target)
	for {
		line, err := rl.Readline()
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
		err = runOne(sh, strings.Fields(line))
		if errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(sh.out, "Error: %v\n", err)
		}
	}
}
