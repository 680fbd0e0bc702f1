// Command xunji is a terminal client for the Xunji chat backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"xunji/internal/domain"
)

// Options is the root command. The struct tags are interpreted by
// github.com/jessevdk/go-flags.
type Options struct {
	Config string `short:"f" long:"config" description:"config YAML path (default $XUNJI_CONFIG or ~/.xunji/config.yaml)"`

	Login         LoginCmd         `command:"login" description:"Sign in and store the access token"`
	Logout        LogoutCmd        `command:"logout" description:"Remove the stored access token"`
	Chat          ChatCmd          `command:"chat" description:"Chat with the assistant (single turn or interactive)"`
	OpenClaw      OpenClawCmd      `command:"openclaw" description:"Chat through an OpenClaw gateway"`
	Conversations ConversationsCmd `command:"conversations" description:"List recent conversations"`
	Messages      MessagesCmd      `command:"messages" description:"Print the messages of a conversation"`
	Delete        DeleteCmd        `command:"delete" description:"Delete a conversation"`
	Path          PathCmd          `command:"path" description:"Print the branch from the root to a node"`
	Models        ModelsCmd        `command:"models" description:"List, add or remove model entries"`
	History       HistoryCmd       `command:"history" description:"Show the local transcript"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run parses args, executes the selected command and returns the exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts := &Options{}
	a := newApp(ctx, &opts.Config, stdin, stdout, stderr)
	defer a.close()
	opts.bind(a)

	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "xunji"
	if _, err := parser.ParseArgs(args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, ferr.Message)
			return 0
		}
		if errors.As(err, &ferr) {
			fmt.Fprintln(stderr, ferr.Message)
			return 2
		}
		fmt.Fprintf(stderr, "error [%s]: %v\n", domain.ErrorCodeOf(err), err)
		return 1
	}
	return 0
}

// bind hands the shared application state to every command.
func (o *Options) bind(a *app) {
	o.Login.app = a
	o.Logout.app = a
	o.Chat.app = a
	o.OpenClaw.app = a
	o.Conversations.app = a
	o.Messages.app = a
	o.Delete.app = a
	o.Path.app = a
	o.Models.app = a
	o.History.app = a
}
