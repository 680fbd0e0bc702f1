package main

import (
	"bufio"
	"fmt"
	"strings"

	"xunji/internal/domain"
	"xunji/internal/infra/logger"
	"xunji/internal/usecase"
)

// ChatCmd sends one message with -q, or reads messages from stdin.
type ChatCmd struct {
	Query  string `short:"q" long:"query" description:"message to send; omit for an interactive session"`
	ConvID string `short:"c" long:"conv" description:"conversation ID to continue"`
	Parent string `short:"p" long:"parent" description:"node ID to reply under (defaults to the conversation tip)"`
	Model  string `short:"m" long:"model" description:"model name (overrides chat.model)"`
	Search bool   `long:"search" description:"enable web search"`
	RAG    bool   `long:"rag" description:"enable knowledge-base retrieval"`

	app *app
}

func (c *ChatCmd) Execute(_ []string) error {
	a := c.app
	if err := a.setup(); err != nil {
		return err
	}
	store, err := a.transcript()
	if err != nil {
		return err
	}

	opts := usecase.ChatOptions{
		Model:        a.cfg.Chat.Model,
		UserID:       a.cfg.Chat.UserID,
		EnableSearch: a.cfg.Chat.EnableSearch || c.Search,
		EnableRAG:    a.cfg.Chat.EnableRAG || c.RAG,
	}
	if c.Model != "" {
		opts.Model = c.Model
	}
	if opts.UserID == "" {
		if tok, err := a.tokens.Load(a.ctx); err == nil {
			opts.UserID = tok.UserID
		}
	}

	svc := usecase.NewChatService(a.client, store, opts, logger.Component(a.log, "chat"))
	if c.ConvID != "" || c.Parent != "" {
		svc.Resume(c.ConvID, c.Parent)
	}

	if c.Query != "" {
		return c.turn(svc, c.Query)
	}
	return interactive(a, func(line string) error {
		switch {
		case line == "/new":
			svc.Reset()
			fmt.Fprintln(a.stdout, "(new conversation)")
			return nil
		case strings.HasPrefix(line, "/model "):
			svc.SetModel(strings.TrimSpace(strings.TrimPrefix(line, "/model ")))
			return nil
		}
		return c.turn(svc, line)
	})
}

func (c *ChatCmd) turn(svc *usecase.ChatService, message string) error {
	a := c.app
	turn, err := svc.Send(a.ctx, message, a.stdout)
	fmt.Fprintln(a.stdout)
	if turn != nil && turn.Warnings > 0 {
		fmt.Fprintf(a.stderr, "(%d malformed frame(s) skipped)\n", turn.Warnings)
	}
	if err != nil {
		return err
	}
	conv := svc.Conversation()
	a.log.Debug("turn finished", "conversation_id", conv.ID, "parent_id", conv.ParentID)
	if c.Query != "" && conv.ID != "" {
		fmt.Fprintf(a.stderr, "conversation: %s  node: %s\n", conv.ID, conv.ParentID)
	}
	return nil
}

// OpenClawCmd chats through a configured OpenClaw gateway.
type OpenClawCmd struct {
	ConfigID string `long:"config-id" description:"OpenClaw config ID"`
	Query    string `short:"q" long:"query" description:"message to send; omit for an interactive session"`
	List     bool   `long:"list" description:"list the OpenClaw configs instead of chatting"`
	History  bool   `long:"history" description:"print the gateway-side history of --config-id"`
	Connect  bool   `long:"connect" description:"connect the gateway of --config-id before chatting"`

	app *app
}

func (c *OpenClawCmd) Execute(_ []string) error {
	a := c.app
	if err := a.setup(); err != nil {
		return err
	}

	if c.List {
		userID := a.cfg.Chat.UserID
		if tok, err := a.tokens.Load(a.ctx); err == nil && userID == "" {
			userID = tok.UserID
		}
		configs, err := a.client.ListOpenClawConfigs(a.ctx, userID)
		if err != nil {
			return err
		}
		tw := newTable(a.stdout, "ID", "NAME", "GATEWAY", "SSH")
		for _, cfg := range configs {
			tw.row(cfg.ID, cfg.DisplayName, cfg.GatewayURL, fmt.Sprint(cfg.UseSSH))
		}
		return tw.flush()
	}

	if c.ConfigID == "" {
		return domain.NewDomainError("openclaw", domain.ErrInvalidInput, "--config-id is required")
	}

	if c.History {
		items, err := a.client.OpenClawHistory(a.ctx, c.ConfigID)
		if err != nil {
			return err
		}
		for _, it := range items {
			var parts []string
			for _, p := range it.Content {
				if p.Text != "" {
					parts = append(parts, p.Text)
				}
			}
			fmt.Fprintf(a.stdout, "[%s] %s\n", it.Role, strings.Join(parts, " "))
		}
		return nil
	}

	if c.Connect {
		status, err := a.client.ConnectOpenClaw(a.ctx, c.ConfigID)
		if err != nil {
			return err
		}
		a.log.Info("openclaw connected", "config_id", c.ConfigID, "status", status)
	}

	store, err := a.transcript()
	if err != nil {
		return err
	}
	svc := usecase.NewChatService(a.client, store, usecase.ChatOptions{}, logger.Component(a.log, "openclaw"))
	send := func(message string) error {
		turn, err := svc.SendOpenClaw(a.ctx, c.ConfigID, message, a.stdout)
		fmt.Fprintln(a.stdout)
		if turn != nil && turn.Warnings > 0 {
			fmt.Fprintf(a.stderr, "(%d malformed frame(s) skipped)\n", turn.Warnings)
		}
		return err
	}
	if c.Query != "" {
		return send(c.Query)
	}
	return interactive(a, send)
}

// interactive reads one message per line until EOF or /quit. A failed
// turn is reported and the loop continues, except when the context is done.
func interactive(a *app, handle func(line string) error) error {
	sc := bufio.NewScanner(a.stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(a.stderr, "> ")
		if !sc.Scan() {
			fmt.Fprintln(a.stderr)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}
		if err := handle(line); err != nil {
			if a.ctx.Err() != nil {
				return err
			}
			fmt.Fprintf(a.stderr, "error [%s]: %v\n", domain.ErrorCodeOf(err), err)
		}
	}
}
