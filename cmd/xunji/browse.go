package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"xunji/internal/domain"
)

// ConversationsCmd lists recent conversations.
type ConversationsCmd struct {
	Limit int `short:"n" long:"limit" description:"maximum number of conversations" default:"20"`

	app *app
}

func (c *ConversationsCmd) Execute(_ []string) error {
	a := c.app
	if err := a.setup(); err != nil {
		return err
	}
	convs, err := a.client.ListConversations(a.ctx, c.Limit)
	if err != nil {
		return err
	}
	tw := newTable(a.stdout, "ID", "UPDATED", "TITLE")
	for _, cv := range convs {
		tw.row(cv.ID, formatTime(cv.UpdatedAt.Time), cv.Title)
	}
	return tw.flush()
}

// MessagesCmd prints the messages of one conversation.
type MessagesCmd struct {
	Args struct {
		ConversationID string `positional-arg-name:"conversation-id" required:"yes"`
	} `positional-args:"yes"`

	app *app
}

func (c *MessagesCmd) Execute(_ []string) error {
	a := c.app
	if err := a.setup(); err != nil {
		return err
	}
	msgs, err := a.client.ConversationMessages(a.ctx, c.Args.ConversationID)
	if err != nil {
		return err
	}
	printMessages(a.stdout, msgs)
	return nil
}

// DeleteCmd deletes one conversation.
type DeleteCmd struct {
	Args struct {
		ConversationID string `positional-arg-name:"conversation-id" required:"yes"`
	} `positional-args:"yes"`

	app *app
}

func (c *DeleteCmd) Execute(_ []string) error {
	a := c.app
	if err := a.setup(); err != nil {
		return err
	}
	if err := a.client.DeleteConversation(a.ctx, c.Args.ConversationID); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "deleted %s\n", c.Args.ConversationID)
	return nil
}

// PathCmd prints the branch leading to a node.
type PathCmd struct {
	Args struct {
		NodeID string `positional-arg-name:"node-id" required:"yes"`
	} `positional-args:"yes"`

	app *app
}

func (c *PathCmd) Execute(_ []string) error {
	a := c.app
	if err := a.setup(); err != nil {
		return err
	}
	msgs, err := a.client.NodePath(a.ctx, c.Args.NodeID)
	if err != nil {
		return err
	}
	printMessages(a.stdout, msgs)
	return nil
}

// ModelsCmd manages model entries.
type ModelsCmd struct {
	Add     string `long:"add" description:"model name to add"`
	Display string `long:"display" description:"display name for --add"`
	Delete  string `long:"delete" description:"model entry ID to remove"`

	app *app
}

func (c *ModelsCmd) Execute(_ []string) error {
	a := c.app
	if err := a.setup(); err != nil {
		return err
	}
	switch {
	case c.Add != "":
		display := c.Display
		if display == "" {
			display = c.Add
		}
		m, err := a.client.CreateModel(a.ctx, domain.ModelConfigCreate{ModelName: c.Add, DisplayName: display})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "added %s (%s)\n", m.ModelName, m.ID)
		return nil
	case c.Delete != "":
		if err := a.client.DeleteModel(a.ctx, c.Delete); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "deleted %s\n", c.Delete)
		return nil
	}

	models, err := a.client.ListModels(a.ctx)
	if err != nil {
		return err
	}
	tw := newTable(a.stdout, "ID", "MODEL", "NAME")
	for _, m := range models {
		tw.row(m.ID, m.ModelName, m.DisplayName)
	}
	return tw.flush()
}

// HistoryCmd shows the local transcript.
type HistoryCmd struct {
	Limit int    `short:"n" long:"limit" description:"maximum number of exchanges" default:"20"`
	Show  string `long:"show" description:"print one exchange in full"`

	app *app
}

func (c *HistoryCmd) Execute(_ []string) error {
	a := c.app
	if err := a.setup(); err != nil {
		return err
	}
	store, err := a.transcript()
	if err != nil {
		return err
	}
	if store == nil {
		return domain.NewDomainError("history", domain.ErrNotConfigured, "history is disabled")
	}

	if c.Show != "" {
		ex, err := store.Get(a.ctx, c.Show)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "id:           %s\n", ex.ID)
		fmt.Fprintf(a.stdout, "time:         %s\n", formatTime(ex.CreatedAt))
		fmt.Fprintf(a.stdout, "channel:      %s\n", ex.Channel)
		fmt.Fprintf(a.stdout, "status:       %s\n", ex.Status)
		if ex.ConversationID != "" {
			fmt.Fprintf(a.stdout, "conversation: %s\n", ex.ConversationID)
		}
		if ex.Error != "" {
			fmt.Fprintf(a.stdout, "error:        %s\n", ex.Error)
		}
		fmt.Fprintf(a.stdout, "\n> %s\n\n%s\n", ex.Prompt, ex.Reply)
		return nil
	}

	list, err := store.List(a.ctx, c.Limit)
	if err != nil {
		return err
	}
	tw := newTable(a.stdout, "ID", "TIME", "CHANNEL", "STATUS", "PROMPT")
	for _, ex := range list {
		tw.row(ex.ID, formatTime(ex.CreatedAt), ex.Channel, ex.Status, truncate(ex.Prompt, 40))
	}
	return tw.flush()
}

func printMessages(w io.Writer, msgs []domain.Message) {
	for _, m := range msgs {
		fmt.Fprintf(w, "[%s] %s\n%s\n\n", m.Role, formatTime(m.CreatedAt.Time), m.Content)
	}
}

type table struct {
	tw *tabwriter.Writer
}

func newTable(w io.Writer, headers ...string) *table {
	t := &table{tw: tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)}
	t.row(headers...)
	return t
}

func (t *table) row(cols ...string) {
	fmt.Fprintln(t.tw, strings.Join(cols, "\t"))
}

func (t *table) flush() error { return t.tw.Flush() }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// truncate shortens s to n runes on one line.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
