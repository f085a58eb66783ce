package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomchat/internal/chat"
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/driver/wsdriver"
	logpkg "github.com/vovakirdan/roomchat/internal/log"
)

type chatOptions struct {
	addr   string
	token  string
	roomID string
	user   core.User
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join a room on a running server and chat from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, root, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", "ws://localhost:8080/ws", "WebSocket address")
	flags.StringVar(&opts.token, "token", os.Getenv("ROOMCHAT_TOKEN"), "access token")
	flags.StringVar(&opts.roomID, "room", "general", "room to enter")
	flags.StringVar(&opts.user.ID, "user", "", "user id")
	flags.StringVar(&opts.user.FirstName, "first-name", "", "first name")
	flags.StringVar(&opts.user.LastName, "last-name", "", "last name")
	return cmd
}

func runChat(ctx context.Context, root *rootOptions, opts chatOptions, in io.Reader, out io.Writer) error {
	logger := logpkg.NewWithWriter(os.Stderr, root.levelOr("warn"), root.logFormat)

	user := opts.user
	if user.ID == "" && opts.token != "" {
		// The server replaces the placeholder with the token's subject.
		user.ID = "token"
	}

	factory := wsdriver.New(opts.addr,
		wsdriver.WithToken(opts.token),
		wsdriver.WithLogger(logger),
	)
	conn, err := chat.New(factory, user)
	if err != nil {
		return err
	}

	room, err := conn.EnterRoom(ctx, opts.roomID)
	if err != nil {
		return fmt.Errorf("enter room %s: %w", opts.roomID, err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := conn.Disconnect(disconnectCtx); err != nil {
			logger.Warn().Err(err).Msg("disconnect")
		}
	}()

	if err := room.OnMessage(func(msg core.Message) {
		fmt.Fprintf(out, "[%s] %s: %s\n", msg.TS.Local().Format(time.TimeOnly), msg.User.DisplayName(), msg.Content)
	}); err != nil {
		return err
	}
	if err := room.OnEnterRoom(func(u core.User, r core.Room) {
		fmt.Fprintf(out, "* %s entered %s\n", u.DisplayName(), r.ID)
	}); err != nil {
		return err
	}
	if err := room.OnLeaveRoom(func(u core.User, r core.Room) {
		fmt.Fprintf(out, "* %s left %s\n", u.DisplayName(), r.ID)
	}); err != nil {
		return err
	}

	fmt.Fprintf(out, "Connected to %s in room %s. Type messages and press Enter, /leave or Ctrl+C to exit.\n", opts.addr, opts.roomID)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			switch text {
			case "":
				continue
			case "/leave":
				return room.LeaveRoom(ctx)
			}
			if err := room.SendMessage(ctx, core.ChatMessage{Content: text}); err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
		}
	}
}
