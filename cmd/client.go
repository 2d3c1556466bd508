package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chatrelay/internal/app/client"
	"chatrelay/internal/app/transport"
	"chatrelay/internal/pkg/logx"
)

func newClientCmd() *cobra.Command {
	var addr, name string

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Starts a terminal chat client.",
		Long: "Starts a terminal chat client. Type text to chat, /nick NAME to pick or change\n" +
			"your name, /users to list who is online and /quit to leave.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logx.InitGlobalLogger(false)
			if err := logx.SetLevel("warn"); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runClient(ctx, addr, name, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "tcp://127.0.0.1:3042", "relay address, tcp://host:port or ws://host:port/ws")
	cmd.Flags().StringVar(&name, "name", "", "name to join with")

	return cmd
}

// printer serializes terminal output from the input and network goroutines.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

func runClient(ctx context.Context, addr, name string, in io.Reader, out io.Writer) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, err := client.Dial(dialCtx, addr, 0)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer c.Close()

	p := &printer{out: out}
	p.println("* connected to " + addr)

	if name != "" {
		if err := c.SetName(name); err != nil {
			return err
		}
	}

	disconnected := make(chan error, 1)
	go func() {
		for {
			msg, err := c.Receive()
			if err != nil {
				disconnected <- err
				return
			}
			p.println(client.Format(msg))
		}
	}()

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

		case err := <-disconnected:
			if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrClosed) || transport.IsExpectedClose(err) {
				p.println("* disconnected")
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)

		case line, ok := <-lines:
			if !ok {
				return nil
			}

			done, err := handleLine(c, p, line)
			if err != nil {
				p.println("! " + err.Error())
			}
			if done {
				return nil
			}
		}
	}
}

// handleLine executes one line of input and reports whether the client should exit.
func handleLine(c *client.Client, p *printer, line string) (bool, error) {
	command, err := client.ParseInput(line)
	if err != nil {
		return false, err
	}

	switch command.Kind {
	case client.CommandChat:
		return false, c.Chat(command.Arg)
	case client.CommandNick:
		return false, c.SetName(command.Arg)
	case client.CommandUsers:
		names := c.Roster().Names()
		if len(names) == 0 {
			p.println("* nobody else is here")
		} else {
			p.println("* online: " + strings.Join(names, ", "))
		}
		return false, nil
	case client.CommandQuit:
		return true, nil
	default:
		return false, nil
	}
}
