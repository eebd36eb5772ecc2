package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/arsaha28/ccp/internal/conversation"
	"github.com/arsaha28/ccp/internal/intent"
	"github.com/arsaha28/ccp/internal/session"
)

// replyGrace is added to the resolver timeout while waiting for an answer.
const replyGrace = 5 * time.Second

func newResolver(server string) intent.Resolver {
	if server == "" {
		return intent.Fallback{}
	}
	return intent.NewProxyClient(server)
}

// console serializes writes from the prompt loop and controller hooks.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func runChat(ctx context.Context, resolver intent.Resolver, o options, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	con := &console{out: out}
	replies := make(chan struct{}, 16)
	ctrl, err := conversation.New(conversation.Config{
		Resolver:       resolver,
		Session:        session.NewManager(o.agent),
		LanguageCode:   o.language,
		ResolveTimeout: o.timeout,
		Greeting:       conversation.GreetingText,
		Hooks: conversation.Hooks{
			OnMessage: func(m conversation.Message) {
				if m.Sender != conversation.SenderAgent {
					return
				}
				con.printf("agent> %s\n", m.Text)
				select {
				case replies <- struct{}{}:
				default:
				}
			},
		},
	})
	if err != nil {
		return err
	}
	runDone := make(chan error, 1)
	go func() { runDone <- ctrl.Run(ctx) }()
	defer func() {
		cancel()
		<-runDone
	}()

	if err := ctrl.NewConversation(ctx); err != nil {
		return err
	}

	waitReply := func() error {
		select {
		case <-replies:
			return nil
		case <-time.After(o.timeout + replyGrace):
			return errors.New("no reply from agent")
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	scanner := bufio.NewScanner(in)
	for {
		drain(replies)
		con.printf("you> ")
		if !scanner.Scan() {
			con.printf("\n")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			if err := ctrl.Submit(ctx, line, conversation.SourceText); err != nil {
				return err
			}
			if err := waitReply(); err != nil {
				con.printf("error: %v\n", err)
			}
			continue
		}

		cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
		switch cmd {
		case "quit", "exit":
			return nil
		case "new":
			if err := ctrl.NewConversation(ctx); err != nil {
				return err
			}
		case "agent":
			arg = strings.TrimSpace(arg)
			if arg == "" {
				con.printf("usage: /agent <id>\n")
				continue
			}
			if err := ctrl.SelectAgent(ctx, arg); err != nil {
				return err
			}
			if err := ctrl.NewConversation(ctx); err != nil {
				return err
			}
		case "actions":
			con.mu.Lock()
			printActions(out)
			con.mu.Unlock()
		default:
			err := ctrl.SubmitQuickAction(ctx, cmd)
			if errors.Is(err, conversation.ErrUnknownQuickAction) {
				con.printf("unknown command %q\n", line)
				continue
			}
			if err != nil {
				return err
			}
			if err := waitReply(); err != nil {
				con.printf("error: %v\n", err)
			}
		}
	}
}

func drain(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
