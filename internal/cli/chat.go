package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"chat-client/internal/api"
	"chat-client/internal/identity"
	"chat-client/internal/models"
	"chat-client/internal/room"
)

var flagChatRoom int

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join a chatroom in an interactive session",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().IntVar(&flagChatRoom, "room", 0, "chatroom to join")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := newSession(a.engine, a.directory, a.identity, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if flagChatRoom != 0 {
		if err := a.engine.Activate(ctx, flagChatRoom); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(s.out, "no chatroom selected, use /rooms and /join ID")
	}
	return s.run(ctx, cmd.InOrStdin())
}

var errUnknownCommand = errors.New("unknown command, try /help")

type chatEngine interface {
	Activate(ctx context.Context, chatroomID int) error
	Send(in models.SendInput) error
	Retry(msg models.Message) error
	Snapshot() room.View
	Watch() (<-chan room.View, func())
}

type roomLister interface {
	List(ctx context.Context) ([]models.Chatroom, error)
}

type identityStore interface {
	Load() (identity.Identity, error)
	Rename(name string) (identity.Identity, error)
}

// session is the interactive REPL. Input handling and rendering share one
// goroutine so output lines never interleave.
type session struct {
	engine   chatEngine
	rooms    roomLister
	ids      identityStore
	out      io.Writer
	me       identity.Identity
	printer  *printer
	notifier *room.Notifier
}

func newSession(engine chatEngine, rooms roomLister, ids identityStore, out io.Writer) (*session, error) {
	me, err := ids.Load()
	if err != nil {
		return nil, err
	}
	s := &session{
		engine:  engine,
		rooms:   rooms,
		ids:     ids,
		out:     out,
		me:      me,
		printer: newPrinter(out),
	}
	s.notifier = room.NewNotifier(me.UserUID, func(models.Message) {
		fmt.Fprint(out, "\a")
	})
	fmt.Fprintf(out, "you are %s\n", me.UserName)
	return s, nil
}

func (s *session) run(ctx context.Context, in io.Reader) error {
	views, stop := s.engine.Watch()
	defer stop()

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case view, ok := <-views:
			if !ok {
				return nil
			}
			s.printer.render(view)
			s.notifier.Observe(view)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := s.handle(ctx, line)
			if err != nil {
				fmt.Fprintf(s.out, "! %s\n", api.ErrorMessage(err))
			}
			if quit {
				return nil
			}
		}
	}
}

func (s *session) handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, s.engine.Send(models.SendInput{Body: line, UserName: s.me.UserName, UserUID: s.me.UserUID})
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch command {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(s.out, "commands: /rooms, /join ID, /retry, /name NAME, /quit")
		return false, nil
	case "/rooms":
		rooms, err := s.rooms.List(ctx)
		if err != nil {
			return false, err
		}
		printRooms(s.out, rooms, s.engine.Snapshot().ChatroomID)
		return false, nil
	case "/join":
		chatroomID, err := strconv.Atoi(arg)
		if err != nil || chatroomID <= 0 {
			return false, fmt.Errorf("usage: /join ID")
		}
		return false, s.engine.Activate(ctx, chatroomID)
	case "/retry":
		return false, s.retryLatest()
	case "/name":
		me, err := s.ids.Rename(arg)
		if err != nil {
			return false, err
		}
		s.me = me
		s.notifier.SetUser(me.UserUID)
		fmt.Fprintf(s.out, "you are now %s\n", me.UserName)
		return false, nil
	default:
		return false, errUnknownCommand
	}
}

func (s *session) retryLatest() error {
	msgs := s.engine.Snapshot().Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Status == models.StatusFailed {
			return s.engine.Retry(msgs[i])
		}
	}
	fmt.Fprintln(s.out, "nothing to retry")
	return nil
}
