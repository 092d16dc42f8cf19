package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"livechat/domain"
	"livechat/errors"
	"strings"

	"github.com/samber/lo"
)

const quitCommand = "/quit"

// Session is the part of runtime.Session driven by the prompt.
type Session interface {
	Join(ctx context.Context, rawName string) (domain.Participant, error)
	Send(ctx context.Context, text string) error
	Leave(ctx context.Context) error
}

// Errors after which the user can simply try again.
var recoverableErrors = []error{
	errors.ErrEmptyName,
	errors.ErrTooShort,
	errors.ErrNameTaken,
	errors.ErrConnection,
	errors.ErrEmptyText,
}

// Prompt reads a name, re-asked until a claim succeeds, then one message per line.
// It returns on /quit, at the end of in, when ctx is done or once lost is closed.
func Prompt(ctx context.Context, session Session, in io.Reader, out io.Writer, lost <-chan struct{}) error {
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

	joined := false
	fmt.Fprint(out, "Pick a name: ")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-lost:
			return errors.ErrTerminated
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == quitCommand {
				return session.Leave(ctx)
			}
			if !joined {
				participant, err := session.Join(ctx, line)
				if err != nil {
					if !recoverable(err) {
						return err
					}
					fmt.Fprintf(out, "%v\nPick a name: ", err)
					continue
				}
				joined = true
				fmt.Fprintf(out, "Welcome %s, type %s to leave\n", participant.DisplayName, quitCommand)
				continue
			}
			if err := session.Send(ctx, line); err != nil {
				if !recoverable(err) {
					return err
				}
				fmt.Fprintln(out, err)
			}
		}
	}
}

func recoverable(err error) bool {
	return lo.SomeBy(recoverableErrors, func(target error) bool { return stderrors.Is(err, target) })
}
