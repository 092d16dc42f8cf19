package sink

import (
	"context"
	"fmt"
	"html"
	"io"
	"livechat/domain"
	"livechat/domain/event"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/microcosm-cc/bluemonday"
	"github.com/samber/lo"
)

const clockLayout = "15:04"

// Console renders the chat on a terminal.
// Names and texts are stripped of any markup before being printed.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	policy   *bluemonday.Policy
	location *time.Location
	colours  bool
}

func NewConsole(out io.Writer, location *time.Location, colours bool) *Console {
	if location == nil {
		location = time.Local
	}
	return &Console{
		out:      out,
		policy:   bluemonday.StrictPolicy(),
		location: location,
		colours:  colours,
	}
}

func (c *Console) Consume(_ context.Context, e event.DomainEvent) error {
	line, ok := c.render(e)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, line)
	return err
}

func (c *Console) render(e event.DomainEvent) (string, bool) {
	switch evt := e.(type) {
	case event.FeedEventReceived:
		return c.feedLine(evt.Event), true
	case event.RosterChanged:
		names := lo.Map(evt.Participants, func(p domain.Participant, _ int) string {
			return c.Sanitize(p.DisplayName)
		})
		return c.paint(fmt.Sprintf("Online (%d): %s", len(names), strings.Join(names, ", ")), color.FgCyan), true
	case event.ParticipantJoined:
		return c.paint("+ "+c.Sanitize(evt.Name), color.FgGreen), true
	case event.ParticipantLeft:
		return c.paint("- "+c.Sanitize(evt.Name), color.FgYellow), true
	case event.FatalError:
		return c.paint(evt.Message, color.FgRed, color.OpBold), true
	default:
		return "", false
	}
}

func (c *Console) feedLine(e domain.ChatEvent) string {
	stamp := c.Clock(e.At())
	switch evt := e.(type) {
	case domain.MessageEvent:
		return fmt.Sprintf("[%s] %s: %s", stamp, c.paint(c.Sanitize(evt.Author), color.FgMagenta, color.OpBold), c.Sanitize(evt.Text))
	case domain.StatusEvent:
		return c.paint(fmt.Sprintf("[%s] * %s", stamp, c.Sanitize(evt.Text)), color.FgGray)
	default:
		return fmt.Sprintf("[%s] %s", stamp, e.Key())
	}
}

// Clock formats t as HH:MM in the console location.
func (c *Console) Clock(t time.Time) string {
	if t.IsZero() {
		return "--:--"
	}
	return t.In(c.location).Format(clockLayout)
}

// Sanitize removes every tag from s and decodes its entities for plain text output.
func (c *Console) Sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(c.policy.Sanitize(html.UnescapeString(s))))
}

func (c *Console) paint(s string, colors ...color.Color) string {
	if !c.colours {
		return s
	}
	return color.New(colors...).Render(s)
}
