package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/SteelMorgan/cwtail/internal/domain"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const (
	missingGroup   = "missing name"
	missingMessage = "missing message"
	timeLayout     = "2006-01-02 15:04:05 UTC"
)

// Terminal prints events as "<group> <time> <message>" lines
type Terminal struct {
	mu      sync.Mutex
	out     io.Writer
	group   *color.Color
	stamp   *color.Color
	message *color.Color
}

// NewTerminal creates a terminal sink writing to out.
// Colors are enabled only when out is a terminal, unless noColor forces them off.
func NewTerminal(out io.Writer, noColor bool) *Terminal {
	t := &Terminal{
		out:     out,
		group:   color.New(color.FgHiCyan),
		stamp:   color.New(color.FgHiRed),
		message: color.New(color.FgHiGreen),
	}

	if noColor || !isTerminal(out) {
		t.group.DisableColor()
		t.stamp.DisableColor()
		t.message.DisableColor()
	} else {
		t.group.EnableColor()
		t.stamp.EnableColor()
		t.message.EnableColor()
	}

	return t
}

// Emit writes a single line for the event
func (t *Terminal) Emit(ctx context.Context, event domain.LogEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := fmt.Fprintf(t.out, "%s %s %s\n",
		t.group.Sprint(groupOrDefault(event.SourceGroup)),
		t.stamp.Sprint(event.Time().Format(timeLayout)),
		t.message.Sprint(messageOrDefault(event.Message)),
	)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

func groupOrDefault(name string) string {
	if name == "" {
		return missingGroup
	}
	return name
}

func messageOrDefault(msg string) string {
	msg = strings.TrimRight(msg, "\r\n")
	if msg == "" {
		return missingMessage
	}
	return msg
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
