package tui

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/mango-display/mango-display/internal/control"
	"github.com/mango-display/mango-display/internal/control/client"
)

const (
	defaultRefresh = 500 * time.Millisecond
	historyRows    = 5
	minimapCols    = 60
	minimapRows    = 12
)

// Renderer periodically polls the server and renders a textual dashboard.
type Renderer struct {
	Client  *client.Client
	Writer  io.Writer
	Refresh time.Duration
}

// New returns a renderer configured with sensible defaults.
func New(cli *client.Client, w io.Writer) *Renderer {
	return &Renderer{Client: cli, Writer: w, Refresh: defaultRefresh}
}

// Run starts the render loop until the context is cancelled. When the writer
// is not a terminal a single frame is written without screen control codes.
func (r *Renderer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.Writer == nil {
		r.Writer = os.Stdout
	}
	if r.Client == nil {
		return fmt.Errorf("tui renderer requires a control client")
	}

	cols, rows, interactive := terminalSize(r.Writer)
	st := NewStyles(r.Writer)
	if !interactive {
		_, err := io.WriteString(r.Writer, r.frame(ctx, st, cols, rows))
		return err
	}

	refresh := r.Refresh
	if refresh <= 0 {
		refresh = defaultRefresh
	}
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	fmt.Fprint(r.Writer, "\033[?25l")
	defer fmt.Fprint(r.Writer, "\033[?25h")

	r.draw(ctx, st)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.draw(ctx, st)
		}
	}
}

func (r *Renderer) draw(ctx context.Context, st Styles) {
	cols, rows, _ := terminalSize(r.Writer)
	var buf bytes.Buffer
	buf.WriteString("\033[H\033[2J")
	buf.WriteString(r.frame(ctx, st, cols, rows))
	fmt.Fprint(r.Writer, buf.String())
}

func (r *Renderer) frame(ctx context.Context, st Styles, cols, rows int) string {
	var buf bytes.Buffer
	buf.WriteString(st.Header.Render("mango-display, Ctrl+C to exit"))
	buf.WriteByte('\n')
	buf.WriteString(time.Now().Format(time.RFC1123))
	buf.WriteString("\n\n")

	status, err := r.Client.Outputs(ctx)
	if err != nil {
		buf.WriteString(st.Error.Render(fmt.Sprintf("error: %v", err)))
		buf.WriteByte('\n')
		return buf.String()
	}
	buf.WriteString(RenderTable(st, status))
	buf.WriteByte('\n')
	buf.WriteString(st.Border.Render(Minimap(st, status, min(cols-2, minimapCols), min(max(rows/3, 4), minimapRows))))
	buf.WriteByte('\n')

	history, err := r.Client.History(ctx)
	if err == nil && len(history.Entries) > 0 {
		buf.WriteString(renderHistory(st, history.Entries))
	}
	return buf.String()
}

func renderHistory(st Styles, entries []control.Activity) string {
	var buf bytes.Buffer
	buf.WriteString(st.Header.Render("Recent activity"))
	buf.WriteByte('\n')
	if len(entries) > historyRows {
		entries = entries[len(entries)-historyRows:]
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-8s %-5s %8s", e.Timestamp.Format("15:04:05"), e.Operation, e.Status, e.Duration.Round(time.Millisecond))
		if e.Path != "" {
			line += "  " + e.Path
		}
		if e.Error != "" {
			line = st.Error.Render(line + "  " + e.Error)
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.String()
}

// terminalSize reports the size of w when it is a terminal. Other writers
// get an 80x24 frame.
func terminalSize(w io.Writer) (cols, rows int, interactive bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 80, 24, false
	}
	cols, rows, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 80, 24, true
	}
	return cols, rows, true
}
