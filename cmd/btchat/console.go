package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"bluetooth-chat/internal/chat"
	"bluetooth-chat/internal/transport"
)

type styles struct {
	sent     lipgloss.Style
	received lipgloss.Style
	notice   lipgloss.Style
	state    lipgloss.Style
	err      lipgloss.Style
}

// stylesFor returns colored styles when f is a terminal and plain ones
// otherwise.
func stylesFor(f *os.File) styles {
	if !term.IsTerminal(int(f.Fd())) {
		return plainStyles()
	}
	return styles{
		sent:     lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		received: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		notice:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		state:    lipgloss.NewStyle().Faint(true),
		err:      lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

func plainStyles() styles {
	plain := lipgloss.NewStyle()
	return styles{sent: plain, received: plain, notice: plain, state: plain, err: plain}
}

// console serializes output from the event printer and the REPL.
type console struct {
	mu sync.Mutex
	w  io.Writer
	st styles

	// Touched only by print.
	peer transport.Peer
}

func newConsole(w io.Writer, st styles) *console {
	return &console{w: w, st: st}
}

func (c *console) line(s string) {
	c.mu.Lock()
	fmt.Fprintln(c.w, s)
	c.mu.Unlock()
}

func (c *console) infof(format string, args ...interface{}) {
	c.line(c.st.state.Render(fmt.Sprintf(format, args...)))
}

func (c *console) errorf(format string, args ...interface{}) {
	c.line(c.st.err.Render("error: " + fmt.Sprintf(format, args...)))
}

// print renders events until the channel is closed.
func (c *console) print(events <-chan chat.Event) {
	for e := range events {
		if s, ok := c.format(e); ok {
			c.line(s)
		}
	}
}

func (c *console) format(e chat.Event) (string, bool) {
	switch e.Kind {
	case chat.EventStateChanged:
		return c.st.state.Render("* " + e.State.String()), true
	case chat.EventPeerIdentified:
		c.peer = e.Peer
		if e.Peer.Name != "" && e.Peer.Name != e.Peer.Address {
			return c.st.state.Render(fmt.Sprintf("* peer %s (%s)", e.Peer.Name, e.Peer.Address)), true
		}
		return c.st.state.Render("* peer " + e.Peer.Address), true
	case chat.EventDataReceived:
		return c.st.received.Render(c.peer.String()+"> ") + string(e.Data), true
	case chat.EventDataSent:
		return c.st.sent.Render("me> ") + string(e.Data), true
	case chat.EventNotice:
		return c.st.notice.Render("! " + e.Text), true
	}
	return "", false
}
