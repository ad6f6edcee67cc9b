package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"bluetooth-chat/internal/chat"
	"bluetooth-chat/internal/transport"
)

// controller is the part of *chat.Manager the REPL drives.
type controller interface {
	Start() error
	Stop() error
	Connect(peer transport.Peer) error
	Write(p []byte)
	CurrentState() chat.State
}

var errQuit = errors.New("quit")

type repl struct {
	mgr         controller
	tr          transport.Transport
	con         *console
	scanTimeout time.Duration
}

// run reads lines from in until EOF, /quit or ctx is done.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if err := r.handle(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				r.con.errorf("%v", err)
			}
		}
	}
}

// handle runs one input line: a slash command or a message to send.
func (r *repl) handle(ctx context.Context, line string) error {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		if r.mgr.CurrentState() != chat.StateConnected {
			return errors.New("not connected")
		}
		r.mgr.Write([]byte(line))
		return nil
	}

	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "connect", "c":
		if arg == "" {
			return errors.New("usage: /connect ADDR")
		}
		return r.mgr.Connect(transport.Peer{Address: arg})
	case "start":
		return r.mgr.Start()
	case "stop":
		return r.mgr.Stop()
	case "state":
		r.con.infof("state: %s", r.mgr.CurrentState())
		return nil
	case "scan":
		return r.scan(ctx)
	case "quit", "q", "exit":
		return errQuit
	case "help", "?":
		r.con.infof("commands: /connect ADDR, /start, /stop, /scan, /state, /quit")
		return nil
	default:
		return fmt.Errorf("unknown command /%s", cmd)
	}
}

func (r *repl) scan(ctx context.Context) error {
	d, ok := r.tr.(transport.Discoverer)
	if !ok {
		return errors.New("this transport cannot scan")
	}
	r.con.infof("scanning for %s...", r.scanTimeout)
	ctx, cancel := context.WithTimeout(ctx, r.scanTimeout)
	defer cancel()
	peers, err := d.Discover(ctx)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		r.con.infof("no devices found")
		return nil
	}
	for i, p := range peers {
		r.con.infof("[%d] %s %s", i, p.Address, p.Name)
	}
	return nil
}
