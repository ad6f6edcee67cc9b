// Command btchat is a line-oriented chat over a Bluetooth RFCOMM link.
//
// It listens for one peer on start and can dial another with /connect.
// Every line typed that is not a command is sent as-is; received bytes are
// printed as they arrive.
//
// Prerequisites for the bluez transport
//   - Linux with bluetoothd running and system D-Bus access.
//   - Adapter powered on: `bluetoothctl power on`.
//   - RegisterProfile usually needs root: run with sudo if it fails.
//   - Pairing an unknown device needs an Agent, e.g. a running bluetoothctl.
//
// Without Bluetooth, --transport memory chats with an in-process echo peer:
//
//	btchat --transport memory
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"bluetooth-chat/internal/chat"
	"bluetooth-chat/internal/config"
	"bluetooth-chat/internal/logging"
	"bluetooth-chat/internal/transport"
	"bluetooth-chat/internal/transport/bluez"
)

// echoName is the memory-transport address of the loopback peer.
const echoName = "echo"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "btchat: %v\n", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("btchat", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	kind := fs.StringP("transport", "t", "", `Transport: "bluez" or "memory"`)
	adapter := fs.StringP("adapter", "a", "", "BlueZ adapter, or the local name with --transport memory")
	name := fs.StringP("name", "n", "", "Service record name")
	target := fs.StringP("connect", "c", "", "Dial this address on start instead of waiting")
	connectTimeout := fs.Duration("connect-timeout", 0, "Bound on each outbound attempt (0 = config)")
	var verbose int
	fs.CountVarP(&verbose, "verbose", "v", "Increase verbosity (repeatable)")
	showHelp := fs.BoolP("help", "h", false, "Show this help")
	fs.Usage = func() { printUsage(fs) }

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showHelp {
		printUsage(fs)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	config.LoadFromEnv(cfg)
	if fs.Changed("transport") {
		cfg.Transport = *kind
	}
	if fs.Changed("adapter") {
		cfg.Adapter = *adapter
	}
	if fs.Changed("name") {
		cfg.Service.Name = *name
	}
	if fs.Changed("connect-timeout") {
		cfg.ConnectTimeout = *connectTimeout
	}
	if fs.Changed("verbose") {
		cfg.Verbose = verbose
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.Verbose)
	svc := transport.Service{Name: cfg.Service.Name, UUID: cfg.Service.UUID}

	var tr transport.Transport
	switch cfg.Transport {
	case config.TransportMemory:
		stopEcho, err := startEcho(svc, logger)
		if err != nil {
			return err
		}
		defer stopEcho()
		tr = transport.NewMemory(cfg.Adapter)
		if *target == "" {
			*target = echoName
		}
	default:
		bt := bluez.New(bluez.Options{
			Adapter:      cfg.Adapter,
			Channel:      uint16(cfg.Service.Channel),
			DiscoverUUID: cfg.Service.UUID,
			Logger:       logger,
		})
		defer bt.Close()
		tr = bt
	}

	con := newConsole(os.Stdout, stylesFor(os.Stdout))
	events := make(chan chat.Event, 256)
	mgr := chat.New(chat.Config{
		Transport:      tr,
		Service:        svc,
		Sink:           chat.ChannelSink(events),
		Logger:         logger,
		ReadBufferSize: cfg.ReadBufferSize,
		ConnectTimeout: cfg.ConnectTimeout,
	})

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		con.print(events)
	}()
	defer func() {
		mgr.Close()
		close(events)
		<-printed
	}()

	if *target != "" {
		if err := mgr.Connect(transport.Peer{Address: *target}); err != nil {
			return err
		}
	} else if err := mgr.Start(); err != nil {
		var f *chat.Failure
		if !errors.As(err, &f) {
			return err
		}
		// Already noticed and logged; /start retries.
	}

	r := &repl{mgr: mgr, tr: tr, con: con, scanTimeout: cfg.ScanTimeout}
	return r.run(ctx, os.Stdin)
}

// startEcho runs a manager on the memory transport that writes back
// everything it receives and relistens after each session.
func startEcho(svc transport.Service, logger *logging.Logger) (func(), error) {
	events := make(chan chat.Event, 256)
	mgr := chat.New(chat.Config{
		Transport: transport.NewMemory(echoName),
		Service:   svc,
		Sink:      chat.ChannelSink(events),
		Logger:    logger.Named(echoName),
	})
	go func() {
		for e := range events {
			if e.Kind == chat.EventDataReceived {
				mgr.Write(e.Data)
			}
		}
	}()
	stop := func() {
		mgr.Close()
		close(events)
	}
	if err := mgr.Start(); err != nil {
		stop()
		return nil, fmt.Errorf("echo peer: %w", err)
	}
	return stop, nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprint(os.Stderr, `btchat - point-to-point chat over Bluetooth RFCOMM

Usage:
  btchat [options]                     Listen for a peer
  btchat -c AA:BB:CC:DD:EE:FF          Dial a peer
  btchat --transport memory            Loopback demo with an echo peer

Options:
`)
	fs.PrintDefaults()
	fmt.Fprint(os.Stderr, `
Commands:
  /connect ADDR   dial ADDR (MAC or BlueZ device path)
  /start          listen for an inbound peer
  /stop           cancel everything
  /scan           list nearby devices offering the service
  /state          print the connection state
  /quit           exit
Any other line is sent to the peer.

Environment: BTCHAT_TRANSPORT, BTCHAT_ADAPTER, BTCHAT_SERVICE_NAME,
BTCHAT_SERVICE_UUID, BTCHAT_CHANNEL, BTCHAT_READ_BUFFER,
BTCHAT_CONNECT_TIMEOUT, BTCHAT_SCAN_TIMEOUT, BTCHAT_VERBOSE.
`)
}
