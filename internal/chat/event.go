package chat

import (
	"fmt"

	"bluetooth-chat/internal/transport"
)

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	EventStateChanged EventKind = iota + 1
	EventDataReceived
	EventDataSent
	EventPeerIdentified
	EventNotice
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "StateChanged"
	case EventDataReceived:
		return "DataReceived"
	case EventDataSent:
		return "DataSent"
	case EventPeerIdentified:
		return "PeerIdentified"
	case EventNotice:
		return "Notice"
	default:
		return "Unknown"
	}
}

// Notice texts surfaced to the observer.
const (
	NoticeDisconnected       = "Disconnected"
	NoticeConnectFailed      = "Can't connect to the device"
	NoticeAdapterUnavailable = "Bluetooth is not available"
)

// Event is a notification to the observer. Only the field matching Kind is
// set: State for EventStateChanged, Data for EventDataReceived and
// EventDataSent, Peer for EventPeerIdentified, Text for EventNotice.
// Data is never shared with the manager.
type Event struct {
	Kind  EventKind
	State State
	Data  []byte
	Peer  transport.Peer
	Text  string
}

func (e Event) String() string {
	switch e.Kind {
	case EventStateChanged:
		return fmt.Sprintf("%s(%s)", e.Kind, e.State)
	case EventDataReceived, EventDataSent:
		return fmt.Sprintf("%s(%q)", e.Kind, e.Data)
	case EventPeerIdentified:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Peer)
	case EventNotice:
		return fmt.Sprintf("%s(%q)", e.Kind, e.Text)
	default:
		return e.Kind.String()
	}
}

// Sink receives events. Emit is called from one delivery goroutine, one
// event at a time and in order. It may call any Manager method except Close,
// which waits for delivery to finish. A slow Emit delays later events but
// never the manager.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// ChannelSink delivers events to a channel. A full channel holds back later
// events, and Close, until it is drained.
type ChannelSink chan<- Event

func (c ChannelSink) Emit(e Event) { c <- e }

type nopSink struct{}

func (nopSink) Emit(Event) {}
