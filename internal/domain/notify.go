package domain

// Signal names a change notification. Subscribers re-query the accessor
// that belongs to the signal.
type Signal int

// Change notifications.
const (
	SignalDescriptionChanged Signal = iota
	SignalDownloadingChanged
	SignalError
	SignalFileContentChanged
	SignalHasFileChanged
	SignalInfoTextChanged
	SignalUpdateSizeChanged
)

// String returns the string representation of the signal.
func (s Signal) String() string {
	switch s {
	case SignalDescriptionChanged:
		return "description_changed"
	case SignalDownloadingChanged:
		return "downloading_changed"
	case SignalError:
		return "error"
	case SignalFileContentChanged:
		return "file_content_changed"
	case SignalHasFileChanged:
		return "has_file_changed"
	case SignalInfoTextChanged:
		return "info_text_changed"
	case SignalUpdateSizeChanged:
		return "update_size_changed"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers. Err is only set for SignalError.
type Event struct {
	Signal Signal
	Err    *ErrorInfo
}

// Listener receives change notifications.
type Listener func(Event)

// Notifier fans events out to registered listeners in registration order.
// It is not safe for concurrent use; owners call it from the event loop.
type Notifier struct {
	listeners []Listener
}

// Subscribe registers a listener.
func (n *Notifier) Subscribe(l Listener) {
	if l == nil {
		return
	}
	n.listeners = append(n.listeners, l)
}

// Emit delivers an event to all listeners.
func (n *Notifier) Emit(e Event) {
	for _, l := range n.listeners {
		l(e)
	}
}

// EmitSignals delivers one event per signal.
func (n *Notifier) EmitSignals(signals ...Signal) {
	for _, s := range signals {
		n.Emit(Event{Signal: s})
	}
}

// EmitError delivers a SignalError event.
func (n *Notifier) EmitError(info ErrorInfo) {
	n.Emit(Event{Signal: SignalError, Err: &info})
}

// Reset drops all listeners.
func (n *Notifier) Reset() {
	n.listeners = nil
}
