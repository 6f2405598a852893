// Package bot turns inbound chat events into registration operations and
// renders the replies. It knows nothing about the messaging transport.
package bot

import "github.com/Belogorec/marsu-bot2/internal/model"

// EventKind discriminates inbound events
type EventKind int

const (
	EventCommand EventKind = iota + 1
	EventText
	EventButton
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventText:
		return "text"
	case EventButton:
		return "button"
	default:
		return "unknown"
	}
}

// Sender identifies who produced an event
type Sender struct {
	ID          model.ParticipantID
	Username    string
	DisplayName string
}

// Event is one inbound message, command or button press
type Event struct {
	Kind EventKind
	// Command is the keyword without the leading slash; Args is the rest
	Command string
	Args    string
	Text    string
	// Data is the opaque tag of a pressed button
	Data   string
	Sender Sender
	// Direct is true for one-to-one conversations with the bot
	Direct bool
}

// Button is an inline button; exactly one of Data or URL is set
type Button struct {
	Label string
	Data  string
	URL   string
}

// Reply is the outbound answer to an event
type Reply struct {
	Text    string
	Buttons [][]Button
}

// Button tags
const (
	ButtonStatus            = "status"
	ButtonCheckSubscription = "check_subscription"
	ButtonHelp              = "help"
)

// Commands
const (
	CommandStart  = "start"
	CommandStatus = "status"
	CommandStats  = "stats"
	CommandHelp   = "help"
)
