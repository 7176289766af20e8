package dispatch

// ReplyKind says how a gateway should deliver a Response.
type ReplyKind int

const (
	// ReplyNone sends nothing; a pending button press is still acknowledged.
	ReplyNone ReplyKind = iota
	// ReplyAnswer is a short acknowledgement of a button press. Without a
	// button press to answer it is sent as a message.
	ReplyAnswer
	// ReplyMessage is a new chat message, optionally with Keyboard attached.
	ReplyMessage
	// ReplyKeyboard replaces the keyboard of the message whose button was
	// pressed. Without one it is sent as a new message carrying Text.
	ReplyKeyboard
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyNone:
		return "none"
	case ReplyAnswer:
		return "answer"
	case ReplyMessage:
		return "message"
	case ReplyKeyboard:
		return "keyboard"
	default:
		return "unknown"
	}
}

// Button is one inline keyboard button. Data decodes with DecodeAction.
type Button struct {
	Label string
	Data  string
}

// Response is the gateway-independent result of dispatching an action.
type Response struct {
	Kind     ReplyKind
	Text     string
	Keyboard [][]Button
}

func answer(text string) Response  { return Response{Kind: ReplyAnswer, Text: text} }
func message(text string) Response { return Response{Kind: ReplyMessage, Text: text} }
