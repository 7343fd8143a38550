package server

// Responder produces the reply to one received text message. closing
// reports that the reply is the last one and the session should end.
type Responder interface {
	Respond(text string) (reply string, closing bool)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(text string) (string, bool)

func (f ResponderFunc) Respond(text string) (string, bool) { return f(text) }

// Echo replies Prefix+text to every message except Sentinel, which is
// answered with Farewell and ends the session.
type Echo struct {
	Prefix   string
	Sentinel string
	Farewell string
}

func DefaultEcho() Echo {
	return Echo{
		Prefix:   "Echo: ",
		Sentinel: "close",
		Farewell: "Closing connection. Good bye ;>",
	}
}

func (e Echo) Respond(text string) (string, bool) {
	if text == e.Sentinel {
		return e.Farewell, true
	}
	return e.Prefix + text, false
}
