package dialog

// Route says where a free-text reply goes.
type Route int

const (
	// RouteNone: no dialog is waiting for text.
	RouteNone Route = iota
	// RouteDirect: the reply quotes a known prompt.
	RouteDirect
	// RouteInferred: exactly one dialog waits for an amount.
	RouteInferred
	// RouteAmbiguous: several dialogs wait; the text is dropped.
	RouteAmbiguous
)

type Decision struct {
	Route  Route
	Handle Handle
}

// RouteText applies the free-text routing policy. replyTo is the dialog owning the quoted
// prompt, or empty when the message is not a reply to a known prompt.
func RouteText(replyTo Handle, waiting []Handle) Decision {
	switch {
	case replyTo != "":
		return Decision{Route: RouteDirect, Handle: replyTo}
	case len(waiting) == 1:
		return Decision{Route: RouteInferred, Handle: waiting[0]}
	case len(waiting) > 1:
		return Decision{Route: RouteAmbiguous}
	}
	return Decision{Route: RouteNone}
}
