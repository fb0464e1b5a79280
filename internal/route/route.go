// Package route identifies which upstream platform sent a webhook and knows
// where each platform puts the customer id and message text.
package route

import "strings"

// Route names the payload shape of an inbound webhook. It doubles as the
// conversation channel.
type Route string

const (
	Gorgias  Route = "gorgias"
	ManyChat Route = "manychat"
	Generic  Route = "generic"
)

func (r Route) String() string { return string(r) }

// Parse maps a raw value onto a known route. Anything unrecognized is Generic.
func Parse(s string) Route {
	switch Route(strings.ToLower(strings.TrimSpace(s))) {
	case Gorgias:
		return Gorgias
	case ManyChat:
		return ManyChat
	default:
		return Generic
	}
}

// Resolve picks the route from the ?route= query value, then the
// x-webhook-route header.
func Resolve(queryValue, headerValue string) Route {
	if v := strings.TrimSpace(queryValue); v != "" {
		return Parse(v)
	}
	return Parse(headerValue)
}
