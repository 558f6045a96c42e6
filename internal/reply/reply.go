// Package reply renders request-handler outcomes to the wire format:
// "<verb> success[ <payload>]" or "<verb> error <reason>", a single
// plain sum type rendered by one formatter rather than a family of
// per-verb result types.
package reply

import "fmt"

// Reply is either a success, optionally carrying one payload token, or an
// error carrying a free-text reason.
type Reply struct {
	verb    string
	ok      bool
	payload string
	reason  string
}

// Ok builds a bare success reply: "<verb> success".
func Ok(verb string) Reply {
	return Reply{verb: verb, ok: true}
}

// OkWith builds a success reply carrying one payload token:
// "<verb> success <payload>".
func OkWith(verb, payload string) Reply {
	return Reply{verb: verb, ok: true, payload: payload}
}

// Err builds an error reply: "<verb> error <reason>".
func Err(verb, reason string) Reply {
	return Reply{verb: verb, ok: false, reason: reason}
}

// IsOk reports whether this is a success reply.
func (r Reply) IsOk() bool { return r.ok }

// String renders the reply to its wire form.
func (r Reply) String() string {
	if r.ok {
		if r.payload == "" {
			return fmt.Sprintf("%s success", r.verb)
		}
		return fmt.Sprintf("%s success %s", r.verb, r.payload)
	}
	return fmt.Sprintf("%s error %s", r.verb, r.reason)
}

// Bytes renders the reply as a wire frame.
func (r Reply) Bytes() []byte {
	return []byte(r.String())
}

// ProtocolError renders the generic unparseable-frame reply.
func ProtocolError(verb string) []byte {
	return []byte(fmt.Sprintf("error: Cannot parse command - %s", verb))
}
