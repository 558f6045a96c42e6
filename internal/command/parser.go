// Package command tokenizes an incoming text frame into a verb and typed
// arguments, validated against a plain table of verb -> argument-type
// signature before a handler ever sees the command.
package command

import (
	"fmt"
	"strconv"
	"strings"
)

// ArgType names the types a verb's arguments can have.
type ArgType int

const (
	ArgString ArgType = iota
	ArgInt
	ArgFloat
)

// Signature is the verb table entry: zero or more typed arguments.
type Signature []ArgType

// Verbs is the recognized command grammar.
var Verbs = map[string]Signature{
	"new_user":           {ArgString, ArgString},
	"sign_in":            {ArgString, ArgString},
	"sign_out":           {},
	"new_farm":           {ArgString, ArgString},
	"connect_farm":       {ArgString, ArgString},
	"disconnect_farm":    {},
	"set_temperature":    {ArgFloat},
	"set_humidity":       {ArgInt},
	"set_light_interval": {ArgInt, ArgInt},
	"set_pump_interval":  {ArgInt, ArgInt},
}

// Command is a parsed request: the verb plus its arguments, already
// converted to the types Verbs declares for it.
type Command struct {
	Verb    string
	Strings []string
	Ints    []int64
	Floats  []float64

	// raw is the original frame, reused verbatim when a set_* handler
	// forwards the command text to a farm topic.
	raw string
}

// Raw returns the original frame text.
func (c *Command) Raw() string { return c.raw }

// ParseError is returned for an unknown verb, an arity mismatch, or a
// type-conversion failure - all three surface as a single generic frame
// naming the offending verb.
type ParseError struct {
	Verb string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error: Cannot parse command - %s", e.Verb)
}

// Parse tokenizes a single text frame into a Command. Grammar:
// VERB( WS ARG)*, ARG whitespace-delimited and bound per the verb's
// typed signature.
func Parse(frame string) (*Command, error) {
	fields := strings.Fields(frame)
	if len(fields) == 0 {
		return nil, &ParseError{Verb: ""}
	}

	verb := fields[0]
	sig, ok := Verbs[verb]
	if !ok {
		return nil, &ParseError{Verb: verb}
	}

	args := fields[1:]
	if len(args) != len(sig) {
		return nil, &ParseError{Verb: verb}
	}

	cmd := &Command{Verb: verb, raw: frame}
	for i, t := range sig {
		tok := args[i]
		switch t {
		case ArgString:
			cmd.Strings = append(cmd.Strings, tok)
		case ArgInt:
			n, err := strconv.ParseInt(tok, 10, 64)
			if err != nil {
				return nil, &ParseError{Verb: verb}
			}
			cmd.Ints = append(cmd.Ints, n)
		case ArgFloat:
			f, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, &ParseError{Verb: verb}
			}
			cmd.Floats = append(cmd.Floats, f)
		}
	}
	return cmd, nil
}
