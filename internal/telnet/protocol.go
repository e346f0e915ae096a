// Package telnet is the minimal telnet transport telfence runs its
// sessions over.  It separates IAC command sequences from the data
// channel, hands every option negotiation to a Negotiator, and refuses
// whatever the Negotiator leaves alone.  It does not implement any
// telnet option itself.
package telnet

import "fmt"

// Command is a telnet command byte (RFC 854).
type Command byte

const (
	SE   Command = 240 // end of subnegotiation
	NOP  Command = 241
	DM   Command = 242 // data mark
	BRK  Command = 243
	IP   Command = 244 // interrupt process
	AO   Command = 245 // abort output
	AYT  Command = 246 // are you there
	EC   Command = 247 // erase character
	EL   Command = 248 // erase line
	GA   Command = 249 // go ahead
	SB   Command = 250 // start of subnegotiation
	WILL Command = 251
	WONT Command = 252
	DO   Command = 253
	DONT Command = 254
	IAC  Command = 255
)

// Options telfence refers to by name.  Every other code is just a
// number as far as this package is concerned.
const (
	OptEcho            byte = 1
	OptSuppressGoAhead byte = 3
	OptTerminalType    byte = 24
	OptNAWS            byte = 31
)

var commandNames = map[Command]string{
	SE: "SE", NOP: "NOP", DM: "DM", BRK: "BRK", IP: "IP", AO: "AO",
	AYT: "AYT", EC: "EC", EL: "EL", GA: "GA", SB: "SB",
	WILL: "WILL", WONT: "WONT", DO: "DO", DONT: "DONT", IAC: "IAC",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CMD(%d)", byte(c))
}

// Signal is one decoded out-of-band message: an option negotiation
// (WILL, WONT, DO, DONT) or a subnegotiation (SB) with its payload.
type Signal struct {
	Command Command
	Option  byte
	Data    []byte // subnegotiation payload with IAC IAC unescaped
}

func (s Signal) String() string {
	if s.Command == SB {
		return fmt.Sprintf("SB %d (%d bytes)", s.Option, len(s.Data))
	}
	return fmt.Sprintf("%s %d", s.Command, s.Option)
}

// Negotiator receives every decoded Signal.  It returns the bytes to
// send back (nil for none) and handled=true, or handled=false to let
// the Conn apply its default refusal policy.
type Negotiator func(sig Signal) (reply []byte, handled bool)

// Refusal returns the default reply for sig: WONT for a DO and DONT for
// a WILL.  Everything else gets no reply.
func Refusal(sig Signal) []byte {
	switch sig.Command {
	case DO:
		return []byte{byte(IAC), byte(WONT), sig.Option}
	case WILL:
		return []byte{byte(IAC), byte(DONT), sig.Option}
	}
	return nil
}
