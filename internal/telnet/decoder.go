package telnet

// maxSubneg bounds how much subnegotiation payload is buffered; excess
// bytes are discarded.
const maxSubneg = 4096

type decodeState int

const (
	stData    decodeState = iota
	stCR                  // data CR seen, a NUL may follow
	stIAC                 // IAC seen
	stOption              // IAC WILL/WONT/DO/DONT seen, option byte next
	stSubOpt              // IAC SB seen, option byte next
	stSubData             // inside a subnegotiation
	stSubIAC              // IAC seen inside a subnegotiation
)

// decoder splits a raw telnet byte stream into data and Signals.  Its
// state carries across calls so sequences split between two reads are
// decoded correctly.
type decoder struct {
	state  decodeState
	cmd    Command
	subOpt byte
	sub    []byte
}

// decode consumes in, writes data-channel bytes to out and calls emit
// for every complete Signal in stream order.  out must be at least as
// long as in.  It returns the number of data bytes written.
func (d *decoder) decode(in, out []byte, emit func(Signal)) int {
	n := 0
	for i := 0; i < len(in); {
		b := in[i]

		switch d.state {
		case stCR:
			d.state = stData
			if b == 0 {
				i++
				continue
			}
			// Anything else is ordinary data after a bare CR.
			continue

		case stData:
			switch {
			case b == byte(IAC):
				d.state = stIAC
			case b == '\r':
				out[n] = b
				n++
				d.state = stCR
			default:
				out[n] = b
				n++
			}

		case stIAC:
			switch Command(b) {
			case IAC:
				out[n] = b
				n++
				d.state = stData
			case WILL, WONT, DO, DONT:
				d.cmd = Command(b)
				d.state = stOption
			case SB:
				d.state = stSubOpt
			default:
				// NOP, GA, DM and the other two-byte commands carry
				// nothing a command client acts on.
				d.state = stData
			}

		case stOption:
			d.state = stData
			emit(Signal{Command: d.cmd, Option: b})

		case stSubOpt:
			d.subOpt = b
			d.sub = d.sub[:0]
			d.state = stSubData

		case stSubData:
			if b == byte(IAC) {
				d.state = stSubIAC
			} else {
				d.appendSub(b)
			}

		case stSubIAC:
			switch Command(b) {
			case IAC:
				d.appendSub(b)
				d.state = stSubData
			case SE:
				d.state = stData
				payload := make([]byte, len(d.sub))
				copy(payload, d.sub)
				emit(Signal{Command: SB, Option: d.subOpt, Data: payload})
			default:
				// Unterminated subnegotiation: drop it and treat the
				// byte as the command following a fresh IAC.
				d.state = stIAC
				continue
			}
		}
		i++
	}
	return n
}

func (d *decoder) appendSub(b byte) {
	if len(d.sub) < maxSubneg {
		d.sub = append(d.sub, b)
	}
}

// escape doubles every IAC byte in p.  It returns p itself when there
// is nothing to escape.
func escape(p []byte) []byte {
	count := 0
	for _, b := range p {
		if b == byte(IAC) {
			count++
		}
	}
	if count == 0 {
		return p
	}
	out := make([]byte, 0, len(p)+count)
	for _, b := range p {
		out = append(out, b)
		if b == byte(IAC) {
			out = append(out, b)
		}
	}
	return out
}
