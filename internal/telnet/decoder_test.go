package telnet

import (
	"bytes"
	"reflect"
	"testing"
)

func decodeAll(d *decoder, chunks ...[]byte) ([]byte, []Signal) {
	var data []byte
	var sigs []Signal
	for _, in := range chunks {
		out := make([]byte, len(in))
		n := d.decode(in, out, func(s Signal) { sigs = append(sigs, s) })
		data = append(data, out[:n]...)
	}
	return data, sigs
}

func TestDecoder(t *testing.T) {
	iac := byte(IAC)
	tests := []struct {
		name     string
		in       []byte
		wantData string
		wantSigs []Signal
	}{
		{
			name:     "plain data",
			in:       []byte("Router> "),
			wantData: "Router> ",
		},
		{
			name:     "negotiation between data",
			in:       []byte{'a', iac, byte(DO), OptEcho, 'b', iac, byte(WILL), OptSuppressGoAhead, 'c'},
			wantData: "abc",
			wantSigs: []Signal{{Command: DO, Option: OptEcho}, {Command: WILL, Option: OptSuppressGoAhead}},
		},
		{
			name:     "escaped IAC is data",
			in:       []byte{'x', iac, iac, 'y'},
			wantData: "x\xffy",
		},
		{
			name:     "CR NUL collapses to CR",
			in:       []byte{'a', '\r', 0, 'b', '\r', '\n'},
			wantData: "a\rb\r\n",
		},
		{
			name:     "two byte commands are dropped",
			in:       []byte{'a', iac, byte(NOP), iac, byte(GA), 'b'},
			wantData: "ab",
		},
		{
			name:     "subnegotiation",
			in:       []byte{iac, byte(SB), OptTerminalType, 1, iac, iac, iac, byte(SE), 'z'},
			wantData: "z",
			wantSigs: []Signal{{Command: SB, Option: OptTerminalType, Data: []byte{1, iac}}},
		},
		{
			name:     "unterminated subnegotiation",
			in:       []byte{iac, byte(SB), OptNAWS, 0, 80, iac, byte(WONT), 99, 'q'},
			wantData: "q",
			wantSigs: []Signal{{Command: WONT, Option: 99}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d decoder
			data, sigs := decodeAll(&d, tt.in)
			if string(data) != tt.wantData {
				t.Errorf("data = %q, want %q", data, tt.wantData)
			}
			if !reflect.DeepEqual(sigs, tt.wantSigs) {
				t.Errorf("signals = %v, want %v", sigs, tt.wantSigs)
			}
		})
	}
}

// TestDecoder_SplitAcrossChunks feeds the same stream one byte at a
// time and checks the result matches decoding it whole.
func TestDecoder_SplitAcrossChunks(t *testing.T) {
	iac := byte(IAC)
	stream := []byte{
		'o', 'k', '\r', 0, iac, byte(WONT), 99, iac, iac,
		iac, byte(SB), OptNAWS, 0, 80, iac, byte(SE), '\r', '\n',
	}

	var whole decoder
	wantData, wantSigs := decodeAll(&whole, stream)

	var split decoder
	var chunks [][]byte
	for i := range stream {
		chunks = append(chunks, stream[i:i+1])
	}
	gotData, gotSigs := decodeAll(&split, chunks...)

	if !bytes.Equal(gotData, wantData) {
		t.Errorf("data = %q, want %q", gotData, wantData)
	}
	if !reflect.DeepEqual(gotSigs, wantSigs) {
		t.Errorf("signals = %v, want %v", gotSigs, wantSigs)
	}
	if string(gotData) != "ok\r\xff\r\n" {
		t.Errorf("unexpected data %q", gotData)
	}
	if len(gotSigs) != 2 {
		t.Errorf("got %d signals, want 2", len(gotSigs))
	}
}

func TestDecoder_SubnegotiationBounded(t *testing.T) {
	in := []byte{byte(IAC), byte(SB), OptTerminalType}
	in = append(in, bytes.Repeat([]byte{'x'}, maxSubneg+100)...)
	in = append(in, byte(IAC), byte(SE))

	var d decoder
	_, sigs := decodeAll(&d, in)
	if len(sigs) != 1 {
		t.Fatalf("got %d signals, want 1", len(sigs))
	}
	if len(sigs[0].Data) != maxSubneg {
		t.Errorf("payload = %d bytes, want %d", len(sigs[0].Data), maxSubneg)
	}
}

func TestEscape(t *testing.T) {
	plain := []byte("show run")
	if got := escape(plain); &got[0] != &plain[0] {
		t.Error("escape should return its input when there is no IAC")
	}
	if got := escape([]byte{1, 0xff, 2}); !bytes.Equal(got, []byte{1, 0xff, 0xff, 2}) {
		t.Errorf("escape = %v", got)
	}
}

func TestRefusal(t *testing.T) {
	tests := []struct {
		sig  Signal
		want []byte
	}{
		{Signal{Command: DO, Option: 5}, []byte{byte(IAC), byte(WONT), 5}},
		{Signal{Command: WILL, Option: 5}, []byte{byte(IAC), byte(DONT), 5}},
		{Signal{Command: WONT, Option: 5}, nil},
		{Signal{Command: DONT, Option: 5}, nil},
		{Signal{Command: SB, Option: 5}, nil},
	}
	for _, tt := range tests {
		if got := Refusal(tt.sig); !bytes.Equal(got, tt.want) {
			t.Errorf("Refusal(%s) = %v, want %v", tt.sig, got, tt.want)
		}
	}
}

func TestSignalString(t *testing.T) {
	if got := (Signal{Command: WONT, Option: 99}).String(); got != "WONT 99" {
		t.Errorf("got %q", got)
	}
	if got := (Signal{Command: SB, Option: 24, Data: []byte{1}}).String(); got != "SB 24 (1 bytes)" {
		t.Errorf("got %q", got)
	}
	if got := Command(7).String(); got != "CMD(7)" {
		t.Errorf("got %q", got)
	}
}
