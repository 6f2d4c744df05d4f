package tui

import "unicode/utf8"

type keyKind int

const (
	keyRune keyKind = iota
	keyUp
	keyDown
	keyEnter
	keyEscape
	keyBackspace
	keyCtrlC
	keyCtrlR
)

type key struct {
	kind keyKind
	r    rune
}

// decodeKeys turns a chunk of raw terminal input into key events. Only
// the sequences the UI binds are recognized; unknown escape sequences
// are dropped whole so their tail bytes don't leak in as runes.
func decodeKeys(buf []byte) []key {
	var keys []key
	for len(buf) > 0 {
		switch b := buf[0]; {
		case b == 0x1b:
			if len(buf) >= 3 && buf[1] == '[' {
				switch buf[2] {
				case 'A':
					keys = append(keys, key{kind: keyUp})
				case 'B':
					keys = append(keys, key{kind: keyDown})
				}
				buf = buf[3:]
				continue
			}
			keys = append(keys, key{kind: keyEscape})
			buf = buf[1:]
		case b == '\r' || b == '\n':
			keys = append(keys, key{kind: keyEnter})
			buf = buf[1:]
		case b == 0x7f || b == 0x08:
			keys = append(keys, key{kind: keyBackspace})
			buf = buf[1:]
		case b == 0x03:
			keys = append(keys, key{kind: keyCtrlC})
			buf = buf[1:]
		case b == 0x12:
			keys = append(keys, key{kind: keyCtrlR})
			buf = buf[1:]
		case b < 0x20:
			// Other control bytes are ignored.
			buf = buf[1:]
		default:
			r, size := utf8.DecodeRune(buf)
			if r != utf8.RuneError {
				keys = append(keys, key{kind: keyRune, r: r})
			}
			buf = buf[size:]
		}
	}
	return keys
}
