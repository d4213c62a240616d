package kv

import "encoding/binary"

const (
	binTagNode   = 0x00
	binTagString = 0x01
	binTagInt32  = 0x02
	binTagEnd    = 0x08
)

// ParseBinary parses the byte-tagged, null-terminated tree used in PICS
// package info responses. It consumes data from the start and returns the
// root node. Truncated or malformed input stops the decoder and returns
// whatever was accumulated; it never over-reads past the end of data.
func ParseBinary(data []byte) *Node {
	p := &binParser{data: data}
	root := NewNode()
	p.parseNode(root)
	return root
}

type binParser struct {
	data []byte
	pos  int
}

func (p *binParser) parseNode(n *Node) {
	for {
		if p.pos >= len(p.data) {
			return // truncated: stop gracefully
		}
		tag := p.data[p.pos]
		p.pos++

		switch tag {
		case binTagEnd:
			return
		case binTagNode:
			name, ok := p.readCString()
			if !ok {
				return
			}
			child := n.child(name)
			p.parseNode(child)
		case binTagString:
			name, ok := p.readCString()
			if !ok {
				return
			}
			val, ok := p.readCString()
			if !ok {
				return
			}
			n.Strings[name] = val
		case binTagInt32:
			name, ok := p.readCString()
			if !ok {
				return
			}
			if p.pos+4 > len(p.data) {
				return
			}
			n.Ints[name] = int32(binary.LittleEndian.Uint32(p.data[p.pos : p.pos+4]))
			p.pos += 4
		default:
			// unknown tag: terminate this node, do not advance past the
			// tag byte we already consumed.
			return
		}
	}
}

// readCString reads bytes up to and including a nul terminator, returning
// the string without the terminator. ok is false if no terminator is found
// before the end of input.
func (p *binParser) readCString() (string, bool) {
	start := p.pos
	for i := p.pos; i < len(p.data); i++ {
		if p.data[i] == 0 {
			s := string(p.data[start:i])
			p.pos = i + 1
			return s, true
		}
	}
	return "", false
}
