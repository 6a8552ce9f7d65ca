package record

import (
	"fmt"
	"strings"

	"github.com/tengenlabs/tengen/internal/board"
)

// Encode serializes the record as single-main-line SGF text. The output of
// Encode always decodes back to an equal record.
func Encode(r *Record) []byte {
	var sb strings.Builder
	sb.WriteString("(;")
	for _, p := range r.Root.props {
		writeProp(&sb, p.Key, p.Values)
	}
	for _, n := range r.Nodes {
		sb.WriteByte(';')
		if n.Move != nil {
			v := ""
			if !n.Move.Pass {
				v = encodeSGFCoord(n.Move.Coord)
			}
			writeProp(&sb, n.Move.Color.Letter(), []string{v})
		}
		writeSetup(&sb, n.Setup)
		for _, p := range n.Extra {
			writeProp(&sb, p.Key, p.Values)
		}
	}
	sb.WriteString(")\n")
	return []byte(sb.String())
}

func writeSetup(sb *strings.Builder, setup []SetupStone) {
	byKey := map[string][]string{}
	for _, s := range setup {
		key := "AE"
		switch s.Color {
		case board.Black:
			key = "AB"
		case board.White:
			key = "AW"
		}
		byKey[key] = append(byKey[key], encodeSGFCoord(s.Coord))
	}
	for _, key := range []string{"AB", "AW", "AE"} {
		if vals := byKey[key]; len(vals) > 0 {
			writeProp(sb, key, vals)
		}
	}
}

func writeProp(sb *strings.Builder, key string, values []string) {
	sb.WriteString(key)
	if len(values) == 0 {
		sb.WriteString("[]")
		return
	}
	for _, v := range values {
		sb.WriteByte('[')
		for i := 0; i < len(v); i++ {
			if v[i] == ']' || v[i] == '\\' {
				sb.WriteByte('\\')
			}
			sb.WriteByte(v[i])
		}
		sb.WriteByte(']')
	}
}

func encodeSGFCoord(c board.Coord) string {
	return string([]byte{byte('a' + c.Col), byte('a' + c.Row)})
}

// parseSGFCoord reads a two-letter SGF point. Empty and "tt" mean pass on
// a 19×19 board.
func parseSGFCoord(v string) (board.Coord, bool, error) {
	if v == "" || v == "tt" {
		return board.Coord{}, true, nil
	}
	if len(v) != 2 {
		return board.Coord{}, false, fmt.Errorf("%w: point %q", ErrMalformed, v)
	}
	c := board.Coord{Col: int(v[0] - 'a'), Row: int(v[1] - 'a')}
	if !c.Valid() {
		return board.Coord{}, false, fmt.Errorf("%w: point %q off the board", ErrMalformed, v)
	}
	return c, false, nil
}

// Decode parses SGF text, following only the main line (first variation at
// every branch). The first node becomes the root; its setup stones, if any,
// are kept as a leading setup node so handicap positions survive.
func Decode(data []byte) (*Record, error) {
	p := &parser{data: data}
	p.skipSpace()
	if !p.consume('(') {
		return nil, fmt.Errorf("%w: missing opening parenthesis", ErrMalformed)
	}

	rec := &Record{}
	rootSeen := false
	if err := p.sequence(rec, &rootSeen); err != nil {
		return nil, err
	}
	if !rootSeen {
		return nil, fmt.Errorf("%w: empty game tree", ErrMalformed)
	}
	return rec, nil
}

type parser struct {
	data []byte
	pos  int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.data) {
		switch p.data[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) consume(ch byte) bool {
	if p.pos < len(p.data) && p.data[p.pos] == ch {
		p.pos++
		return true
	}
	return false
}

// sequence consumes nodes and subtrees until the matching ')'. Only the
// first subtree at each level is followed; siblings are skipped wholesale.
func (p *parser) sequence(rec *Record, rootSeen *bool) error {
	branched := false
	for {
		p.skipSpace()
		if p.pos >= len(p.data) {
			return fmt.Errorf("%w: unterminated game tree", ErrMalformed)
		}
		switch p.data[p.pos] {
		case ';':
			p.pos++
			node, err := p.node()
			if err != nil {
				return err
			}
			attach(rec, node, rootSeen)
		case '(':
			p.pos++
			if branched {
				if err := p.skipTree(); err != nil {
					return err
				}
				continue
			}
			branched = true
			if err := p.sequence(rec, rootSeen); err != nil {
				return err
			}
		case ')':
			p.pos++
			return nil
		default:
			return fmt.Errorf("%w: unexpected %q", ErrMalformed, string(p.data[p.pos]))
		}
	}
}

// skipTree discards a game tree whose '(' has already been consumed,
// honoring bracket escapes so parentheses inside comments do not count.
func (p *parser) skipTree() error {
	depth := 1
	for p.pos < len(p.data) {
		switch p.data[p.pos] {
		case '[':
			if _, err := p.value(); err != nil {
				return err
			}
		case '(':
			depth++
			p.pos++
		case ')':
			depth--
			p.pos++
			if depth == 0 {
				return nil
			}
		default:
			p.pos++
		}
	}
	return fmt.Errorf("%w: unterminated variation", ErrMalformed)
}

// node reads properties until the next structural token.
func (p *parser) node() (Node, error) {
	var n Node
	for {
		p.skipSpace()
		if p.pos >= len(p.data) {
			return n, nil
		}
		ch := p.data[p.pos]
		if ch == ';' || ch == '(' || ch == ')' {
			return n, nil
		}

		key := p.ident()
		if key == "" {
			return n, fmt.Errorf("%w: expected property at offset %d", ErrMalformed, p.pos)
		}

		p.skipSpace()
		if p.pos >= len(p.data) || p.data[p.pos] != '[' {
			return n, fmt.Errorf("%w: property %s has no value", ErrMalformed, key)
		}
		var values []string
		for p.pos < len(p.data) && p.data[p.pos] == '[' {
			v, err := p.value()
			if err != nil {
				return n, err
			}
			values = append(values, v)
			p.skipSpace()
		}

		if err := classify(&n, key, values); err != nil {
			return n, err
		}
	}
}

// ident reads a property identifier. Lowercase letters are permitted in
// old-format ids but are not part of the normalized key.
func (p *parser) ident() string {
	var key []byte
	for p.pos < len(p.data) {
		ch := p.data[p.pos]
		switch {
		case ch >= 'A' && ch <= 'Z':
			key = append(key, ch)
			p.pos++
		case ch >= 'a' && ch <= 'z':
			p.pos++
		default:
			return string(key)
		}
	}
	return string(key)
}

// value reads one bracketed property value, resolving backslash escapes.
func (p *parser) value() (string, error) {
	p.pos++ // opening bracket
	var sb strings.Builder
	for p.pos < len(p.data) {
		ch := p.data[p.pos]
		switch ch {
		case '\\':
			p.pos++
			if p.pos < len(p.data) {
				sb.WriteByte(p.data[p.pos])
				p.pos++
			}
		case ']':
			p.pos++
			return sb.String(), nil
		default:
			sb.WriteByte(ch)
			p.pos++
		}
	}
	return "", fmt.Errorf("%w: unterminated property value", ErrMalformed)
}

func classify(n *Node, key string, values []string) error {
	switch key {
	case "B", "W":
		if n.Move != nil {
			n.Extra = append(n.Extra, Property{Key: key, Values: values})
			return nil
		}
		v := ""
		if len(values) > 0 {
			v = values[0]
		}
		c, pass, err := parseSGFCoord(v)
		if err != nil {
			return err
		}
		color := board.Black
		if key == "W" {
			color = board.White
		}
		n.Move = &Move{Color: color, Coord: c, Pass: pass}
	case "AB", "AW", "AE":
		color := board.Empty
		switch key {
		case "AB":
			color = board.Black
		case "AW":
			color = board.White
		}
		for _, v := range values {
			c, pass, err := parseSGFCoord(v)
			if err != nil {
				return err
			}
			if pass {
				continue
			}
			n.Setup = append(n.Setup, SetupStone{Color: color, Coord: c})
		}
	default:
		n.Extra = append(n.Extra, Property{Key: key, Values: values})
	}
	return nil
}

func attach(rec *Record, node Node, rootSeen *bool) {
	if !*rootSeen {
		*rootSeen = true
		rec.Root.props = node.Extra
		if node.Move != nil || len(node.Setup) > 0 {
			rec.Nodes = append(rec.Nodes, Node{Move: node.Move, Setup: node.Setup})
		}
		return
	}
	rec.Nodes = append(rec.Nodes, node)
}
