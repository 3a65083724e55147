package phyloseq

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseNewick reads a single rooted tree in Newick format. Quoted labels,
// [comments] and internal node labels are understood.
func ParseNewick(r io.Reader) (*Tree, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	return ParseNewickString(string(b))
}

func ParseNewickString(s string) (*Tree, error) {
	p := &newickParser{s: s}

	p.skip()
	if p.eof() {
		return nil, fmt.Errorf("empty tree")
	}

	root, err := p.subtree()
	if err != nil {
		return nil, err
	}

	p.skip()
	if !p.eof() && p.peek() == ';' {
		p.pos++
	}

	p.skip()
	if !p.eof() {
		return nil, p.errorf("unexpected %q after the end of the tree (only one tree per file is supported)", p.peek())
	}

	return &Tree{Root: root}, nil
}

type newickParser struct {
	s   string
	pos int
}

func (p *newickParser) eof() bool { return p.pos >= len(p.s) }

func (p *newickParser) peek() byte { return p.s[p.pos] }

func (p *newickParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("newick offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

// skip advances past whitespace and bracketed comments.
func (p *newickParser) skip() {
	for !p.eof() {
		switch c := p.peek(); {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p.pos++
		case c == '[':
			end := strings.IndexByte(p.s[p.pos:], ']')
			if end < 0 {
				p.pos = len(p.s)
				return
			}
			p.pos += end + 1
		default:
			return
		}
	}
}

func (p *newickParser) subtree() (*Node, error) {
	n := &Node{}

	p.skip()
	if !p.eof() && p.peek() == '(' {
		p.pos++
		for {
			child, err := p.subtree()
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)

			p.skip()
			if p.eof() {
				return nil, p.errorf("unbalanced parentheses")
			}

			c := p.peek()
			p.pos++
			if c == ',' {
				continue
			}
			if c == ')' {
				break
			}
			return nil, p.errorf("expected ',' or ')', found %q", c)
		}
	}

	p.skip()
	name, err := p.label()
	if err != nil {
		return nil, err
	}
	n.Name = name

	p.skip()
	if !p.eof() && p.peek() == ':' {
		p.pos++
		p.skip()
		start := p.pos
		for !p.eof() && strings.IndexByte("(),:;[ \t\r\n", p.peek()) < 0 {
			p.pos++
		}
		v, err := strconv.ParseFloat(p.s[start:p.pos], 64)
		if err != nil {
			return nil, p.errorf("bad branch length %q", p.s[start:p.pos])
		}
		n.Length, n.HasLength = v, true
	}

	if n.IsTip() && n.Name == "" {
		return nil, p.errorf("tip without a label")
	}

	return n, nil
}

func (p *newickParser) label() (string, error) {
	if p.eof() {
		return "", nil
	}

	if p.peek() == '\'' {
		p.pos++
		var sb strings.Builder
		for {
			if p.eof() {
				return "", p.errorf("unterminated quoted label")
			}
			c := p.peek()
			p.pos++
			if c == '\'' {
				// '' is an escaped quote
				if !p.eof() && p.peek() == '\'' {
					sb.WriteByte('\'')
					p.pos++
					continue
				}
				return sb.String(), nil
			}
			sb.WriteByte(c)
		}
	}

	start := p.pos
	for !p.eof() && strings.IndexByte("(),:;[ \t\r\n", p.peek()) < 0 {
		p.pos++
	}

	return p.s[start:p.pos], nil
}

// Newick renders the tree, terminated by a semicolon.
func (t *Tree) Newick() string {
	if t == nil || t.Root == nil {
		return ";"
	}

	var sb strings.Builder
	writeNode(&sb, t.Root)
	sb.WriteByte(';')
	return sb.String()
}

func writeNode(sb *strings.Builder, n *Node) {
	if !n.IsTip() {
		sb.WriteByte('(')
		for i, c := range n.Children {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeNode(sb, c)
		}
		sb.WriteByte(')')
	}

	sb.WriteString(quoteLabel(n.Name))

	if n.HasLength {
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatFloat(n.Length, 'g', -1, 64))
	}
}

func quoteLabel(s string) string {
	if !strings.ContainsAny(s, "()[]':;, \t\r\n") {
		return s
	}

	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
