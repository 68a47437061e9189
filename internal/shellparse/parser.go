// Copyright (c) 2024 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package shellparse

import (
	"fmt"

	"github.com/pboisselier/gosh/internal/ast"
)

// Parse turns one input line into the ast.Node the evaluator consumes. An
// empty or all-whitespace line parses to ast.Empty{}, matching the EMPTY
// node type the spec's data model names.
//
// Grammar, loosest-binding first:
//
//	line     = sequence
//	sequence = andor ( (';' | '&') andor )* '&'?
//	andor    = pipeline ( ('&&' | '||') pipeline )*
//	pipeline = redirected ( '|' redirected )*
//	redirected = simple ( redirOp WORD )*
//	simple   = WORD+
//
// A trailing '&' (or one used as a sequence separator) wraps the preceding
// segment in ast.Background, matching the original grammar's BG production.
func Parse(line string) (ast.Node, error) {
	toks, err := lex(line)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	node, err := p.parseSequence()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, fmt.Errorf("unexpected token %q", p.cur().text)
	}
	return node, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) advance()    { p.pos++ }
func (p *parser) atEOF() bool { return p.cur().kind == tokEOF }

func (p *parser) parseSequence() (ast.Node, error) {
	if p.atEOF() {
		return ast.Empty{}, nil
	}

	left, err := p.parseAndOr()
	if err != nil {
		return nil, err
	}

	for {
		switch p.cur().kind {
		case tokBG:
			p.advance()
			left = ast.Background{Child: left}
			if p.cur().kind == tokSemi {
				p.advance()
			}
		case tokSemi:
			p.advance()
		default:
			return left, nil
		}

		if p.atEOF() {
			return left, nil
		}
		right, err := p.parseAndOr()
		if err != nil {
			return nil, err
		}
		left = ast.Sequence{Op: ast.SeqAlways, Left: left, Right: right}
	}
}

func (p *parser) parseAndOr() (ast.Node, error) {
	left, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}
	for {
		var op ast.SeqOp
		switch p.cur().kind {
		case tokAnd:
			op = ast.SeqAnd
		case tokOr:
			op = ast.SeqOr
		default:
			return left, nil
		}
		p.advance()
		right, err := p.parsePipeline()
		if err != nil {
			return nil, err
		}
		left = ast.Sequence{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parsePipeline() (ast.Node, error) {
	left, err := p.parseRedirected()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokPipe {
		p.advance()
		right, err := p.parseRedirected()
		if err != nil {
			return nil, err
		}
		left = ast.Pipe{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseRedirected() (ast.Node, error) {
	node, err := p.parseSimple()
	if err != nil {
		return nil, err
	}

	for {
		var kind ast.RedirectKind
		switch p.cur().kind {
		case tokLT:
			kind = ast.RedirectIn
		case tokGT:
			kind = ast.RedirectOut
		case tokAppend:
			kind = ast.RedirectAppend
		case tokErrGT:
			kind = ast.RedirectErr
		case tokErrAndGT:
			kind = ast.RedirectErrOut
		default:
			return node, nil
		}
		p.advance()
		if p.cur().kind != tokWord {
			return nil, fmt.Errorf("expected filename after redirection operator")
		}
		filename := p.cur().text
		p.advance()
		node = ast.Redirect{Kind: kind, Filename: filename, Child: node}
	}
}

func (p *parser) parseSimple() (ast.Node, error) {
	if p.cur().kind != tokWord {
		return nil, fmt.Errorf("expected command, found %q", p.cur().text)
	}
	var args []string
	for p.cur().kind == tokWord {
		args = append(args, p.cur().text)
		p.advance()
	}
	return ast.Simple{Args: args}, nil
}
