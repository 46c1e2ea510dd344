// Package dap parses OPeNDAP Dataset Attribute Structure (DAS) responses.
//
// A DAS document looks like:
//
//	Attributes {
//	    NC_GLOBAL {
//	        String title "Sea surface temperature";
//	        Float64 geospatial_lat_min -34.5;
//	        Int32 valid_range 0, 40;
//	    }
//	}
//
// Parse returns nested Containers. Attributes with a single value unwrap
// to a scalar (string, int64 or float64); multi-valued attributes are
// []any.
package dap

import (
	"fmt"
	"strconv"
	"strings"
)

// Container is one attribute container: attribute names map to values and
// nested container names map to Containers.
type Container map[string]any

// Container returns the nested container called name.
func (c Container) Container(name string) (Container, bool) {
	v, ok := c[name].(Container)
	return v, ok
}

// String returns the attribute called name if it holds a single string.
func (c Container) String(name string) (string, bool) {
	v, ok := c[name].(string)
	return v, ok
}

// Parse parses a DAS document.
func Parse(text string) (Container, error) {
	p := &parser{lex: newLexer(text)}
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokWord || !strings.EqualFold(p.tok.text, "Attributes") {
		return nil, p.errorf("expected 'Attributes'")
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	root, err := p.containerBody()
	if err != nil {
		return nil, err
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %s after closing brace", p.tok)
	}
	return root, nil
}

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) next() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("das: line %d: %s", p.tok.line, fmt.Sprintf(format, args...))
}

// containerBody parses "{ ... }"; p.tok must be the opening brace. On
// return p.tok is the closing brace.
func (p *parser) containerBody() (Container, error) {
	if p.tok.kind != tokLBrace {
		return nil, p.errorf("expected '{', got %s", p.tok)
	}
	c := Container{}
	for {
		if err := p.next(); err != nil {
			return nil, err
		}
		switch p.tok.kind {
		case tokRBrace:
			return c, nil
		case tokEOF:
			return nil, p.errorf("unexpected end of input")
		case tokWord, tokString:
		default:
			return nil, p.errorf("unexpected %s", p.tok)
		}

		first := p.tok
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokLBrace {
			nested, err := p.containerBody()
			if err != nil {
				return nil, err
			}
			c[first.text] = nested
			continue
		}

		name, value, err := p.attribute(first.text)
		if err != nil {
			return nil, err
		}
		c[name] = value
	}
}

// attribute parses "<type> <name> <value>[, <value>...] ;" after the type.
func (p *parser) attribute(typ string) (string, any, error) {
	if p.tok.kind != tokWord && p.tok.kind != tokString {
		return "", nil, p.errorf("expected attribute name after %q, got %s", typ, p.tok)
	}
	name := p.tok.text

	var values []any
	for {
		if err := p.next(); err != nil {
			return "", nil, err
		}
		if p.tok.kind != tokWord && p.tok.kind != tokString {
			return "", nil, p.errorf("expected value for %q, got %s", name, p.tok)
		}
		v, err := convert(typ, p.tok)
		if err != nil {
			return "", nil, p.errorf("attribute %q: %v", name, err)
		}
		values = append(values, v)

		if err := p.next(); err != nil {
			return "", nil, err
		}
		switch p.tok.kind {
		case tokComma:
			continue
		case tokSemicolon:
			if len(values) == 1 {
				return name, values[0], nil
			}
			return name, values, nil
		default:
			return "", nil, p.errorf("expected ',' or ';' after value of %q, got %s", name, p.tok)
		}
	}
}

func convert(typ string, t token) (any, error) {
	switch strings.ToLower(typ) {
	case "byte", "int8", "uint8", "int16", "uint16", "int32", "uint32", "int64", "uint64":
		if t.kind == tokString {
			return t.text, nil
		}
		n, err := strconv.ParseInt(t.text, 0, 64)
		if err != nil {
			// UInt64 values beyond int64 and other oddities fall back to float.
			f, ferr := strconv.ParseFloat(t.text, 64)
			if ferr != nil {
				return nil, fmt.Errorf("invalid %s value %q", typ, t.text)
			}
			return f, nil
		}
		return n, nil
	case "float32", "float64":
		if t.kind == tokString {
			return t.text, nil
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q", typ, t.text)
		}
		return f, nil
	default:
		// String, Url, Alias and unknown types keep their text.
		return t.text, nil
	}
}
