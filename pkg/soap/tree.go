package soap

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Tree is a decoded XML element. Child element names are keys; values are a
// string (leaf text), a Tree (element with children or attributes), or a
// []any when the same tag repeats among siblings. Attributes are stored under
// "@name" and mixed text under "#text". Namespace prefixes are kept as
// written, so a SOAP envelope decodes to the key "soap:Envelope".
type Tree map[string]any

// Field lookup errors.
var (
	ErrFieldMissing = errors.New("field missing")
	ErrFieldType    = errors.New("unexpected field type")
)

// FieldError reports an absent or unparsable response field.
type FieldError struct {
	Path string
	Err  error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("soap: field %s: %v", e.Path, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Decode parses an XML document into a Tree keyed by the root element name.
func Decode(r io.Reader) (Tree, error) {
	dec := xml.NewDecoder(r)
	root := Tree{}

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			v, err := decodeElement(dec, t)
			if err != nil {
				return nil, err
			}

			root.add(qualifiedName(t.Name), v)
		case xml.EndElement:
			return nil, fmt.Errorf("unexpected end element </%s>", qualifiedName(t.Name))
		case xml.CharData:
			if len(strings.TrimSpace(string(t))) > 0 {
				return nil, errors.New("text outside root element")
			}
		}
	}

	if len(root) == 0 {
		return nil, errors.New("no root element")
	}

	return root, nil
}

func decodeElement(dec *xml.Decoder, start xml.StartElement) (any, error) {
	node := Tree{}
	for _, a := range start.Attr {
		node["@"+qualifiedName(a.Name)] = a.Value
	}

	var text strings.Builder

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}

		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			child, err := decodeElement(dec, t)
			if err != nil {
				return nil, err
			}

			node.add(qualifiedName(t.Name), child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if t.Name != start.Name {
				return nil, fmt.Errorf("element <%s> closed by </%s>",
					qualifiedName(start.Name), qualifiedName(t.Name))
			}

			s := strings.TrimSpace(text.String())
			if len(node) == 0 {
				return s, nil
			}

			if s != "" {
				node["#text"] = s
			}

			return node, nil
		}
	}
}

func qualifiedName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}

	return n.Space + ":" + n.Local
}

func (t Tree) add(key string, v any) {
	existing, ok := t[key]
	if !ok {
		t[key] = v
		return
	}

	if list, ok := existing.([]any); ok {
		t[key] = append(list, v)
		return
	}

	t[key] = []any{existing, v}
}

// Has reports whether key is present at the top level.
func (t Tree) Has(key string) bool {
	_, ok := t[key]
	return ok
}

// Lookup walks path through nested trees and returns the value found.
func (t Tree) Lookup(path ...string) (any, bool) {
	var cur any = t

	for _, key := range path {
		node, ok := cur.(Tree)
		if !ok {
			return nil, false
		}

		cur, ok = node[key]
		if !ok {
			return nil, false
		}
	}

	return cur, true
}

// Tree returns the nested tree at path. An empty leaf decodes to an empty
// Tree.
func (t Tree) Tree(path ...string) (Tree, error) {
	v, ok := t.Lookup(path...)
	if !ok {
		return nil, fieldErr(path, ErrFieldMissing)
	}

	switch val := v.(type) {
	case Tree:
		return val, nil
	case string:
		if val == "" {
			return Tree{}, nil
		}
	}

	return nil, fieldErr(path, ErrFieldType)
}

// String returns the text value at path.
func (t Tree) String(path ...string) (string, error) {
	v, ok := t.Lookup(path...)
	if !ok {
		return "", fieldErr(path, ErrFieldMissing)
	}

	switch val := v.(type) {
	case string:
		return val, nil
	case Tree:
		if s, ok := val["#text"].(string); ok {
			return s, nil
		}
	}

	return "", fieldErr(path, ErrFieldType)
}

// Float parses the text value at path as a float64.
func (t Tree) Float(path ...string) (float64, error) {
	s, err := t.String(path...)
	if err != nil {
		return 0, err
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fieldErr(path, err)
	}

	return f, nil
}

// List returns the value at path as a sequence. A single element is returned
// as a one-item list, since the document shape cannot distinguish the two.
func (t Tree) List(path ...string) ([]any, error) {
	v, ok := t.Lookup(path...)
	if !ok {
		return nil, fieldErr(path, ErrFieldMissing)
	}

	if list, ok := v.([]any); ok {
		return list, nil
	}

	return []any{v}, nil
}

// Strings returns the text values of the sequence at path.
func (t Tree) Strings(path ...string) ([]string, error) {
	list, err := t.List(path...)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fieldErr(path, ErrFieldType)
		}

		out = append(out, s)
	}

	return out, nil
}

func fieldErr(path []string, err error) *FieldError {
	return &FieldError{Path: strings.Join(path, "."), Err: err}
}
