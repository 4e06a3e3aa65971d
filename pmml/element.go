package pmml

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Element is one node of a parsed PMML document. Namespaces are dropped:
// PMML 3.x and 4.x documents use different namespace URIs for the same
// tags.
type Element struct {
	Tag      string
	Attrs    map[string]string
	Children []*Element
	Text     string
	Line     int
}

// Attr returns an attribute and whether it is present
func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// AttrDefault returns an attribute or def when it is absent
func (e *Element) AttrDefault(name, def string) string {
	if v, ok := e.Attrs[name]; ok {
		return v
	}
	return def
}

// Child returns the first child with the given tag
func (e *Element) Child(tag string) *Element {
	for _, c := range e.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// ChildrenOf returns every child with the given tag, in document order
func (e *Element) ChildrenOf(tag string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// Parse reads an XML document into an Element tree and returns its root
func Parse(r io.Reader) (*Element, error) {
	decoder := xml.NewDecoder(r)
	var stack []*Element
	var root *Element
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading PMML")
		}
		switch t := token.(type) {
		case xml.StartElement:
			line, _ := decoder.InputPos()
			e := &Element{Tag: t.Name.Local, Attrs: make(map[string]string, len(t.Attr)), Line: line}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				e.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, e)
			} else if root == nil {
				root = e
			}
			stack = append(stack, e)
		case xml.EndElement:
			e := stack[len(stack)-1]
			e.Text = strings.TrimSpace(e.Text)
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("reading PMML: document has no root element")
	}
	return root, nil
}
