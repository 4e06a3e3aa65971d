package pmml

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"augustus/core"
)

// Kind classifies what a registered builder produces
type Kind int

const (
	KindExpression Kind = iota
	KindPredicate
	KindModel
)

func (k Kind) String() string {
	switch k {
	case KindExpression:
		return "expression"
	case KindPredicate:
		return "predicate"
	case KindModel:
		return "model"
	}
	return "unknown"
}

// Builder turns one element into a core.Expression, a core.Predicate or
// a core.Model, according to the Kind it is registered under
type Builder func(l *Loader, e *Element) (interface{}, error)

type registration struct {
	kind    Kind
	builder Builder
}

// Loader converts PMML documents into core.Documents. Each tag it knows
// maps to one builder; Register adds or replaces tags, so models and
// expressions outside the default set can be plugged in.
type Loader struct {
	registry map[string]registration
}

// NewLoader returns a loader with every built-in tag registered
func NewLoader() *Loader {
	l := &Loader{registry: make(map[string]registration)}
	registerExpressions(l)
	registerPredicates(l)
	registerModels(l)
	return l
}

// Register binds tag to a builder of the given kind
func (l *Loader) Register(tag string, kind Kind, builder Builder) {
	l.registry[tag] = registration{kind: kind, builder: builder}
}

// Tags lists the registered tags of one kind
func (l *Loader) Tags(kind Kind) []string {
	var out []string
	for tag, r := range l.registry {
		if r.kind == kind {
			out = append(out, tag)
		}
	}
	return out
}

func (l *Loader) kindOf(e *Element) (Kind, bool) {
	r, ok := l.registry[e.Tag]
	return r.kind, ok
}

// errorf reports a malformed element as a ValidationError that names
// the tag and its line
func errorf(e *Element, format string, args ...interface{}) error {
	return core.NewValidationError("line %d: <%s>: %s", e.Line, e.Tag, fmt.Sprintf(format, args...))
}

func (l *Loader) build(e *Element, kind Kind) (interface{}, error) {
	r, ok := l.registry[e.Tag]
	if !ok || r.kind != kind {
		return nil, errorf(e, "not a known %s element", kind)
	}
	return r.builder(l, e)
}

// Expression builds e as an expression
func (l *Loader) Expression(e *Element) (core.Expression, error) {
	v, err := l.build(e, KindExpression)
	if err != nil {
		return nil, err
	}
	return v.(core.Expression), nil
}

// Predicate builds e as a predicate
func (l *Loader) Predicate(e *Element) (core.Predicate, error) {
	v, err := l.build(e, KindPredicate)
	if err != nil {
		return nil, err
	}
	return v.(core.Predicate), nil
}

// Model builds e as a model
func (l *Loader) Model(e *Element) (core.Model, error) {
	v, err := l.build(e, KindModel)
	if err != nil {
		return nil, err
	}
	return v.(core.Model), nil
}

// firstOf returns the first child whose tag is registered as kind
func (l *Loader) firstOf(e *Element, kind Kind) *Element {
	for _, c := range e.Children {
		if k, ok := l.kindOf(c); ok && k == kind {
			return c
		}
	}
	return nil
}

// expressionChild builds the single expression child of e
func (l *Loader) expressionChild(e *Element) (core.Expression, error) {
	c := l.firstOf(e, KindExpression)
	if c == nil {
		return nil, errorf(e, "expected an expression child")
	}
	return l.Expression(c)
}

// predicateChild builds the single predicate child of e, or nil
func (l *Loader) predicateChild(e *Element) (core.Predicate, error) {
	c := l.firstOf(e, KindPredicate)
	if c == nil {
		return nil, nil
	}
	return l.Predicate(c)
}

var ignoredTopLevel = map[string]bool{
	"Header":          true,
	"MiningBuildTask": true,
	"Extension":       true,
}

// Load reads and converts a whole PMML document. Errors in independent
// top-level elements are all reported, combined with multierr.
func (l *Loader) Load(r io.Reader) (*core.Document, error) {
	root, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return l.Document(root)
}

// LoadFile reads a PMML document from fs
func (l *Loader) LoadFile(fs afero.Fs, path string) (*core.Document, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	doc, err := l.Load(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	core.GetTracer().Info(core.TraceComponentPMML, "Loaded PMML document", core.TraceContext("path", path, "models", len(doc.Models)))
	return doc, nil
}

// Document converts a parsed <PMML> root element
func (l *Loader) Document(root *Element) (*core.Document, error) {
	if root.Tag != "PMML" {
		return nil, errorf(root, "root element must be <PMML>")
	}
	doc := &core.Document{Version: root.AttrDefault("version", "")}
	var errs error
	for _, c := range root.Children {
		switch {
		case ignoredTopLevel[c.Tag]:
		case c.Tag == "DataDictionary":
			decls, err := dataDictionary(c)
			errs = multierr.Append(errs, err)
			doc.DataDictionary = decls
		case c.Tag == "TransformationDictionary":
			calculables, err := l.transformations(c)
			errs = multierr.Append(errs, err)
			doc.TransformationDictionary = calculables
		default:
			if k, ok := l.kindOf(c); !ok || k != KindModel {
				errs = multierr.Append(errs, errorf(c, "unsupported element in <PMML>"))
				continue
			}
			m, err := l.Model(c)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			doc.Models = append(doc.Models, m)
		}
	}
	if errs != nil {
		core.GetTracer().Error(core.TraceComponentPMML, "PMML document is invalid", core.TraceContext("errors", len(multierr.Errors(errs))))
		return nil, errs
	}
	return doc, nil
}
