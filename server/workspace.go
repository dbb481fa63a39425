package server

import (
	"errors"
	"sort"
	"strings"

	"github.com/chazu/wordvm/asm"
	"github.com/chazu/wordvm/vm"
)

// Analysis is the result of assembling one document.
type Analysis struct {
	URI     string
	Program *asm.Program
	Labels  asm.Labels
	Errs    asm.ErrAsm
	Code    []vm.Word // nil if there are errors
}

// Analyze assembles text, keeping whatever each pass produced so that
// editor features keep working on documents with errors.
func Analyze(uri, text string) *Analysis {
	a := &Analysis{URI: uri}
	prog, err := asm.ParseString(uri, text)
	a.addErr(err)
	if prog == nil {
		prog = &asm.Program{Name: uri}
	}
	a.Program = prog
	labels, err := asm.Resolve(prog)
	a.Labels = labels
	a.addErr(err)
	if len(a.Errs) > 0 {
		return a
	}
	table, err := asm.Link(prog, labels, vm.NativeNames())
	if !a.addErr(err) {
		code, err := asm.Emit(prog, table)
		if !a.addErr(err) {
			a.Code = code
		}
	}
	return a
}

// addErr records err and reports whether it was not nil.
func (a *Analysis) addErr(err error) bool {
	if err == nil {
		return false
	}
	var list asm.ErrAsm
	if errors.As(err, &list) {
		a.Errs = append(a.Errs, list...)
	} else {
		a.Errs = append(a.Errs, &asm.Error{Pos: asm.Pos{File: a.URI, Line: 1, Col: 1}, Err: asm.ErrSyntax, Msg: err.Error()})
	}
	return true
}

// Declaration returns the label declaration item for name.
func (a *Analysis) Declaration(name string) (asm.Item, bool) {
	for _, it := range a.Program.Items {
		if it.Kind == asm.KindLabel && it.Name == name {
			return it, true
		}
	}
	return asm.Item{}, false
}

// Uses returns the operands referring to name, in source order.
func (a *Analysis) Uses(name string) []asm.Operand {
	var uses []asm.Operand
	for _, it := range a.Program.Items {
		if it.Kind == asm.KindInstr && it.Arg != nil && it.Arg.Kind == asm.OperandName && it.Arg.Name == name {
			uses = append(uses, *it.Arg)
		}
	}
	return uses
}

// LabelNames returns the declared labels in sorted order.
func (a *Analysis) LabelNames() []string {
	names := make([]string, 0, len(a.Labels))
	for name := range a.Labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Workspace caches the analysis of every open document. It is owned by a
// Worker and must only be used from the worker goroutine.
type Workspace struct {
	docs map[string]*Analysis
}

// NewWorkspace returns an empty workspace.
func NewWorkspace() *Workspace {
	return &Workspace{docs: make(map[string]*Analysis)}
}

// Update re-analyzes the document at uri.
func (ws *Workspace) Update(uri, text string) *Analysis {
	a := Analyze(uri, text)
	ws.docs[uri] = a
	log.Debugf("%s: %d items, %d labels, %d errors", uri, len(a.Program.Items), len(a.Labels), len(a.Errs))
	return a
}

// Get returns the last analysis of the document at uri.
func (ws *Workspace) Get(uri string) *Analysis {
	return ws.docs[uri]
}

// Remove forgets the document at uri.
func (ws *Workspace) Remove(uri string) {
	delete(ws.docs, uri)
}

// tokenEnd returns the byte column just past the token starting at col in
// line, both 0-based.
func tokenEnd(line string, col int) int {
	if col >= len(line) {
		return len(line)
	}
	if i := strings.IndexAny(line[col:], " \t\r;#"); i > 0 {
		return col + i
	}
	return len(line)
}
