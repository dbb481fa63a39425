package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/wordvm/asm"
	"github.com/chazu/wordvm/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "wordvm-lsp"

var log = commonlog.GetLogger("wordvm.server")

// LspServer provides editor features for wordvm assembly files. Documents
// are analyzed on a Worker.
type LspServer struct {
	worker *Worker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server.
func NewLSP() *LspServer {
	s := &LspServer{
		worker:  NewWorker(NewWorkspace()),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion:     s.textDocumentCompletion,
		TextDocumentHover:          s.textDocumentHover,
		TextDocumentDefinition:     s.textDocumentDefinition,
		TextDocumentReferences:     s.textDocumentReferences,
		TextDocumentDocumentSymbol: s.textDocumentDocumentSymbol,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Infof("%s %s initializing", lspName, s.version)

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true
	capabilities.DocumentSymbolProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	if _, err := s.worker.Do(func(ws *Workspace) any {
		ws.Remove(string(uri))
		return nil
	}); err != nil {
		log.Errorf("%s: %v", uri, err)
	}

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

// analysis returns the cached analysis of uri, or analyzes the stored text
// if the document was never analyzed.
func (s *LspServer) analysis(ws *Workspace, uri string) *Analysis {
	if a := ws.Get(uri); a != nil {
		return a
	}
	s.mu.Lock()
	text, ok := s.docs[uri]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return ws.Update(uri, text)
}

func (s *LspServer) text(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.text(uri)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(ws *Workspace) any {
		return complete(s.analysis(ws, string(uri)), prefix)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := params.TextDocument.URI
	text, ok := s.text(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(ws *Workspace) any {
		return hover(s.analysis(ws, string(uri)), word)
	})
	if err != nil || result == nil {
		return nil, nil
	}

	return result.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.text(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(ws *Workspace) any {
		return definition(s.analysis(ws, string(uri)), word)
	})
	if err != nil || result == nil {
		return nil, nil
	}

	return result, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	text, ok := s.text(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(ws *Workspace) any {
		return references(s.analysis(ws, string(uri)), word, params.Context.IncludeDeclaration)
	})
	if err != nil || result == nil {
		return nil, nil
	}

	return result.([]protocol.Location), nil
}

func (s *LspServer) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	uri := params.TextDocument.URI
	if _, ok := s.text(uri); !ok {
		return nil, nil
	}

	result, err := s.worker.Do(func(ws *Workspace) any {
		return symbols(s.analysis(ws, string(uri)))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// --- Analysis-backed logic (called on worker goroutine) ---

func complete(a *Analysis, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		if !strings.HasPrefix(label, prefix) {
			return
		}
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	// Mnemonics
	for _, name := range vm.Mnemonics() {
		op, _ := vm.Lookup(name)
		info, _ := op.Info()
		add(name, protocol.CompletionItemKindKeyword, info.Doc)
	}

	// Labels
	if a != nil {
		for _, name := range a.LabelNames() {
			add(name, protocol.CompletionItemKindReference, fmt.Sprintf("label @ %d", a.Labels[name]))
		}
	}

	// Natives
	natives := vm.NativeNames()
	names := make([]string, 0, len(natives))
	for name := range natives {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		add(name, protocol.CompletionItemKindFunction, "native function")
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func hover(a *Analysis, word string) *protocol.Hover {
	var b strings.Builder

	if op, ok := vm.Lookup(word); ok {
		info, _ := op.Info()
		fmt.Fprintf(&b, "**%s** (opcode %d)\n\n", info.Name, int64(op))
		b.WriteString(info.Doc)
		b.WriteString("\n\n")
		if info.Arity == vm.Immediate {
			fmt.Fprintf(&b, "`%s <operand>`: 2 words", info.Name)
		} else {
			fmt.Fprintf(&b, "`%s`: 1 word", info.Name)
		}
		fmt.Fprintf(&b, ", pops %d, pushes %d", info.Pop, info.Push)
		return markdown(b.String())
	}

	if a != nil {
		if addr, ok := a.Labels[word]; ok {
			fmt.Fprintf(&b, "**%s**: label at address %d", word, addr)
			if n := len(a.Uses(word)); n > 0 {
				fmt.Fprintf(&b, "\n\n%d references", n)
			}
			return markdown(b.String())
		}
	}

	if addr, ok := vm.NativeNames()[word]; ok {
		fmt.Fprintf(&b, "**%s**: native function at %#x", word, int64(addr))
		return markdown(b.String())
	}

	return nil
}

func markdown(s string) *protocol.Hover {
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: s,
		},
	}
}

func definition(a *Analysis, word string) []protocol.Location {
	if a == nil {
		return nil
	}
	decl, ok := a.Declaration(word)
	if !ok {
		return nil
	}
	return []protocol.Location{location(a.URI, decl.Pos, len(decl.Name))}
}

func references(a *Analysis, word string, includeDecl bool) []protocol.Location {
	if a == nil {
		return nil
	}
	var locations []protocol.Location
	if includeDecl {
		if decl, ok := a.Declaration(word); ok {
			locations = append(locations, location(a.URI, decl.Pos, len(decl.Name)))
		}
	}
	for _, use := range a.Uses(word) {
		locations = append(locations, location(a.URI, use.Pos, len(use.Name)))
	}
	return locations
}

func symbols(a *Analysis) []protocol.DocumentSymbol {
	if a == nil {
		return nil
	}
	var syms []protocol.DocumentSymbol
	for _, it := range a.Program.Items {
		if it.Kind != asm.KindLabel {
			continue
		}
		detail := fmt.Sprintf("@ %d", a.Labels[it.Name])
		r := rangeAt(it.Pos, len(it.Name))
		syms = append(syms, protocol.DocumentSymbol{
			Name:           it.Name,
			Detail:         &detail,
			Kind:           protocol.SymbolKindConstant,
			Range:          r,
			SelectionRange: r,
		})
	}
	return syms
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func(ws *Workspace) any {
		return diagnostics(ws.Update(string(uri), text), text)
	})
	if err != nil {
		log.Errorf("%s: %v", uri, err)
		return
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: result.([]protocol.Diagnostic),
	})
}

// diagnostics converts assembly errors into LSP diagnostics, underlining the
// token each error points at.
func diagnostics(a *Analysis, text string) []protocol.Diagnostic {
	lines := strings.Split(text, "\n")
	diags := []protocol.Diagnostic{}
	for _, e := range a.Errs {
		severity := protocol.DiagnosticSeverityError
		source := lspName
		n := 0
		if l := e.Pos.Line - 1; l >= 0 && l < len(lines) {
			n = tokenEnd(lines[l], e.Pos.Col-1) - (e.Pos.Col - 1)
		}
		msg := e.Err.Error()
		if e.Msg != "" {
			msg += ": " + e.Msg
		}
		diags = append(diags, protocol.Diagnostic{
			Range:    rangeAt(e.Pos, n),
			Severity: &severity,
			Source:   &source,
			Message:  msg,
		})
	}
	return diags
}

func location(uri string, pos asm.Pos, n int) protocol.Location {
	return protocol.Location{
		URI:   protocol.DocumentUri(uri),
		Range: rangeAt(pos, n),
	}
}

// rangeAt returns the range of n bytes starting at pos.
func rangeAt(pos asm.Pos, n int) protocol.Range {
	line := protocol.UInteger(max(pos.Line-1, 0))
	col := max(pos.Col-1, 0)
	return protocol.Range{
		Start: protocol.Position{Line: line, Character: protocol.UInteger(col)},
		End:   protocol.Position{Line: line, Character: protocol.UInteger(col + max(n, 0))},
	}
}

// --- Text extraction helpers ---

func isWordRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '.'
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isWordRune(rune(line[start-1])) {
		start--
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isWordRune(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isWordRune(rune(line[end])) {
		end++
	}

	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
