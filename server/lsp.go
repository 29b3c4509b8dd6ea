package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/TheBB/Paltry/compiler"
	"github.com/TheBB/Paltry/jit"
	"github.com/TheBB/Paltry/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "paltry-lsp"

// LspServer bridges LSP editor features to a Paltry session via Worker.
// Documents are read and compiled for diagnostics but never run.
type LspServer struct {
	worker *Worker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server wrapping the given session.
func NewLSP(s *jit.Session) *LspServer {
	worker := NewWorker(s)
	l := &LspServer{
		worker:  worker,
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	l.handler = protocol.Handler{
		Initialize:  l.initialize,
		Initialized: l.initialized,
		Shutdown:    l.shutdown,
		SetTrace:    l.setTrace,

		TextDocumentDidOpen:   l.textDocumentDidOpen,
		TextDocumentDidChange: l.textDocumentDidChange,
		TextDocumentDidClose:  l.textDocumentDidClose,

		TextDocumentCompletion: l.textDocumentCompletion,
		TextDocumentHover:      l.textDocumentHover,
	}

	l.server = glspserver.NewServer(&l.handler, lspName, false)

	return l
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (l *LspServer) Run() error {
	return l.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (l *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "Paltry LSP initializing")

	capabilities := l.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"("},
	}

	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &l.version,
		},
	}, nil
}

func (l *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (l *LspServer) shutdown(ctx *glsp.Context) error {
	l.worker.Stop()
	return nil
}

func (l *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (l *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	l.mu.Lock()
	l.docs[string(uri)] = text
	l.mu.Unlock()

	l.publishDiagnostics(ctx, uri, text)
	return nil
}

func (l *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			l.mu.Lock()
			l.docs[string(uri)] = whole.Text
			l.mu.Unlock()

			l.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (l *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	l.mu.Lock()
	delete(l.docs, string(uri))
	l.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (l *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	text, ok := l.docs[string(uri)]
	return text, ok
}

func (l *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := l.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	result, err := l.worker.Do(func(s *jit.Session) interface{} {
		return complete(s.VM(), prefix)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (l *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := l.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := l.worker.Do(func(s *jit.Session) interface{} {
		return hover(s.VM(), word)
	})
	if err != nil || result == nil {
		return nil, nil
	}

	return result.(*protocol.Hover), nil
}

// --- Session-backed logic (called on worker goroutine) ---

// complete offers every bound global whose name starts with prefix.
func complete(v *vm.VM, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem

	for _, name := range v.Symbols.Names() {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		binding := globalBinding(v, name)
		if binding == nil {
			continue
		}
		kind := protocol.CompletionItemKindVariable
		detail := binding.Type().String()
		if binding.Type() == vm.TypeFunction {
			kind = protocol.CompletionItemKindFunction
			detail = signature(binding.Function())
		}
		nameCopy := name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &nameCopy,
		})
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

// hover describes the global binding of word.
func hover(v *vm.VM, word string) *protocol.Hover {
	binding := globalBinding(v, word)
	if binding == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**", word)
	if binding.Type() == vm.TypeFunction {
		fmt.Fprintf(&b, ": %s", signature(binding.Function()))
	} else {
		fmt.Fprintf(&b, " = `%s`", binding)
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func globalBinding(v *vm.VM, name string) *vm.Value {
	sym, ok := v.Symbols.Lookup(name)
	if !ok || sym.Type() != vm.TypeSymbol {
		return nil
	}
	return sym.Symbol().Binding()
}

func signature(fn *vm.Function) string {
	switch {
	case fn.Variadic && fn.Arity == 0:
		return "function, any arguments"
	case fn.Variadic:
		return fmt.Sprintf("function, at least %d arguments", fn.Arity)
	case fn.Arity == 1:
		return "function, 1 argument"
	default:
		return fmt.Sprintf("function, %d arguments", fn.Arity)
	}
}

// --- Diagnostics ---

// diagnose reads and compiles text and reports the first problem found.
func diagnose(s *jit.Session, text string) []protocol.Diagnostic {
	err := s.Check(text)
	if err == nil {
		return nil
	}

	var rng protocol.Range
	var readErr *compiler.ReadError
	if errors.As(err, &readErr) {
		pos := protocol.Position{
			Line:      protocol.UInteger(readErr.Pos.Line - 1),
			Character: protocol.UInteger(readErr.Pos.Column - 1),
		}
		rng = protocol.Range{Start: pos, End: pos}
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	return []protocol.Diagnostic{{
		Range:    rng,
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	}}
}

func (l *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := l.worker.Do(func(s *jit.Session) interface{} {
		return diagnose(s, text)
	})
	if err != nil {
		return
	}

	diagnostics := result.([]protocol.Diagnostic)
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// --- Text extraction helpers ---

// cursorLine returns the line under pos and the cursor column clamped to it.
func cursorLine(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

// extractPrefix returns the symbol fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}

	// Walk backwards from cursor to find the start of the symbol
	start := col
	for start > 0 && !compiler.IsDelimiter(rune(line[start-1])) {
		start--
	}

	return line[start:col]
}

// extractWord returns the full symbol under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 && !compiler.IsDelimiter(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && !compiler.IsDelimiter(rune(line[end])) {
		end++
	}

	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
