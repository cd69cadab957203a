package lsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/segmentio/encoding/json"
	rpc2 "go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"sti-lsp/config"
)

// ServerName is reported to clients in the initialize result.
const ServerName = "sti-lsp"

// Version is set at build time.
var Version = "dev"

// ErrExitWithoutShutdown is returned by Serve when the client sent exit
// before shutdown.
var ErrExitWithoutShutdown = errors.New("exit received before shutdown")

type Lsp struct {
	RootPath     string
	Parser       *Parser
	RootConn     rpc2.Conn
	Config       *config.Config
	Logger       *zap.Logger
	Trees        map[string]*ParsedTree
	Declarations map[string][]Entry
	Inserts      map[string][]Entry
	Diagnostics  map[string][]protocol.Diagnostic

	mu sync.RWMutex
	// documents the client has open; the workspace walk leaves them alone
	open        map[string]bool
	ready       chan struct{}
	initialized atomic.Bool
	shutdown    atomic.Bool
	exited      atomic.Bool
}

func DefaultLsp(cfg *config.Config, logger *zap.Logger) *Lsp {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lsp{
		RootPath:     "",
		Parser:       NewParser(),
		Config:       cfg,
		Logger:       logger,
		Trees:        make(map[string]*ParsedTree),
		Declarations: make(map[string][]Entry),
		Inserts:      make(map[string][]Entry),
		Diagnostics:  make(map[string][]protocol.Diagnostic),
		open:         make(map[string]bool),
		ready:        make(chan struct{}),
	}
}

// Ready is closed once the workspace walk started by initialize is done.
func (lsp *Lsp) Ready() <-chan struct{} { return lsp.ready }

// WalkFromRoot parses every sti document under RootPath that is not excluded
// by the configuration.
func (lsp *Lsp) WalkFromRoot() {
	matcher, err := lsp.Config.ExcludeMatcher()
	if err != nil {
		lsp.Log(err.Error(), protocol.MessageTypeError)
		return
	}
	err = filepath.WalkDir(lsp.RootPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			lsp.Logger.Warn("walk", zap.String("path", path), zap.Error(err))
			return nil
		}
		if rel, relErr := filepath.Rel(lsp.RootPath, path); relErr == nil && rel != "." && matcher.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !lsp.Config.HasExtension(path) {
			return nil
		}

		text, err := os.ReadFile(path)
		if err != nil {
			lsp.Log(err.Error(), protocol.MessageTypeError)
			return nil
		}
		tree, err := lsp.Parser.ParseBytes(text)
		if err != nil {
			lsp.Log(err.Error(), protocol.MessageTypeError)
			return nil
		}

		lsp.mu.Lock()
		if !lsp.open[path] {
			lsp.Trees[path] = &ParsedTree{Tree: tree, Input: &text}
		}
		lsp.mu.Unlock()
		return nil
	})
	if err != nil {
		lsp.Log(err.Error(), protocol.MessageTypeError)
	}
}

func (lsp *Lsp) ParseAllTrees() {
	lsp.mu.Lock()
	defer lsp.mu.Unlock()
	for path, tree := range lsp.Trees {
		lsp.updateTreeLocked(tree, path)
	}
}

// UpdateTree recomputes the entries and diagnostics of one document.
func (lsp *Lsp) UpdateTree(tree *ParsedTree, path string) {
	lsp.mu.Lock()
	defer lsp.mu.Unlock()
	lsp.updateTreeLocked(tree, path)
}

func (lsp *Lsp) updateTreeLocked(tree *ParsedTree, path string) {
	lsp.Trees[path] = tree
	lsp.Declarations[path] = lsp.Parser.ParseDeclarationsInTree(tree)
	lsp.Inserts[path] = lsp.Parser.ParseInsertsInTree(tree)
	lsp.Diagnostics[path] = lsp.Parser.Diagnose(tree)
}

func (lsp *Lsp) removeTree(path string) {
	lsp.mu.Lock()
	defer lsp.mu.Unlock()
	delete(lsp.Trees, path)
	delete(lsp.Declarations, path)
	delete(lsp.Inserts, path)
	delete(lsp.Diagnostics, path)
}

// setDocument parses text as the current content of path.
func (lsp *Lsp) setDocument(path string, text []byte, version int32) error {
	tree, err := lsp.Parser.ParseBytes(text)
	if err != nil {
		return fmt.Errorf("error parsing tree of %s: %w", path, err)
	}
	lsp.UpdateTree(&ParsedTree{Tree: tree, Input: &text, Version: version}, path)
	return nil
}

func (lsp *Lsp) publishDiagnostics(ctx context.Context, path string) {
	lsp.mu.RLock()
	diagnostics := lsp.Diagnostics[path]
	var version int32
	if tree := lsp.Trees[path]; tree != nil {
		version = tree.Version
	}
	lsp.mu.RUnlock()
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}
	if lsp.RootConn == nil {
		return
	}
	err := lsp.RootConn.Notify(ctx, protocol.MethodTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri.File(path),
		Version:     uint32(version),
		Diagnostics: diagnostics,
	})
	if err != nil {
		lsp.Logger.Warn("publish diagnostics", zap.String("path", path), zap.Error(err))
	}
}

func (lsp *Lsp) publishAll(ctx context.Context) {
	lsp.mu.RLock()
	paths := make([]string, 0, len(lsp.Trees))
	for path := range lsp.Trees {
		paths = append(paths, path)
	}
	lsp.mu.RUnlock()
	for _, path := range paths {
		lsp.publishDiagnostics(ctx, path)
	}
}

func decodeParams(req rpc2.Request, v interface{}) error {
	if err := json.Unmarshal(req.Params(), v); err != nil {
		return fmt.Errorf("%s: %w", req.Method(), rpc2.ErrInvalidParams)
	}
	return nil
}

func rootFromParams(params *protocol.InitializeParams) string {
	if params.RootURI != "" {
		return params.RootURI.Filename()
	}
	for _, folder := range params.WorkspaceFolders {
		if folder.URI != "" {
			return uri.URI(folder.URI).Filename()
		}
	}
	return params.RootPath
}

func (lsp *Lsp) LspHandler(ctx context.Context, reply rpc2.Replier, req rpc2.Request) error {
	lsp.Logger.Debug("request", zap.String("method", req.Method()))

	if lsp.shutdown.Load() && req.Method() != protocol.MethodExit {
		return reply(ctx, nil, fmt.Errorf("%s after shutdown: %w", req.Method(), rpc2.ErrInvalidRequest))
	}

	switch req.Method() {
	case protocol.MethodInitialize:
		var params protocol.InitializeParams
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}
		if !lsp.initialized.CAS(false, true) {
			return reply(ctx, nil, fmt.Errorf("initialize sent twice: %w", rpc2.ErrInvalidRequest))
		}

		lsp.RootPath = rootFromParams(&params)
		if lsp.RootPath == "" {
			lsp.Log("no root path, only open documents are served", protocol.MessageTypeWarning)
			close(lsp.ready)
		} else {
			lsp.Logger.Info("workspace", zap.String("root", lsp.RootPath))
			go func() {
				defer close(lsp.ready)
				lsp.WalkFromRoot()
				lsp.ParseAllTrees()
				lsp.publishAll(ctx)
			}()
		}

		return reply(ctx, protocol.InitializeResult{
			Capabilities: protocol.ServerCapabilities{
				DefinitionProvider:     true,
				HoverProvider:          true,
				ReferencesProvider:     true,
				DocumentSymbolProvider: true,
				TextDocumentSync: protocol.TextDocumentSyncOptions{
					Change:    protocol.TextDocumentSyncKindFull,
					OpenClose: true,
					Save: &protocol.SaveOptions{
						IncludeText: true,
					},
				},
			},
			ServerInfo: &protocol.ServerInfo{
				Name:    ServerName,
				Version: Version,
			},
		}, nil)

	case protocol.MethodInitialized:
		return reply(ctx, nil, nil)

	case protocol.MethodTextDocumentDidOpen:
		var params protocol.DidOpenTextDocumentParams
		if err := decodeParams(req, &params); err != nil {
			lsp.Log(err.Error(), protocol.MessageTypeError)
			return reply(ctx, nil, nil)
		}
		path := params.TextDocument.URI.Filename()
		lsp.mu.Lock()
		lsp.open[path] = true
		lsp.mu.Unlock()
		lsp.didChange(ctx, path, []byte(params.TextDocument.Text), params.TextDocument.Version)
		return reply(ctx, nil, nil)

	case protocol.MethodTextDocumentDidChange:
		var params protocol.DidChangeTextDocumentParams
		if err := decodeParams(req, &params); err != nil {
			lsp.Log(err.Error(), protocol.MessageTypeError)
			return reply(ctx, nil, nil)
		}
		if len(params.ContentChanges) == 0 {
			return reply(ctx, nil, nil)
		}
		// full sync: the last change holds the whole document
		text := params.ContentChanges[len(params.ContentChanges)-1].Text
		lsp.didChange(ctx, params.TextDocument.URI.Filename(), []byte(text), params.TextDocument.Version)
		return reply(ctx, nil, nil)

	case protocol.MethodTextDocumentDidSave:
		var params protocol.DidSaveTextDocumentParams
		if err := decodeParams(req, &params); err != nil {
			lsp.Log(err.Error(), protocol.MessageTypeError)
			return reply(ctx, nil, nil)
		}
		path := params.TextDocument.URI.Filename()
		text := []byte(params.Text)
		if params.Text == "" {
			var err error
			if text, err = os.ReadFile(path); err != nil {
				lsp.Log(err.Error(), protocol.MessageTypeError)
				return reply(ctx, nil, nil)
			}
		}
		lsp.mu.RLock()
		var version int32
		if tree := lsp.Trees[path]; tree != nil {
			version = tree.Version
		}
		lsp.mu.RUnlock()
		lsp.didChange(ctx, path, text, version)
		return reply(ctx, nil, nil)

	case protocol.MethodTextDocumentDidClose:
		var params protocol.DidCloseTextDocumentParams
		if err := decodeParams(req, &params); err != nil {
			lsp.Log(err.Error(), protocol.MessageTypeError)
			return reply(ctx, nil, nil)
		}
		lsp.didClose(ctx, params.TextDocument.URI.Filename())
		return reply(ctx, nil, nil)

	case protocol.MethodTextDocumentHover:
		var params protocol.HoverParams
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}
		hover := lsp.GetHoverInfo(params.TextDocument.URI.Filename(), params.Position)
		if hover == nil {
			return reply(ctx, nil, nil)
		}
		return reply(ctx, hover, nil)

	case protocol.MethodTextDocumentDefinition:
		var params protocol.DefinitionParams
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}
		return reply(ctx, lsp.GetDefinition(params.TextDocument.URI.Filename(), params.Position), nil)

	case protocol.MethodTextDocumentReferences:
		var params protocol.ReferenceParams
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}
		return reply(ctx, lsp.GetReferences(params.TextDocument.URI.Filename(), params.Position, params.Context.IncludeDeclaration), nil)

	case protocol.MethodTextDocumentDocumentSymbol:
		var params protocol.DocumentSymbolParams
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}
		return reply(ctx, lsp.GetDocumentSymbols(params.TextDocument.URI.Filename()), nil)

	case protocol.MethodShutdown:
		lsp.shutdown.Store(true)
		return reply(ctx, nil, nil)

	case protocol.MethodExit:
		lsp.exited.Store(true)
		if err := reply(ctx, nil, nil); err != nil {
			return err
		}
		if lsp.RootConn != nil {
			return lsp.RootConn.Close()
		}
		return nil
	}
	// unknown notifications are dropped by the replier, calls get an error
	return rpc2.MethodNotFoundHandler(ctx, reply, req)
}

func (lsp *Lsp) didChange(ctx context.Context, path string, text []byte, version int32) {
	if err := lsp.setDocument(path, text, version); err != nil {
		lsp.Log(err.Error(), protocol.MessageTypeError)
		return
	}
	lsp.publishDiagnostics(ctx, path)
}

// didClose falls back to the file on disk when it belongs to the workspace
// and forgets the document otherwise.
func (lsp *Lsp) didClose(ctx context.Context, path string) {
	lsp.mu.Lock()
	delete(lsp.open, path)
	lsp.mu.Unlock()

	if lsp.inWorkspace(path) {
		if text, err := os.ReadFile(path); err == nil {
			lsp.didChange(ctx, path, text, 0)
			return
		}
	}
	lsp.removeTree(path)
	lsp.publishDiagnostics(ctx, path)
}

func (lsp *Lsp) inWorkspace(path string) bool {
	if lsp.RootPath == "" || !lsp.Config.HasExtension(path) {
		return false
	}
	rel, err := filepath.Rel(lsp.RootPath, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	matcher, err := lsp.Config.ExcludeMatcher()
	if err != nil {
		return false
	}
	for dir := filepath.Dir(rel); dir != "."; dir = filepath.Dir(dir) {
		if matcher.Match(dir) {
			return false
		}
	}
	return !matcher.Match(rel)
}

// Serve answers requests on rwc until the client exits or ctx is cancelled.
func (lsp *Lsp) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	lsp.RootConn = rpc2.NewConn(rpc2.NewStream(rwc))
	lsp.RootConn.Go(ctx, lsp.LspHandler)

	select {
	case <-ctx.Done():
		lsp.RootConn.Close()
		<-lsp.RootConn.Done()
		return ctx.Err()
	case <-lsp.RootConn.Done():
	}

	if !lsp.exited.Load() {
		if err := lsp.RootConn.Err(); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	}
	if !lsp.shutdown.Load() {
		return ErrExitWithoutShutdown
	}
	return nil
}

// Init serves on stdin and stdout.
func (lsp *Lsp) Init(ctx context.Context) error {
	return lsp.Serve(ctx, &rwc{os.Stdin, os.Stdout})
}

// Log writes message to the server log and mirrors it to the client.
func (lsp *Lsp) Log(message string, messageType protocol.MessageType) {
	switch messageType {
	case protocol.MessageTypeError:
		lsp.Logger.Error(message)
	case protocol.MessageTypeWarning:
		lsp.Logger.Warn(message)
	case protocol.MessageTypeInfo:
		lsp.Logger.Info(message)
	default:
		lsp.Logger.Debug(message)
	}
	if lsp.RootConn == nil {
		return
	}
	lsp.RootConn.Notify(context.Background(), protocol.MethodWindowLogMessage, protocol.LogMessageParams{
		Message: fmt.Sprintf("STI-LSP: %s", message),
		Type:    messageType,
	})
}

type rwc struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (rwc *rwc) Read(b []byte) (int, error)  { return rwc.r.Read(b) }
func (rwc *rwc) Write(b []byte) (int, error) { return rwc.w.Write(b) }
func (rwc *rwc) Close() error {
	rwc.r.Close()
	return rwc.w.Close()
}
