package lsp_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap/zaptest"

	"sti-lsp/config"
	lsp "sti-lsp/lsp"
)

func workspaceRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.Abs(filepath.Join("testdata", "workspace"))
	require.NoError(t, err)
	return root
}

func makeTestLsp(t *testing.T, cfg *config.Config) *lsp.Lsp {
	local_lsp := lsp.DefaultLsp(cfg, zaptest.NewLogger(t))
	local_lsp.RootPath = workspaceRoot(t)
	return local_lsp
}

func TestTreeWalking(t *testing.T) {
	local_lsp := makeTestLsp(t, nil)
	local_lsp.WalkFromRoot()

	// node_modules and build are excluded, notes.txt is not an sti file
	root := workspaceRoot(t)
	assert.Len(t, local_lsp.Trees, 3)
	for _, rel := range []string{"a.sti", "b.sti", filepath.Join("nested", "c.sti")} {
		assert.Contains(t, local_lsp.Trees, filepath.Join(root, rel))
	}
}

func TestTreeWalkingExcludes(t *testing.T) {
	cfg := config.Default()
	cfg.Workspace.Exclude = append(cfg.Workspace.Exclude, "nested", "b.*")
	local_lsp := makeTestLsp(t, cfg)
	local_lsp.WalkFromRoot()

	assert.Len(t, local_lsp.Trees, 1)
	assert.Contains(t, local_lsp.Trees, filepath.Join(workspaceRoot(t), "a.sti"))
}

func TestParseAllTrees(t *testing.T) {
	local_lsp := makeTestLsp(t, nil)
	local_lsp.WalkFromRoot()
	local_lsp.ParseAllTrees()

	root := workspaceRoot(t)
	assert.Empty(t, local_lsp.Diagnostics[filepath.Join(root, "a.sti")])
	assert.Len(t, local_lsp.Diagnostics[filepath.Join(root, "b.sti")], 3)
	assert.Len(t, local_lsp.Diagnostics[filepath.Join(root, "nested", "c.sti")], 1)
	assert.Len(t, local_lsp.Declarations[filepath.Join(root, "a.sti")], 2)
	assert.Len(t, local_lsp.Inserts[filepath.Join(root, "b.sti")], 2)
}

type testClient struct {
	conn        jsonrpc2.Conn
	diagnostics chan protocol.PublishDiagnosticsParams
}

func (c *testClient) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	if req.Method() == protocol.MethodTextDocumentPublishDiagnostics {
		var params protocol.PublishDiagnosticsParams
		if err := json.Unmarshal(req.Params(), &params); err == nil {
			c.diagnostics <- params
		}
	}
	return reply(ctx, nil, nil)
}

func (c *testClient) nextDiagnostics(t *testing.T) protocol.PublishDiagnosticsParams {
	t.Helper()
	select {
	case params := <-c.diagnostics:
		return params
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for diagnostics")
		return protocol.PublishDiagnosticsParams{}
	}
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	serverSide, clientSide := net.Pipe()
	server := lsp.DefaultLsp(nil, zaptest.NewLogger(t))
	served := make(chan error, 1)
	go func() { served <- server.Serve(ctx, serverSide) }()

	client := &testClient{
		conn:        jsonrpc2.NewConn(jsonrpc2.NewStream(clientSide)),
		diagnostics: make(chan protocol.PublishDiagnosticsParams, 64),
	}
	client.conn.Go(ctx, client.handle)
	defer client.conn.Close()

	root := workspaceRoot(t)
	var initResult protocol.InitializeResult
	_, err := client.conn.Call(ctx, protocol.MethodInitialize, protocol.InitializeParams{
		RootURI: uri.File(root),
	}, &initResult)
	require.NoError(t, err)
	require.NotNil(t, initResult.ServerInfo)
	assert.Equal(t, lsp.ServerName, initResult.ServerInfo.Name)
	require.NoError(t, client.conn.Notify(ctx, protocol.MethodInitialized, protocol.InitializedParams{}))

	<-server.Ready()
	published := map[string]int{}
	for i := 0; i < 3; i++ {
		params := client.nextDiagnostics(t)
		published[params.URI.Filename()] = len(params.Diagnostics)
	}
	assert.Equal(t, map[string]int{
		filepath.Join(root, "a.sti"):           0,
		filepath.Join(root, "b.sti"):           3,
		filepath.Join(root, "nested", "c.sti"): 1,
	}, published)

	t.Run("didOpen publishes diagnostics", func(t *testing.T) {
		doc := uri.File(filepath.Join(root, "scratch.sti"))
		require.NoError(t, client.conn.Notify(ctx, protocol.MethodTextDocumentDidOpen, protocol.DidOpenTextDocumentParams{
			TextDocument: protocol.TextDocumentItem{URI: doc, LanguageID: "sti", Version: 3, Text: "{v}->%{v} %{w}"},
		}))
		params := client.nextDiagnostics(t)
		assert.Equal(t, doc.Filename(), params.URI.Filename())
		assert.Equal(t, uint32(3), params.Version)
		require.Len(t, params.Diagnostics, 1)
		assert.Equal(t, `variable "w" is undefined`, params.Diagnostics[0].Message)

		require.NoError(t, client.conn.Notify(ctx, protocol.MethodTextDocumentDidChange, protocol.DidChangeTextDocumentParams{
			TextDocument: protocol.VersionedTextDocumentIdentifier{
				TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: doc},
				Version:                4,
			},
			ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: "{v, w}->%{v} %{w}"}},
		}))
		params = client.nextDiagnostics(t)
		assert.Equal(t, uint32(4), params.Version)
		assert.Empty(t, params.Diagnostics)

		// scratch.sti is not on disk, closing it forgets it
		require.NoError(t, client.conn.Notify(ctx, protocol.MethodTextDocumentDidClose, protocol.DidCloseTextDocumentParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: doc},
		}))
		params = client.nextDiagnostics(t)
		assert.Empty(t, params.Diagnostics)
	})

	a := protocol.TextDocumentIdentifier{URI: uri.File(filepath.Join(root, "a.sti"))}

	t.Run("hover", func(t *testing.T) {
		var hover protocol.Hover
		_, err := client.conn.Call(ctx, protocol.MethodTextDocumentHover, protocol.HoverParams{
			TextDocumentPositionParams: protocol.TextDocumentPositionParams{
				TextDocument: a,
				Position:     protocol.Position{Line: 1, Character: 16},
			},
		}, &hover)
		require.NoError(t, err)
		assert.Contains(t, hover.Contents.Value, "defined in: "+filepath.Join(root, "a.sti"))
	})

	t.Run("definition", func(t *testing.T) {
		var locations []protocol.Location
		_, err := client.conn.Call(ctx, protocol.MethodTextDocumentDefinition, protocol.DefinitionParams{
			TextDocumentPositionParams: protocol.TextDocumentPositionParams{
				TextDocument: a,
				Position:     protocol.Position{Line: 1, Character: 16},
			},
		}, &locations)
		require.NoError(t, err)
		require.Len(t, locations, 1)
		assert.Equal(t, protocol.Position{Line: 0, Character: 2}, locations[0].Range.Start)
	})

	t.Run("references", func(t *testing.T) {
		var locations []protocol.Location
		_, err := client.conn.Call(ctx, protocol.MethodTextDocumentReferences, protocol.ReferenceParams{
			TextDocumentPositionParams: protocol.TextDocumentPositionParams{
				TextDocument: a,
				Position:     protocol.Position{Line: 0, Character: 10},
			},
			Context: protocol.ReferenceContext{IncludeDeclaration: true},
		}, &locations)
		require.NoError(t, err)
		assert.Len(t, locations, 2)
	})

	t.Run("documentSymbol", func(t *testing.T) {
		var symbols []protocol.DocumentSymbol
		_, err := client.conn.Call(ctx, protocol.MethodTextDocumentDocumentSymbol, protocol.DocumentSymbolParams{
			TextDocument: a,
		}, &symbols)
		require.NoError(t, err)
		require.Len(t, symbols, 2)
		assert.Equal(t, "name", symbols[0].Name)
		assert.Equal(t, "greeting", symbols[1].Name)
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := client.conn.Call(ctx, "sti/unknown", nil, nil)
		assert.Error(t, err)
	})

	_, err = client.conn.Call(ctx, protocol.MethodShutdown, nil, nil)
	require.NoError(t, err)

	_, err = client.conn.Call(ctx, protocol.MethodTextDocumentDocumentSymbol, protocol.DocumentSymbolParams{TextDocument: a}, nil)
	assert.Error(t, err, "requests after shutdown are rejected")

	require.NoError(t, client.conn.Notify(ctx, protocol.MethodExit, nil))
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("server did not exit")
	}
}

func startServer(ctx context.Context, t *testing.T) (*lsp.Lsp, *testClient, <-chan error) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	server := lsp.DefaultLsp(nil, zaptest.NewLogger(t))
	served := make(chan error, 1)
	go func() { served <- server.Serve(ctx, serverSide) }()

	client := &testClient{
		conn:        jsonrpc2.NewConn(jsonrpc2.NewStream(clientSide)),
		diagnostics: make(chan protocol.PublishDiagnosticsParams, 64),
	}
	client.conn.Go(ctx, client.handle)
	t.Cleanup(func() { client.conn.Close() })
	return server, client, served
}

func writeFile(t *testing.T, path, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
}

func TestServeExitWithoutShutdown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "x.sti"), "{a}->%{a}")

	server, client, served := startServer(ctx, t)

	// no rootUri, the deprecated rootPath names the workspace
	_, err := client.conn.Call(ctx, protocol.MethodInitialize, protocol.InitializeParams{RootPath: dir}, nil)
	require.NoError(t, err)
	<-server.Ready()
	params := client.nextDiagnostics(t)
	assert.Equal(t, filepath.Join(dir, "x.sti"), params.URI.Filename())

	_, err = client.conn.Call(ctx, protocol.MethodInitialize, protocol.InitializeParams{RootPath: dir}, nil)
	assert.ErrorContains(t, err, "invalid request")

	require.NoError(t, client.conn.Notify(ctx, protocol.MethodExit, nil))
	select {
	case err := <-served:
		assert.ErrorIs(t, err, lsp.ErrExitWithoutShutdown)
	case <-ctx.Done():
		t.Fatal("server did not exit")
	}
}

func TestServeSaveAndClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	dir := t.TempDir()
	path := filepath.Join(dir, "x.sti")
	writeFile(t, path, "{a}->%{a}")
	doc := protocol.TextDocumentIdentifier{URI: uri.File(path)}

	server, client, served := startServer(ctx, t)

	_, err := client.conn.Call(ctx, protocol.MethodInitialize, protocol.InitializeParams{
		WorkspaceFolders: []protocol.WorkspaceFolder{{URI: string(uri.File(dir)), Name: "x"}},
	}, nil)
	require.NoError(t, err)
	<-server.Ready()
	assert.Empty(t, client.nextDiagnostics(t).Diagnostics)

	symbols := func(t *testing.T) []string {
		t.Helper()
		var symbols []protocol.DocumentSymbol
		_, err := client.conn.Call(ctx, protocol.MethodTextDocumentDocumentSymbol, protocol.DocumentSymbolParams{TextDocument: doc}, &symbols)
		require.NoError(t, err)
		out := make([]string, 0, len(symbols))
		for _, s := range symbols {
			out = append(out, s.Name)
		}
		return out
	}

	t.Run("didSave with text", func(t *testing.T) {
		require.NoError(t, client.conn.Notify(ctx, protocol.MethodTextDocumentDidSave, protocol.DidSaveTextDocumentParams{
			TextDocument: doc,
			Text:         "{b}->%{a}",
		}))
		params := client.nextDiagnostics(t)
		assert.Len(t, params.Diagnostics, 2)
		assert.Equal(t, []string{"b"}, symbols(t))
	})

	t.Run("didSave without text reads the file", func(t *testing.T) {
		require.NoError(t, client.conn.Notify(ctx, protocol.MethodTextDocumentDidSave, protocol.DidSaveTextDocumentParams{
			TextDocument: doc,
		}))
		assert.Empty(t, client.nextDiagnostics(t).Diagnostics)
		assert.Equal(t, []string{"a"}, symbols(t))
	})

	t.Run("didClose falls back to the file", func(t *testing.T) {
		require.NoError(t, client.conn.Notify(ctx, protocol.MethodTextDocumentDidOpen, protocol.DidOpenTextDocumentParams{
			TextDocument: protocol.TextDocumentItem{URI: doc.URI, LanguageID: "sti", Version: 2, Text: "{z}->%{q}"},
		}))
		assert.Len(t, client.nextDiagnostics(t).Diagnostics, 2)
		assert.Equal(t, []string{"z"}, symbols(t))

		require.NoError(t, client.conn.Notify(ctx, protocol.MethodTextDocumentDidClose, protocol.DidCloseTextDocumentParams{
			TextDocument: doc,
		}))
		assert.Empty(t, client.nextDiagnostics(t).Diagnostics)
		assert.Equal(t, []string{"a"}, symbols(t))
	})

	_, err = client.conn.Call(ctx, protocol.MethodShutdown, nil, nil)
	require.NoError(t, err)
	require.NoError(t, client.conn.Notify(ctx, protocol.MethodExit, nil))
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("server did not exit")
	}
}
