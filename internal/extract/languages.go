package extract

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// extToDialect maps file extensions to the grammar used to parse them.
var extToDialect = map[string]string{
	".ts":  "typescript",
	".mts": "typescript",
	".cts": "typescript",
	".tsx": "tsx",
}

// Grammars are built lazily on first use.
var (
	dialectToGrammar map[string]*sitter.Language
	grammarsOnce     sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		dialectToGrammar = map[string]*sitter.Language{
			"typescript": ts.GetLanguage(),
			"tsx":        tsx.GetLanguage(),
		}
	})
}

// Supported reports whether path has an extension the extractor can parse.
// Declaration files (.d.ts) carry no bodies and are not supported.
func Supported(path string) bool {
	if strings.HasSuffix(strings.ToLower(path), ".d.ts") {
		return false
	}
	_, ok := extToDialect[strings.ToLower(filepath.Ext(path))]
	return ok
}

// GrammarForFile returns the tree-sitter grammar for path.
func GrammarForFile(path string) (*sitter.Language, bool) {
	if !Supported(path) {
		return nil, false
	}
	initGrammars()
	l, ok := dialectToGrammar[extToDialect[strings.ToLower(filepath.Ext(path))]]
	return l, ok
}
