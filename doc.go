// Package lineage keeps a live index of the class hierarchy of a TypeScript
// source tree and answers ancestor-chain queries against it.
//
// # Pipeline
//
// Every change event is applied in one SQLite transaction:
//
//  1. Parse: the file is parsed with tree-sitter into classes, methods,
//     tagged global statements and its import table. A file that does not
//     parse keeps its previous records.
//
//  2. Invalidate: the file's old records are removed. Classes in other files
//     that inherited from them go back to pending, waiting for the same
//     (name, file) to reappear.
//
//  3. Resolve: classes are created in declaration order. Each one is linked
//     to its parent when the parent is already known, or stored pending.
//     Creating a class promotes everything waiting for it, transitively.
//
// After a committed change the registry artifacts (global.d.ts and
// manual-reset.ts) are regenerated from every statement tagged #exportGlobal.
//
// # Usage
//
//	e, err := lineage.New(".lineage/index.db", "src")
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	err = e.IndexDirectory(ctx)
//	err = e.Run(ctx, events)
//
//	chain, err := e.Query().Chain(ctx, "src/room/manager.ts")
//
// # Tags
//
// Tags are comment lines of the form `#name arg "quoted arg"` placed before a
// class, method or top-level statement. Only #emptySuper and #exportGlobal
// are interpreted; everything else is stored and returned verbatim.
package lineage
