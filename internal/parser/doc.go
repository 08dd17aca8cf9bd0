// Package parser finds the top-level declarations of a source file so the
// chunker can cut along them.
//
// Go source is parsed with the standard go/parser; the package clause and
// import block are skipped, and every function, method, type declaration and
// const/var group becomes a Unit:
//
//	units, err := parser.NewGoParser().Parse(src)
//	if err != nil {
//	    // syntax error: chunk by lines instead
//	}
//
// Python source is outlined by indentation with ParsePython, which never
// fails. Decorators belong to the def or class below them, and other
// top-level statements are grouped into block units.
//
// Each Unit carries Breaks: the lines where a body statement, struct field
// or spec begins. Splitting an oversized unit only at those lines keeps
// every statement whole.
package parser
