package parser

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

// Unit is a top-level declaration of a source file. Breaks lists the lines
// inside the unit where a statement (or field, or spec) begins; an
// oversized unit may only be split at those lines.
type Unit struct {
	Name      string
	Kind      types.ChunkKind
	StartLine int
	EndLine   int
	Breaks    []int
}

// GoParser extracts top-level declarations from Go source
type GoParser struct {
	fset *token.FileSet
}

// NewGoParser creates a new GoParser instance
func NewGoParser() *GoParser {
	return &GoParser{fset: token.NewFileSet()}
}

// Parse parses Go source held in memory. Syntax errors are returned so the
// caller can fall back to line based chunking; the package clause and
// imports are not units.
func (p *GoParser) Parse(src []byte) ([]Unit, error) {
	file, err := parser.ParseFile(p.fset, "", src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("syntax error: %w", err)
	}

	units := make([]Unit, 0, len(file.Decls))
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			units = append(units, p.funcUnit(d))
		case *ast.GenDecl:
			if d.Tok == token.IMPORT {
				continue
			}
			units = append(units, p.genUnit(d))
		}
	}
	return units, nil
}

func (p *GoParser) line(pos token.Pos) int {
	return p.fset.Position(pos).Line
}

// funcUnit covers the doc comment, signature and body of a function
func (p *GoParser) funcUnit(fn *ast.FuncDecl) Unit {
	u := Unit{
		Name:      fn.Name.Name,
		Kind:      types.ChunkFunction,
		StartLine: p.line(fn.Pos()),
		EndLine:   p.line(fn.End()),
	}
	if fn.Doc != nil {
		u.StartLine = p.line(fn.Doc.Pos())
	}

	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		u.Kind = types.ChunkMethod
		if recv := receiverName(fn.Recv.List[0].Type); recv != "" {
			u.Name = recv + "." + fn.Name.Name
		}
	}

	if fn.Body != nil {
		for _, stmt := range fn.Body.List {
			u.Breaks = append(u.Breaks, p.line(stmt.Pos()))
		}
	}
	return u
}

// genUnit covers a type, const or var declaration group
func (p *GoParser) genUnit(gd *ast.GenDecl) Unit {
	u := Unit{
		Kind:      types.ChunkBlock,
		StartLine: p.line(gd.Pos()),
		EndLine:   p.line(gd.End()),
	}
	if gd.Doc != nil {
		u.StartLine = p.line(gd.Doc.Pos())
	}
	if gd.Tok == token.TYPE {
		u.Kind = types.ChunkTypeDecl
	}

	var names []string
	for _, spec := range gd.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			names = append(names, s.Name.Name)
			u.Breaks = append(u.Breaks, p.fieldBreaks(s)...)
		case *ast.ValueSpec:
			for _, n := range s.Names {
				names = append(names, n.Name)
			}
		}
		if gd.Lparen.IsValid() {
			u.Breaks = append(u.Breaks, p.line(spec.Pos()))
		}
	}
	u.Name = summarizeNames(names)
	return u
}

// fieldBreaks returns the start line of every struct field or interface
// method of a type spec.
func (p *GoParser) fieldBreaks(ts *ast.TypeSpec) []int {
	var fields *ast.FieldList
	switch t := ts.Type.(type) {
	case *ast.StructType:
		fields = t.Fields
	case *ast.InterfaceType:
		fields = t.Methods
	}
	if fields == nil {
		return nil
	}
	breaks := make([]int, 0, len(fields.List))
	for _, f := range fields.List {
		breaks = append(breaks, p.line(f.Pos()))
	}
	return breaks
}

// receiverName extracts the receiver type name from a method, dropping
// pointers and type parameters.
func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverName(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverName(t.X)
	case *ast.IndexListExpr:
		return receiverName(t.X)
	}
	return ""
}

func summarizeNames(names []string) string {
	switch {
	case len(names) == 0:
		return ""
	case len(names) <= 3:
		return strings.Join(names, ", ")
	default:
		return strings.Join(names[:3], ", ") + ", ..."
	}
}
