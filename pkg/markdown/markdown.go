// Package markdown turns note content into blocks.
//
// Each top-level markdown construct becomes one block: headings, paragraphs,
// code blocks and block quotes map one to one, and every item of a list
// becomes its own list or todo block. Parsing is pure; the same input always
// yields the same block contents, but block ids are left empty for the store
// to assign.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/notesync/notesync/pkg/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Parser parses GitHub flavoured markdown.
type Parser struct {
	md goldmark.Markdown
}

func New() *Parser {
	return &Parser{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Parse returns the blocks of content in document order.
func (p *Parser) Parse(content, path string, ownerID models.UserID, noteID models.NoteID) ([]*models.Block, error) {
	source := []byte(content)
	doc := p.md.Parser().Parse(text.NewReader(source))
	if doc == nil {
		return nil, fmt.Errorf("parse %s: no document", path)
	}

	var blocks []*models.Block
	add := func(typ models.BlockType, body string, data models.JSONMap) {
		id := noteID
		blocks = append(blocks, &models.Block{
			OwnerID: ownerID,
			NoteID:  &id,
			Type:    typ,
			Text:    body,
			Data:    data,
			Order:   len(blocks),
			Path:    path,
		})
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch n := n.(type) {
		case *ast.Heading:
			add(models.BlockTypeHeading, inlineText(n, source), models.JSONMap{"level": n.Level})
		case *ast.Paragraph, *ast.TextBlock:
			add(models.BlockTypeText, inlineText(n, source), nil)
		case *ast.FencedCodeBlock:
			data := models.JSONMap{}
			if lang := n.Language(source); len(lang) > 0 {
				data["language"] = string(lang)
			}
			add(models.BlockTypeCode, lines(n, source), data)
		case *ast.CodeBlock:
			add(models.BlockTypeCode, lines(n, source), nil)
		case *ast.Blockquote:
			add(models.BlockTypeQuote, childrenText(n, source), nil)
		case *ast.List:
			for item := n.FirstChild(); item != nil; item = item.NextSibling() {
				if box := taskCheckBox(item); box != nil {
					add(models.BlockTypeTodo, childrenText(item, source), models.JSONMap{"checked": box.IsChecked})
					continue
				}
				add(models.BlockTypeList, childrenText(item, source), models.JSONMap{"ordered": n.IsOrdered()})
			}
		case *extast.Table:
			add(models.BlockTypeTable, childrenText(n, source), nil)
		case *ast.HTMLBlock:
			add(models.BlockTypeText, lines(n, source), models.JSONMap{"html": true})
		case *ast.ThematicBreak:
		default:
			if body := childrenText(n, source); body != "" {
				add(models.BlockTypeText, body, nil)
			}
		}
	}
	return blocks, nil
}

// inlineText concatenates the text of n's inline descendants.
func inlineText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch c := c.(type) {
		case *extast.TaskCheckBox:
		case *ast.Text:
			buf.Write(c.Segment.Value(source))
			if c.SoftLineBreak() || c.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(c.Value)
		case *ast.AutoLink:
			buf.Write(c.URL(source))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}

// childrenText joins the text of n's block children with newlines.
func childrenText(n ast.Node, source []byte) string {
	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		var s string
		switch c := c.(type) {
		case *ast.FencedCodeBlock:
			s = lines(c, source)
		case *ast.CodeBlock:
			s = lines(c, source)
		case *ast.List, *ast.ListItem, *ast.Blockquote:
			s = childrenText(c, source)
		case *extast.TableRow, *extast.TableHeader:
			var cells []string
			for cell := c.FirstChild(); cell != nil; cell = cell.NextSibling() {
				cells = append(cells, inlineText(cell, source))
			}
			s = strings.Join(cells, " | ")
		default:
			s = inlineText(c, source)
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func lines(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	l := n.Lines()
	for i := 0; i < l.Len(); i++ {
		seg := l.At(i)
		buf.Write(seg.Value(source))
	}
	return strings.TrimRight(buf.String(), "\n")
}

func taskCheckBox(item ast.Node) *extast.TaskCheckBox {
	first := item.FirstChild()
	if first == nil {
		return nil
	}
	box, _ := first.FirstChild().(*extast.TaskCheckBox)
	return box
}
