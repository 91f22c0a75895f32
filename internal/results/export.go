package results

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// DefaultExportName is used when no output path is given.
const DefaultExportName = "document.pdf"

// ErrNoNotes is returned when there is nothing to export.
var ErrNoNotes = errors.New("no notes to export")

const (
	pageMargin  = 20.0
	indentStep  = 6.0
	bodyLineH   = 5.5
	codeLineH   = 4.5
	bulletWidth = 6.0
)

var headingSizes = map[int]float64{1: 20, 2: 16, 3: 14, 4: 12, 5: 11, 6: 11}

type blockKind int

const (
	blockHeading blockKind = iota
	blockParagraph
	blockListItem
	blockCode
	blockRule
	blockTableRow
)

// block is one printable unit of the notes document.
type block struct {
	kind   blockKind
	level  int
	indent int
	marker string
	text   string
	header bool
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// parseBlocks flattens markdown into printable blocks.
func parseBlocks(src []byte) []block {
	doc := markdown.Parser().Parse(text.NewReader(src))
	return collectChildren(doc, src, 0, nil)
}

func collectChildren(parent ast.Node, src []byte, depth int, out []block) []block {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		out = collectNode(n, src, depth, out)
	}
	return out
}

func collectNode(n ast.Node, src []byte, depth int, out []block) []block {
	switch node := n.(type) {
	case *ast.Heading:
		return append(out, block{kind: blockHeading, level: node.Level, indent: depth, text: inlineText(node, src)})

	case *ast.Paragraph, *ast.TextBlock:
		return append(out, block{kind: blockParagraph, indent: depth, text: inlineText(node, src)})

	case *ast.List:
		index := node.Start
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			marker := "•"
			if node.IsOrdered() {
				marker = fmt.Sprintf("%d.", index)
				index++
			}
			out = collectListItem(item, marker, src, depth, out)
		}
		return out

	case *ast.FencedCodeBlock:
		return append(out, block{kind: blockCode, indent: depth, text: rawLines(node, src)})

	case *ast.CodeBlock:
		return append(out, block{kind: blockCode, indent: depth, text: rawLines(node, src)})

	case *ast.ThematicBreak:
		return append(out, block{kind: blockRule, indent: depth})

	case *ast.Blockquote:
		return collectChildren(node, src, depth+1, out)

	case *east.Table:
		for row := node.FirstChild(); row != nil; row = row.NextSibling() {
			_, isHeader := row.(*east.TableHeader)
			var cells []string
			for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
				cells = append(cells, inlineText(cell, src))
			}
			out = append(out, block{kind: blockTableRow, indent: depth, header: isHeader, text: strings.Join(cells, " | ")})
		}
		return out

	case *ast.HTMLBlock:
		return out

	default:
		return collectChildren(n, src, depth, out)
	}
}

// collectListItem prints the item's first paragraph next to the marker and
// nests everything else one level deeper.
func collectListItem(item ast.Node, marker string, src []byte, depth int, out []block) []block {
	first := true
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		if first {
			first = false
			switch c.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				out = append(out, block{kind: blockListItem, indent: depth, marker: marker, text: inlineText(c, src)})
				continue
			default:
				out = append(out, block{kind: blockListItem, indent: depth, marker: marker})
			}
		}
		out = collectNode(c, src, depth+1, out)
	}
	if first {
		out = append(out, block{kind: blockListItem, indent: depth, marker: marker})
	}
	return out
}

func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			switch {
			case t.HardLineBreak():
				b.WriteByte('\n')
			case t.SoftLineBreak():
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.URL(src))
		case *east.TaskCheckBox:
			if t.IsChecked {
				b.WriteString("[x] ")
			} else {
				b.WriteString("[ ] ")
			}
		default:
			b.WriteString(inlineText(c, src))
		}
	}
	return strings.TrimSpace(b.String())
}

func rawLines(n ast.Node, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderNotesPDF writes markdown notes as a paginated A4 document.
func RenderNotesPDF(w io.Writer, title, notes string) error {
	if strings.TrimSpace(notes) == "" {
		return ErrNoNotes
	}
	pdf := buildPDF(title, parseBlocks([]byte(notes)))
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// WriteNotesPDF renders notes into path, creating parent directories.
func WriteNotesPDF(path, title, notes string) error {
	if strings.TrimSpace(notes) == "" {
		return ErrNoNotes
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure pdf directory: %w", err)
	}
	pdf := buildPDF(title, parseBlocks([]byte(notes)))
	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func buildPDF(title string, blocks []block) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor("Study Buddy", false)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pageWidth, _ := pdf.GetPageSize()

	for _, b := range blocks {
		left := pageMargin + float64(b.indent)*indentStep
		pdf.SetLeftMargin(left)
		pdf.SetX(left)

		switch b.kind {
		case blockHeading:
			size := headingSizes[b.level]
			if size == 0 {
				size = 11
			}
			pdf.Ln(2)
			pdf.SetFont("Helvetica", "B", size)
			pdf.MultiCell(0, size*0.5, tr(b.text), "", "L", false)
			pdf.Ln(2)

		case blockParagraph:
			pdf.SetFont("Helvetica", "", 11)
			pdf.MultiCell(0, bodyLineH, tr(b.text), "", "L", false)
			pdf.Ln(2)

		case blockListItem:
			pdf.SetFont("Helvetica", "", 11)
			pdf.CellFormat(bulletWidth, bodyLineH, tr(b.marker), "", 0, "L", false, 0, "")
			pdf.MultiCell(0, bodyLineH, tr(b.text), "", "L", false)
			pdf.Ln(1)

		case blockCode:
			pdf.SetFont("Courier", "", 9)
			pdf.SetFillColor(240, 240, 240)
			pdf.MultiCell(0, codeLineH, tr(b.text), "", "L", true)
			pdf.Ln(2)

		case blockRule:
			y := pdf.GetY() + 2
			pdf.SetDrawColor(180, 180, 180)
			pdf.Line(left, y, pageWidth-pageMargin, y)
			pdf.Ln(5)

		case blockTableRow:
			style := ""
			if b.header {
				style = "B"
			}
			pdf.SetFont("Helvetica", style, 10)
			pdf.MultiCell(0, bodyLineH, tr(b.text), "B", "L", false)
		}
	}

	pdf.SetLeftMargin(pageMargin)
	return pdf
}
