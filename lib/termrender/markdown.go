// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package termrender

import (
	"fmt"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// wrapBreakpoints are the characters ansi.Wrap may break after in
// addition to spaces.
const wrapBreakpoints = " ,.;-+|/"

var (
	parser     goldmark.Markdown
	parserOnce sync.Once
)

func markdownParser() goldmark.Markdown {
	parserOnce.Do(func() {
		parser = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return parser
}

// Markdown renders markdown as styled terminal text.
func (r *Renderer) Markdown(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}
	source := []byte(markdown)
	document := markdownParser().Parser().Parse(text.NewReader(source))
	walker := &markdownWalker{renderer: r, source: source}
	ast.Walk(document, walker.walk)
	return strings.TrimRight(walker.output.String(), "\n")
}

// markdownWalker accumulates one document's output.
type markdownWalker struct {
	renderer *Renderer
	source   []byte

	output   strings.Builder
	trailing int // newlines at the end of output

	inline strings.Builder
	bold   int
	italic int
	struck int

	// indent is the continuation prefix for nested list items; bullet
	// replaces it on the first line of an item.
	indent []string
	bullet string
	lists  []listState
}

type listState struct {
	ordered bool
	next    int
	tight   bool
}

func (w *markdownWalker) fg(color lipgloss.Color) lipgloss.Style {
	return w.renderer.style().Foreground(color)
}

func (w *markdownWalker) write(s string) {
	if s == "" {
		return
	}
	w.output.WriteString(s)
	trimmed := strings.TrimRight(s, "\n")
	if trimmed == "" {
		w.trailing += len(s)
	} else {
		w.trailing = len(s) - len(trimmed)
	}
}

func (w *markdownWalker) newline() {
	if w.trailing < 1 && w.output.Len() > 0 {
		w.write("\n")
	}
}

func (w *markdownWalker) blankLine() {
	if w.output.Len() == 0 {
		return
	}
	for w.trailing < 2 {
		w.write("\n")
	}
}

func (w *markdownWalker) prefix() string {
	return strings.Join(w.indent, "")
}

func (w *markdownWalker) width() int {
	return max(w.renderer.width-ansi.StringWidth(w.prefix()), 10)
}

// emit writes a block of lines with the list prefixes applied.
func (w *markdownWalker) emit(block string) {
	prefix := w.prefix()
	for index, line := range strings.Split(block, "\n") {
		if index == 0 && w.bullet != "" {
			w.write(w.bullet + line)
			w.bullet = ""
		} else {
			w.write(prefix + line)
		}
		w.write("\n")
	}
}

func (w *markdownWalker) flush() string {
	content := w.inline.String()
	w.inline.Reset()
	if strings.TrimSpace(ansi.Strip(content)) == "" {
		return ""
	}
	return ansi.Wrap(content, w.width(), wrapBreakpoints)
}

func (w *markdownWalker) tight() bool {
	return len(w.lists) > 0 && w.lists[len(w.lists)-1].tight
}

func (w *markdownWalker) styled(content string) string {
	style := w.fg(w.renderer.theme.NormalText)
	if w.bold > 0 {
		style = style.Bold(true)
	}
	if w.italic > 0 {
		style = style.Italic(true)
	}
	if w.struck > 0 {
		style = style.Strikethrough(true)
	}
	return style.Render(content)
}

func (w *markdownWalker) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {
	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			w.inline.Reset()
			break
		}
		if block := w.flush(); block != "" {
			w.emit(block)
			if !w.tight() {
				w.blankLine()
			}
		}

	case ast.KindHeading:
		if entering {
			w.inline.Reset()
			break
		}
		w.heading(node.(*ast.Heading))

	case ast.KindFencedCodeBlock:
		if entering {
			fenced := node.(*ast.FencedCodeBlock)
			w.code(w.lines(fenced), string(fenced.Language(w.source)))
		}
		return ast.WalkSkipChildren, nil

	case ast.KindCodeBlock:
		if entering {
			w.code(w.lines(node), "")
		}
		return ast.WalkSkipChildren, nil

	case ast.KindHTMLBlock:
		// Comments and markers carry nothing for a reader.
		return ast.WalkSkipChildren, nil

	case ast.KindList:
		if entering {
			list := node.(*ast.List)
			w.lists = append(w.lists, listState{ordered: list.IsOrdered(), next: list.Start, tight: list.IsTight})
			break
		}
		w.lists = w.lists[:len(w.lists)-1]
		if !w.tight() {
			w.blankLine()
		}

	case ast.KindListItem:
		if entering {
			w.enterItem()
			break
		}
		w.indent = w.indent[:len(w.indent)-1]
		if w.tight() {
			w.newline()
		} else {
			w.blankLine()
		}

	case ast.KindThematicBreak:
		if entering {
			w.blankLine()
			w.emit(w.fg(w.renderer.theme.BorderColor).Render(strings.Repeat("─", w.width())))
			w.blankLine()
		}

	case ast.KindText:
		if entering {
			textNode := node.(*ast.Text)
			w.inline.WriteString(w.styled(string(textNode.Segment.Value(w.source))))
			switch {
			case textNode.HardLineBreak():
				w.inline.WriteString("\n")
			case textNode.SoftLineBreak():
				w.inline.WriteString(" ")
			}
		}

	case ast.KindString:
		if entering {
			w.inline.WriteString(w.styled(string(node.(*ast.String).Value)))
		}

	case ast.KindEmphasis:
		counter := &w.italic
		if node.(*ast.Emphasis).Level >= 2 {
			counter = &w.bold
		}
		if entering {
			*counter++
		} else {
			*counter--
		}

	case extast.KindStrikethrough:
		if entering {
			w.struck++
		} else {
			w.struck--
		}

	case ast.KindCodeSpan:
		if entering {
			var code strings.Builder
			for child := node.FirstChild(); child != nil; child = child.NextSibling() {
				if textNode, ok := child.(*ast.Text); ok {
					code.Write(textNode.Segment.Value(w.source))
				}
			}
			w.inline.WriteString(w.fg(w.renderer.theme.FaintText).Render(code.String()))
		}
		return ast.WalkSkipChildren, nil

	case ast.KindLink:
		if entering {
			link := node.(*ast.Link)
			w.inline.WriteString(w.inlineOf(link))
			if destination := string(link.Destination); destination != "" {
				w.inline.WriteString(" " + w.fg(w.renderer.theme.FaintText).Render("("+destination+")"))
			}
		}
		return ast.WalkSkipChildren, nil

	case ast.KindAutoLink:
		if entering {
			url := string(node.(*ast.AutoLink).URL(w.source))
			w.inline.WriteString(w.fg(w.renderer.theme.FaintText).Render(url))
		}

	case ast.KindRawHTML:
		return ast.WalkSkipChildren, nil

	case extast.KindTaskCheckBox:
		if entering {
			if node.(*extast.TaskCheckBox).IsChecked {
				w.inline.WriteString(w.fg(w.renderer.theme.Done).Render("[x]") + " ")
			} else {
				w.inline.WriteString(w.styled("[ ] "))
			}
		}

	case extast.KindTable:
		if entering {
			w.table(node.(*extast.Table))
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (w *markdownWalker) heading(heading *ast.Heading) {
	content := ansi.Strip(w.inline.String())
	w.inline.Reset()
	if content == "" {
		return
	}
	style := w.renderer.style().Bold(true)
	if heading.Level <= 2 {
		style = style.Foreground(w.renderer.theme.HeaderForeground).Underline(heading.Level == 1)
	} else {
		style = style.Foreground(w.renderer.theme.NormalText)
	}
	w.blankLine()
	w.emit(ansi.Wrap(style.Render(content), w.width(), wrapBreakpoints))
	w.blankLine()
}

func (w *markdownWalker) enterItem() {
	bullet := "- "
	if top := &w.lists[len(w.lists)-1]; top.ordered {
		bullet = fmt.Sprintf("%d. ", top.next)
		top.next++
	}
	w.bullet = w.prefix() + bullet
	w.indent = append(w.indent, strings.Repeat(" ", len(bullet)))
}

// inlineOf renders node's inline children without disturbing the
// block being accumulated.
func (w *markdownWalker) inlineOf(node ast.Node) string {
	saved := w.inline.String()
	w.inline.Reset()
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		ast.Walk(child, w.walk)
	}
	content := w.inline.String()
	w.inline.Reset()
	w.inline.WriteString(saved)
	return content
}

func (w *markdownWalker) lines(node ast.Node) string {
	var code strings.Builder
	segments := node.Lines()
	for index := range segments.Len() {
		segment := segments.At(index)
		code.Write(segment.Value(w.source))
	}
	return strings.TrimRight(code.String(), "\n")
}

func (w *markdownWalker) code(code, language string) {
	rendered := w.fg(w.renderer.theme.FaintText).Render(code)
	if language != "" && w.renderer.Colored() {
		var highlighted strings.Builder
		if err := quick.Highlight(&highlighted, code, language, "terminal256", w.renderer.theme.HighlightStyle); err == nil {
			rendered = strings.TrimRight(highlighted.String(), "\n")
		}
	}
	w.blankLine()
	w.emit(rendered)
	w.blankLine()
}

// table lays out a GFM table in padded columns.
func (w *markdownWalker) table(table *extast.Table) {
	var rows [][]string
	header := -1
	for child := table.FirstChild(); child != nil; child = child.NextSibling() {
		if child.Kind() != extast.KindTableHeader && child.Kind() != extast.KindTableRow {
			continue
		}
		if child.Kind() == extast.KindTableHeader {
			header = len(rows)
		}
		var cells []string
		for cell := child.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, w.inlineOf(cell))
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return
	}

	columns := 0
	for _, row := range rows {
		columns = max(columns, len(row))
	}
	widths := make([]int, columns)
	for _, row := range rows {
		for index, cell := range row {
			widths[index] = max(widths[index], ansi.StringWidth(cell))
		}
	}
	const separator = "  "
	total := len(separator) * (columns - 1)
	for _, width := range widths {
		total += width
	}
	// Narrow the widest column until the table fits.
	for available := w.width(); total > available; total-- {
		widest := 0
		for index, width := range widths {
			if width > widths[widest] {
				widest = index
			}
		}
		if widths[widest] <= 3 {
			break
		}
		widths[widest]--
	}

	w.blankLine()
	border := w.fg(w.renderer.theme.BorderColor)
	bold := w.renderer.style().Bold(true)
	for rowIndex, row := range rows {
		parts := make([]string, columns)
		for index := range columns {
			var cell string
			if index < len(row) {
				cell = ansi.Truncate(row[index], widths[index], "…")
			}
			if rowIndex == header {
				cell = bold.Render(ansi.Strip(cell))
			}
			parts[index] = cell + strings.Repeat(" ", max(widths[index]-ansi.StringWidth(cell), 0))
		}
		w.emit(strings.TrimRight(strings.Join(parts, separator), " "))
		if rowIndex == header {
			rules := make([]string, columns)
			for index, width := range widths {
				rules[index] = strings.Repeat("─", width)
			}
			w.emit(border.Render(strings.Join(rules, separator)))
		}
	}
	w.blankLine()
}
