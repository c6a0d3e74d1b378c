// Package markdownsource reads a markdown document and emits one
// message per top-level heading section, the way the ingest pipeline
// chunks a document by heading boundary. Unlike that chunker, which
// scans line by line with a bufio.Scanner, this source walks goldmark's
// parsed AST to find heading boundaries.
package markdownsource

import (
	"bytes"
	"context"
	"os"

	"github.com/routecraftjs/routecraft"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Section is one heading-delimited chunk of a markdown document.
type Section struct {
	// Title is the heading text, or empty for content appearing before
	// the first heading.
	Title string
	// Level is the heading level (1-6), or 0 for the preamble section.
	Level int
	// Content is the raw markdown source spanning the section,
	// including its heading line.
	Content string
}

// Options configures a markdown source.
type Options struct {
	// Path is the markdown file to read. Required.
	Path string
	// MinLevel and MaxLevel bound which heading levels start a new
	// section; headings outside this range are treated as regular
	// content within the enclosing section. Zero defaults to 1..2.
	MinLevel int
	MaxLevel int
}

// New returns a routecraft.Source that reads opts.Path once, splits it
// into Section values at heading boundaries, and emits each Section's
// Content string as a message body with "routecraft.markdown.title" and
// "routecraft.markdown.level" headers. The source completes once every
// section has been emitted, or the route's cancellation token fires
// first.
func New(opts Options) routecraft.Source {
	minLevel := opts.MinLevel
	maxLevel := opts.MaxLevel
	if minLevel == 0 {
		minLevel = 1
	}
	if maxLevel == 0 {
		maxLevel = 2
	}

	return routecraft.SourceFunc(func(ctx context.Context, emit routecraft.Emit) error {
		raw, err := os.ReadFile(opts.Path)
		if err != nil {
			return err
		}

		sections := splitSections(raw, minLevel, maxLevel)
		for _, sec := range sections {
			select {
			case <-ctx.Done():
				if ctx.Err() == context.Canceled {
					return nil
				}
				return ctx.Err()
			default:
			}
			emit(sec.Content, routecraft.Headers{
				"routecraft.markdown.title": sec.Title,
				"routecraft.markdown.level": sec.Level,
			})
		}
		return nil
	})
}

// splitSections parses src as markdown and walks the resulting AST,
// recording the byte offset of every heading whose level falls within
// [minLevel, maxLevel]. It then slices the original source between
// consecutive boundaries to produce each Section's raw content,
// preserving the markdown exactly as written rather than re-rendering it.
func splitSections(src []byte, minLevel, maxLevel int) []Section {
	reader := text.NewReader(src)
	doc := goldmark.DefaultParser().Parse(reader)

	type boundary struct {
		offset int
		title  string
		level  int
	}
	var bounds []boundary

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Level < minLevel || h.Level > maxLevel {
			return ast.WalkContinue, nil
		}
		lines := h.Lines()
		if lines.Len() == 0 {
			return ast.WalkContinue, nil
		}
		start := lines.At(0).Start
		for start > 0 && src[start-1] != '\n' {
			start--
		}
		bounds = append(bounds, boundary{
			offset: start,
			title:  string(h.Text(src)),
			level:  h.Level,
		})
		return ast.WalkSkipChildren, nil
	})

	if len(bounds) == 0 {
		return []Section{{Content: string(src)}}
	}

	var sections []Section
	if bounds[0].offset > 0 {
		sections = append(sections, Section{Content: string(bytes.TrimSpace(src[:bounds[0].offset]))})
	}
	for i, b := range bounds {
		end := len(src)
		if i+1 < len(bounds) {
			end = bounds[i+1].offset
		}
		sections = append(sections, Section{
			Title:   b.title,
			Level:   b.level,
			Content: string(bytes.TrimSpace(src[b.offset:end])),
		})
	}
	return sections
}
