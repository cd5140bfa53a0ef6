package plugin

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tain335/stylepack/internal/graph"
	"github.com/tain335/stylepack/internal/pathutil"
	"github.com/tain335/stylepack/internal/render"
)

// TemplateEntry renders Template to FileName, relative to the output
// directory, with a script tag per chunk and a link tag per chunk
// stylesheet.
type TemplateEntry struct {
	FileName string
	Template string
	Chunks   []string
}

type HTMLTemplatePluginOptions struct {
	Styles     *Styles
	Entries    []TemplateEntry
	Data       map[string]interface{}
	PublicPath string
}

// HTMLTemplatePlugin must be registered after the Styles plugin so the
// chunk stylesheets are known when it runs. The tags replace the
// <!--script_output--> and <!--style_output--> comments, or are appended
// to body and head.
func HTMLTemplatePlugin(opts HTMLTemplatePluginOptions) api.Plugin {
	return api.Plugin{
		Name: "HTMLTemplatePlugin",
		Setup: func(pb api.PluginBuild) {
			data := map[string]interface{}{}
			for k, v := range opts.Data {
				data[k] = v
			}
			env := map[string]string{}
			for _, kv := range os.Environ() {
				if k, v, ok := strings.Cut(kv, "="); ok {
					env[k] = v
				}
			}
			data["PROCESS_ENV"] = env

			pb.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				if len(result.Errors) > 0 {
					return api.OnEndResult{}, nil
				}
				outdir := opts.Styles.Outdir()
				for _, entry := range opts.Entries {
					out, err := renderEntry(entry, data, opts, outdir)
					if err != nil {
						return api.OnEndResult{Errors: []api.Message{{
							PluginName: "HTMLTemplatePlugin",
							Text:       err.Error(),
							Location:   &api.Location{File: entry.Template},
						}}}, nil
					}
					if opts.Styles.Writes() {
						if err := writeOutputFile(out); err != nil {
							return api.OnEndResult{}, err
						}
					}
					result.OutputFiles = append(result.OutputFiles, out)
				}
				return api.OnEndResult{}, nil
			})
		},
	}
}

func renderEntry(entry TemplateEntry, data map[string]interface{}, opts HTMLTemplatePluginOptions, outdir string) (api.OutputFile, error) {
	source, err := os.ReadFile(entry.Template)
	if err != nil {
		return api.OutputFile{}, err
	}
	tpl, err := template.New(filepath.Base(entry.Template)).Parse(string(source))
	if err != nil {
		return api.OutputFile{}, err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return api.OutputFile{}, err
	}
	doc, err := html.Parse(&buf)
	if err != nil {
		return api.OutputFile{}, fmt.Errorf("parsing %s: %w", entry.Template, err)
	}

	fileName := entry.FileName
	if fileName == "" {
		fileName = filepath.Base(entry.Template)
	}
	page := graph.EmittedAsset{EmitFileName: filepath.ToSlash(fileName)}
	bundle := opts.Styles.Bundle()
	if bundle == nil {
		return api.OutputFile{}, fmt.Errorf("rendering %s: the styles were not built", entry.Template)
	}
	chunks := opts.Styles.Chunks()
	linked := map[string]bool{}
	var scripts, styles []*html.Node
	for _, name := range entry.Chunks {
		deps, err := graph.Dependencies(chunks, name)
		if err != nil {
			return api.OutputFile{}, err
		}
		script := graph.EmittedAsset{EmitFileName: deps[0].FileName}
		scripts = append(scripts, &html.Node{
			Type:     html.ElementNode,
			Data:     "script",
			DataAtom: atom.Script,
			Attr: []html.Attribute{
				{Key: "type", Val: "module"},
				{Key: "src", Val: render.DefaultURL(opts.PublicPath, page, script)},
			},
		})
		// Shared chunks carry styles too; link them before the entry's.
		for i := len(deps) - 1; i >= 0; i-- {
			style, ok := bundle.ChunkStyle(deps[i].FileName)
			if !ok || linked[style.EmitFileName] {
				continue
			}
			linked[style.EmitFileName] = true
			styles = append(styles, &html.Node{
				Type:     html.ElementNode,
				Data:     "link",
				DataAtom: atom.Link,
				Attr: []html.Attribute{
					{Key: "rel", Val: "stylesheet"},
					{Key: "href", Val: render.DefaultURL(opts.PublicPath, page, style.EmittedAsset)},
				},
			})
		}
	}
	insertTags(doc, "script_output", atom.Body, scripts)
	insertTags(doc, "style_output", atom.Head, styles)

	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		return api.OutputFile{}, err
	}
	return api.OutputFile{
		Path:     filepath.Join(outdir, filepath.FromSlash(pathutil.Normalize(fileName))),
		Contents: out.Bytes(),
	}, nil
}

// insertTags replaces the comment marker with nodes, or appends them to
// the fallback element when the marker is missing.
func insertTags(doc *html.Node, marker string, fallback atom.Atom, nodes []*html.Node) {
	var comment, parent *html.Node
	walkNodes(doc, func(n *html.Node) {
		switch {
		case n.Type == html.CommentNode && strings.TrimSpace(n.Data) == marker && comment == nil:
			comment = n
		case n.Type == html.ElementNode && n.DataAtom == fallback && parent == nil:
			parent = n
		}
	})
	if comment != nil {
		for _, n := range nodes {
			comment.Parent.InsertBefore(n, comment)
		}
		comment.Parent.RemoveChild(comment)
		return
	}
	if parent != nil {
		for _, n := range nodes {
			parent.AppendChild(n)
		}
	}
}

func walkNodes(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkNodes(c, visit)
	}
}
