package docfx

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ViewPagePath is the Confluence path that links are rewritten to
const ViewPagePath = "/pages/viewpage.action"

// DefaultLanguageMap maps DocFX code block languages to the names the
// Confluence code macro understands
var DefaultLanguageMap = map[string]string{
	"csharp": "c#",
}

// Transformer rewrites DocFX page HTML into Confluence storage format
type Transformer struct {
	// Links maps site-relative page paths to Confluence page ids
	Links map[string]string

	// LanguageMap overrides code block language names. Languages not in
	// the map are passed through unchanged.
	LanguageMap map[string]string

	Logger *logrus.Logger
}

// Transform rewrites content with the default language map
func Transform(baseDir, content string, links map[string]string) (string, error) {
	t := &Transformer{
		Links:       links,
		LanguageMap: DefaultLanguageMap,
		Logger:      logrus.StandardLogger(),
	}
	return t.Transform(baseDir, content)
}

// Transform rewrites xref links to Confluence page links and DocFX code
// blocks to Confluence code macros. baseDir is the site-relative directory
// of the page, "" for the site root.
func (t *Transformer) Transform(baseDir, content string) (string, error) {
	parent := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	}
	nodes, err := html.ParseFragment(strings.NewReader(content), parent)
	if err != nil {
		return "", fmt.Errorf("failed to parse page content: %w", err)
	}

	for _, node := range nodes {
		t.walk(baseDir, node)
	}

	parts := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if node.Type == html.TextNode && strings.TrimSpace(node.Data) == "" {
			continue
		}
		var buf bytes.Buffer
		if err := html.Render(&buf, node); err != nil {
			return "", fmt.Errorf("failed to render page content: %w", err)
		}
		parts = append(parts, buf.String())
	}
	return strings.Join(parts, "\n"), nil
}

func (t *Transformer) walk(baseDir string, n *html.Node) {
	if n.Type == html.ElementNode {
		switch {
		case n.DataAtom == atom.A && hasClass(n, "xref"):
			t.rewriteLink(baseDir, n)
		case n.DataAtom == atom.Div && hasClass(n, "codewrapper"):
			if t.rewriteCode(n) {
				return
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		t.walk(baseDir, c)
	}
}

func (t *Transformer) rewriteLink(baseDir string, a *html.Node) {
	idx := attrIndex(a, "href")
	if idx < 0 {
		return
	}

	u, err := url.Parse(a.Attr[idx].Val)
	if err != nil || u.Path == "" || u.IsAbs() {
		return
	}

	target := ResolvePath(baseDir, u.Path)
	pageID, ok := t.Links[target]
	if !ok {
		t.logger().WithField("path", target).Warn("No mapping for xref link")
		return
	}

	href := ViewPagePath + "?pageId=" + url.QueryEscape(pageID)
	if u.Fragment != "" {
		href += "#" + u.EscapedFragment()
	}
	a.Attr[idx].Val = href
}

// rewriteCode replaces the contents of a code wrapper with a code macro.
// It reports false when the wrapper holds no code block with a language.
func (t *Transformer) rewriteCode(wrapper *html.Node) bool {
	pre := findElement(wrapper, atom.Pre)
	if pre == nil {
		return false
	}
	code := findElement(pre, atom.Code)
	if code == nil {
		return false
	}

	language := codeLanguage(code)
	if language == "" {
		return false
	}
	if mapped, ok := t.LanguageMap[language]; ok {
		language = mapped
	}

	for c := wrapper.FirstChild; c != nil; {
		next := c.NextSibling
		wrapper.RemoveChild(c)
		c = next
	}
	wrapper.AppendChild(codeMacro(language, textContent(code)))
	return true
}

func (t *Transformer) logger() *logrus.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return logrus.StandardLogger()
}

// ResolvePath resolves a link path found in a page under baseDir to a
// cleaned site-relative path. Paths starting with "/" are taken from the
// site root.
func ResolvePath(baseDir, p string) string {
	if !strings.HasPrefix(p, "/") {
		p = path.Join("/", baseDir, p)
	}
	return strings.TrimLeft(path.Clean(p), "/")
}

func codeMacro(language, body string) *html.Node {
	macro := element("ac:structured-macro",
		html.Attribute{Key: "ac:name", Val: "code"},
		html.Attribute{Key: "ac:schema-version", Val: "1"},
	)

	param := element("ac:parameter", html.Attribute{Key: "ac:name", Val: "language"})
	param.AppendChild(&html.Node{Type: html.TextNode, Data: language})
	macro.AppendChild(param)

	plain := element("ac:plain-text-body")
	plain.AppendChild(&html.Node{Type: html.RawNode, Data: cdata(body)})
	macro.AppendChild(plain)

	return macro
}

// cdata wraps s in a CDATA section, splitting any "]]>" it contains
func cdata(s string) string {
	return "<![CDATA[" + strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>") + "]]>"
}

func element(name string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type: html.ElementNode,
		Data: name,
		Attr: attrs,
	}
}

func codeLanguage(code *html.Node) string {
	idx := attrIndex(code, "class")
	if idx < 0 {
		return ""
	}
	for _, class := range strings.Fields(code.Attr[idx].Val) {
		if strings.HasPrefix(class, "lang-") {
			return strings.TrimPrefix(class, "lang-")
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	idx := attrIndex(n, "class")
	if idx < 0 {
		return false
	}
	for _, c := range strings.Fields(n.Attr[idx].Val) {
		if c == class {
			return true
		}
	}
	return false
}

func attrIndex(n *html.Node, key string) int {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return i
		}
	}
	return -1
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return sb.String()
}
