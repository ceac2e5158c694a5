package metadata

import (
	"encoding/json"
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// pageTags is everything extract needs from one pass over the document.
type pageTags struct {
	title      string
	base       string
	names      map[string]string
	properties map[string]string
	links      []linkTag
	jsonLD     []string
}

type linkTag struct {
	rel   string
	sizes string
	href  string
}

// faviconSelectors lists link tags in order of preference.
var faviconSelectors = []struct {
	rel   string
	sizes string
}{
	{"icon", "32x32"},
	{"icon", "48x48"},
	{"icon", "96x96"},
	{"shortcut icon", ""},
	{"icon", ""},
	{"apple-touch-icon", ""},
}

var jsonLDTypes = map[string]bool{"WebPage": true, "Article": true, "Product": true}

func extract(r io.Reader, pageURL *url.URL) (PageMetadata, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return PageMetadata{}, err
	}
	tags := &pageTags{names: map[string]string{}, properties: map[string]string{}}
	collect(doc, tags)

	base := pageURL
	if tags.base != "" {
		if ref, err := url.Parse(tags.base); err == nil {
			base = pageURL.ResolveReference(ref)
		}
	}

	ld := pickJSONLD(tags.jsonLD)
	md := PageMetadata{
		OGTitle:            tags.meta("og:title"),
		OGDescription:      tags.meta("og:description"),
		OGImage:            absoluteURL(tags.meta("og:image"), base),
		OGSiteName:         tags.meta("og:site_name"),
		TwitterTitle:       tags.meta("twitter:title"),
		TwitterDescription: tags.meta("twitter:description"),
		TwitterImage:       absoluteURL(firstNonEmpty(tags.meta("twitter:image"), tags.meta("twitter:image:src")), base),
		JSONLD:             ld,
		Favicon:            tags.favicon(base),
	}
	md.Title = firstNonEmpty(md.OGTitle, md.TwitterTitle, ldString(ld, "headline"), tags.title)
	md.Description = firstNonEmpty(md.OGDescription, md.TwitterDescription, ldString(ld, "description"), tags.names["description"])
	return md, nil
}

func collect(n *html.Node, tags *pageTags) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			if tags.title == "" {
				tags.title = strings.TrimSpace(textContent(n))
			}
		case "base":
			if tags.base == "" {
				tags.base = attr(n, "href")
			}
		case "meta":
			content := strings.TrimSpace(attr(n, "content"))
			if name := strings.ToLower(attr(n, "name")); name != "" {
				setFirst(tags.names, name, content)
			}
			if property := strings.ToLower(attr(n, "property")); property != "" {
				setFirst(tags.properties, property, content)
			}
		case "link":
			tags.links = append(tags.links, linkTag{
				rel:   strings.Join(strings.Fields(strings.ToLower(attr(n, "rel"))), " "),
				sizes: strings.ToLower(strings.TrimSpace(attr(n, "sizes"))),
				href:  strings.TrimSpace(attr(n, "href")),
			})
		case "script":
			if strings.EqualFold(strings.TrimSpace(attr(n, "type")), "application/ld+json") {
				tags.jsonLD = append(tags.jsonLD, textContent(n))
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, tags)
	}
}

// meta looks a key up as property first and as name second; sites mix both for og and twitter.
func (t *pageTags) meta(key string) string {
	if v := t.properties[key]; v != "" {
		return v
	}
	return t.names[key]
}

func (t *pageTags) favicon(base *url.URL) string {
	for _, sel := range faviconSelectors {
		for _, l := range t.links {
			if l.rel != sel.rel || l.href == "" {
				continue
			}
			if sel.sizes != "" && l.sizes != sel.sizes {
				continue
			}
			return absoluteURL(l.href, base)
		}
	}
	return faviconServiceURL + base.Hostname()
}

// pickJSONLD returns the last JSON-LD object of a supported type. Blocks that fail to parse
// are ignored.
func pickJSONLD(blocks []string) map[string]any {
	var picked map[string]any
	for _, block := range blocks {
		var raw any
		if err := json.Unmarshal([]byte(block), &raw); err != nil {
			continue
		}
		candidates := []any{raw}
		if list, ok := raw.([]any); ok {
			candidates = list
		}
		for _, c := range candidates {
			obj, ok := c.(map[string]any)
			if ok && hasSupportedType(obj["@type"]) {
				picked = obj
			}
		}
	}
	return picked
}

func hasSupportedType(t any) bool {
	switch v := t.(type) {
	case string:
		return jsonLDTypes[v]
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && jsonLDTypes[s] {
				return true
			}
		}
	}
	return false
}

func ldString(ld map[string]any, key string) string {
	if s, ok := ld[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

var absolutePattern = regexp.MustCompile(`(?i)^https?://`)

// absoluteURL resolves ref against base. Protocol relative (//host/x), root relative (/x)
// and document relative (x) references are all handled; unparseable ones are returned as is.
func absoluteURL(ref string, base *url.URL) string {
	if ref == "" || absolutePattern.MatchString(ref) {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func setFirst(m map[string]string, key, value string) {
	if _, ok := m[key]; !ok || m[key] == "" {
		m[key] = value
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
