package convert

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"aggregat4/linkbook/internal/apperrors"
	"aggregat4/linkbook/internal/domain"
	"aggregat4/linkbook/internal/urlnorm"
)

// Folder is one level of a parsed Netscape bookmark file. The root has an empty name.
type Folder struct {
	Name      string
	Bookmarks []domain.Bookmark
	Folders   []*Folder
}

// Flatten lists the bookmarks of f and its subfolders in document order. Each bookmark's
// folder is the nearest named folder that contains it.
func (f *Folder) Flatten() []domain.Bookmark {
	result := make([]domain.Bookmark, 0)
	var walk func(*Folder)
	walk = func(folder *Folder) {
		result = append(result, folder.Bookmarks...)
		for _, sub := range folder.Folders {
			walk(sub)
		}
	}
	walk(f)
	return result
}

// ParseHTML reads a Netscape bookmark file and returns its bookmarks.
func ParseHTML(r io.Reader, now time.Time) ([]domain.Bookmark, error) {
	root, err := ParseHTMLTree(r, now)
	if err != nil {
		return nil, err
	}
	return root.Flatten(), nil
}

// ParseHTMLTree reads a Netscape bookmark file into its folder tree. A <DL> opens the folder
// named by the <H3> right before it; a <DL> without a heading stays in the enclosing folder.
func ParseHTMLTree(r io.Reader, now time.Time) (*Folder, error) {
	p := &netscapeParser{z: html.NewTokenizer(r), now: now}
	root := &Folder{}
	// a stray </DL> at the top level ends parseList early, so keep going until the input runs out
	for p.err == nil {
		p.parseList(root, nil)
	}
	if p.err != nil && !errors.Is(p.err, io.EOF) {
		return nil, apperrors.Format("could not read bookmark file", p.err)
	}
	return root, nil
}

type netscapeParser struct {
	z   *html.Tokenizer
	now time.Time
	err error
	// a token read ahead by a text collector that the list loop still has to see
	pending *html.Token
}

func (p *netscapeParser) next() (html.Token, bool) {
	if p.pending != nil {
		t := *p.pending
		p.pending = nil
		return t, true
	}
	if p.z.Next() == html.ErrorToken {
		p.err = p.z.Err()
		return html.Token{}, false
	}
	return p.z.Token(), true
}

func (p *netscapeParser) unread(t html.Token) {
	p.pending = &t
}

// parseList consumes tokens until the </DL> closing the current list, or the end of input.
func (p *netscapeParser) parseList(folder *Folder, folderName *string) {
	var heading *string
	var last *domain.Bookmark
	for {
		t, ok := p.next()
		if !ok {
			return
		}
		switch t.Type {
		case html.StartTagToken:
			switch t.Data {
			case "h3":
				name := strings.TrimSpace(p.textUntil("h3"))
				heading = &name
				last = nil
			case "dl":
				sub := folder
				subName := folderName
				if heading != nil {
					sub = &Folder{Name: *heading}
					folder.Folders = append(folder.Folders, sub)
					subName = heading
				}
				heading = nil
				last = nil
				p.parseList(sub, subName)
			case "a":
				b, ok := p.anchor(t, folderName)
				last = nil
				if ok {
					folder.Bookmarks = append(folder.Bookmarks, b)
					last = &folder.Bookmarks[len(folder.Bookmarks)-1]
				}
			case "dd":
				text := cleanText(p.textUntil("dd"))
				if last != nil && last.Description == "" {
					last.Description = text
				}
				last = nil
			}
		case html.EndTagToken:
			if t.Data == "dl" {
				return
			}
		}
	}
}

func (p *netscapeParser) anchor(t html.Token, folderName *string) (domain.Bookmark, bool) {
	var href, addDate, tags, icon string
	for _, a := range t.Attr {
		switch a.Key {
		case "href":
			href = strings.TrimSpace(a.Val)
		case "add_date":
			addDate = a.Val
		case "tags":
			tags = a.Val
		case "icon":
			icon = a.Val
		}
	}
	title := strings.TrimSpace(p.textUntil("a"))
	if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return domain.Bookmark{}, false
	}
	if title == "" {
		title = href
	}
	created := p.now
	if secs, err := strconv.ParseInt(strings.TrimSpace(addDate), 10, 64); err == nil && secs > 0 {
		created = time.Unix(secs, 0).UTC()
	}
	b := domain.Bookmark{
		URL:       urlnorm.EnsureScheme(href),
		Title:     title,
		Tags:      splitTags(tags),
		Favicon:   optional(icon),
		CreatedAt: created,
		UpdatedAt: created,
	}
	if folderName != nil {
		name := *folderName
		b.Folder = &name
	}
	return b, true
}

// textUntil collects text up to the end tag of element. <DD> has no end tag in practice and
// anchors are sometimes left open, so the next structural tag also ends the text and is left for
// the list loop.
func (p *netscapeParser) textUntil(element string) string {
	var b strings.Builder
	for {
		t, ok := p.next()
		if !ok {
			return b.String()
		}
		switch t.Type {
		case html.TextToken:
			b.WriteString(t.Data)
		case html.EndTagToken:
			if t.Data == element {
				return b.String()
			}
			if t.Data == "dl" {
				p.unread(t)
				return b.String()
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			if structuralTags[t.Data] {
				p.unread(t)
				return b.String()
			}
		}
	}
}

var structuralTags = map[string]bool{"dt": true, "dl": true, "dd": true, "h3": true, "a": true}
