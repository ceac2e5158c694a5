// Package query turns list requests into store queries and shapes the returned page: it applies
// the filters the store cannot express and manages forward-only cursors.
package query

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"aggregat4/linkbook/internal/apperrors"
	"aggregat4/linkbook/internal/domain"
)

type SortKey string

const (
	SortCreatedAt   SortKey = "createdAt"
	SortUpdatedAt   SortKey = "updatedAt"
	SortTitle       SortKey = "title"
	SortVisitCount  SortKey = "visitCount"
	SortLastVisited SortKey = "lastVisited"
)

// Numeric reports whether the key sorts on an integer column. Only title sorts on text.
func (k SortKey) Numeric() bool {
	return k != SortTitle
}

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a list request as it arrives from a client.
type Params struct {
	Folder    *string
	Tags      []string
	Search    string
	Sort      SortKey
	Direction Direction
	Limit     int
	Cursor    string
}

// Normalize fills in defaults and rejects unknown sort keys and directions. A limit above
// maxLimit is capped.
func (p *Params) Normalize(defaultLimit, maxLimit int) error {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	switch p.Sort {
	case "":
		p.Sort = SortCreatedAt
	case SortCreatedAt, SortUpdatedAt, SortTitle, SortVisitCount, SortLastVisited:
	default:
		return apperrors.Validation(fmt.Sprintf("unsupported sort key %q", p.Sort))
	}
	switch Direction(strings.ToLower(string(p.Direction))) {
	case "":
		p.Direction = Desc
	case Asc:
		p.Direction = Asc
	case Desc:
		p.Direction = Desc
	default:
		return apperrors.Validation(fmt.Sprintf("unsupported sort direction %q", p.Direction))
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	p.Limit = min(p.Limit, maxLimit)
	p.Search = strings.TrimSpace(p.Search)
	tags := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	p.Tags = tags
	if p.Folder != nil && strings.TrimSpace(*p.Folder) == "" {
		p.Folder = nil
	}
	return nil
}

// Fingerprint identifies the filters and sort order of p. A cursor is only honoured by a request
// with the same fingerprint.
func (p Params) Fingerprint() string {
	tags := slices.Clone(p.Tags)
	slices.Sort(tags)
	folder := "\x00"
	if p.Folder != nil {
		folder = *p.Folder
	}
	parts := []string{folder, strings.Join(tags, "\x1f"), strings.ToLower(p.Search), string(p.Sort), string(p.Direction)}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1e")))
	return hex.EncodeToString(sum[:8])
}

// Cursor points at the last document of the previous page.
type Cursor struct {
	Sort        SortKey `json:"k"`
	Number      int64   `json:"n,omitempty"`
	Text        string  `json:"s,omitempty"`
	ID          string  `json:"id"`
	Fingerprint string  `json:"f"`
}

func EncodeCursor(c Cursor) string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

func DecodeCursor(s string) (Cursor, error) {
	var c Cursor
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, apperrors.Validation("invalid cursor")
	}
	if err := json.Unmarshal(data, &c); err != nil || c.ID == "" {
		return c, apperrors.Validation("invalid cursor")
	}
	return c, nil
}

// After returns where the requested page starts, or nil for the first page. A cursor created
// for other filters or another sort order restarts from the first page.
func (p Params) After() (*Cursor, error) {
	if p.Cursor == "" {
		return nil, nil
	}
	c, err := DecodeCursor(p.Cursor)
	if err != nil {
		return nil, err
	}
	if c.Fingerprint != p.Fingerprint() || c.Sort != p.Sort {
		return nil, nil
	}
	return &c, nil
}

// StoreQuery is the part of a list request the store evaluates itself.
type StoreQuery struct {
	UserID    string
	Folder    *string
	Sort      SortKey
	Direction Direction
	After     *Cursor
	Limit     int
}

// StoreQuery builds the store side of p for userID.
func (p Params) StoreQuery(userID string) (StoreQuery, error) {
	after, err := p.After()
	if err != nil {
		return StoreQuery{}, err
	}
	return StoreQuery{
		UserID:    userID,
		Folder:    p.Folder,
		Sort:      p.Sort,
		Direction: p.Direction,
		After:     after,
		Limit:     p.Limit,
	}, nil
}

// CursorFor builds the cursor that continues after b.
func (p Params) CursorFor(b domain.Bookmark) Cursor {
	c := Cursor{Sort: p.Sort, ID: b.ID, Fingerprint: p.Fingerprint()}
	switch p.Sort {
	case SortTitle:
		c.Text = b.Title
	default:
		c.Number = SortNumber(b, p.Sort)
	}
	return c
}

// SortNumber is the integer the store orders numeric keys by. Times are unix milliseconds and a
// missing lastVisited sorts as 0.
func SortNumber(b domain.Bookmark, key SortKey) int64 {
	switch key {
	case SortUpdatedAt:
		return b.UpdatedAt.UnixMilli()
	case SortVisitCount:
		return int64(b.VisitCount)
	case SortLastVisited:
		if b.LastVisited == nil {
			return 0
		}
		return b.LastVisited.UnixMilli()
	default:
		return b.CreatedAt.UnixMilli()
	}
}
