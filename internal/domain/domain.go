package domain

import (
	"time"
)

type Bookmark struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Tags        []string   `json:"tags"`
	Folder      *string    `json:"folder"`
	Favicon     *string    `json:"favicon"`
	Metadata    *Metadata  `json:"metadata"`
	ReadLater   bool       `json:"readLater"`
	VisitCount  int        `json:"visitCount"`
	LastVisited *time.Time `json:"lastVisited"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Metadata is the subset of scraped page metadata persisted with a bookmark.
type Metadata struct {
	OpenGraph   Card   `json:"openGraph"`
	TwitterCard Card   `json:"twitterCard"`
	Domain      string `json:"domain"`
}

type Card struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// HasTag reports whether tag is one of b's tags (exact match).
func (b Bookmark) HasTag(tag string) bool {
	for _, t := range b.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// FolderName returns the folder or "" when the bookmark is uncategorized.
func (b Bookmark) FolderName() string {
	if b.Folder == nil {
		return ""
	}
	return *b.Folder
}

// BookmarkPatch carries an edit. Nil fields are left unchanged.
type BookmarkPatch struct {
	URL         *string   `json:"url"`
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Tags        *[]string `json:"tags"`
	Folder      *string   `json:"folder"`
	ClearFolder bool      `json:"clearFolder"`
	Favicon     *string   `json:"favicon"`
	Metadata    *Metadata `json:"metadata"`
	ReadLater   *bool     `json:"readLater"`
}

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

type View string

const (
	ViewGrid View = "grid"
	ViewList View = "list"
)

type UserSettings struct {
	UserID        string               `json:"userId"`
	Theme         Theme                `json:"theme"`
	DefaultView   View                 `json:"defaultView"`
	Sidebar       SidebarSettings      `json:"sidebar"`
	Notifications NotificationSettings `json:"notifications"`
	Sync          SyncSettings         `json:"sync"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

type SidebarSettings struct {
	Expanded  bool     `json:"expanded"`
	Favorites []string `json:"favorites"`
}

type NotificationSettings struct {
	Enabled bool `json:"enabled"`
	Email   bool `json:"email"`
}

type SyncSettings struct {
	AutoSync   bool       `json:"autoSync"`
	LastSynced *time.Time `json:"lastSynced"`
}

// DefaultUserSettings are what a user gets on first access.
func DefaultUserSettings(userID string, now time.Time) UserSettings {
	return UserSettings{
		UserID:        userID,
		Theme:         ThemeSystem,
		DefaultView:   ViewGrid,
		Sidebar:       SidebarSettings{Expanded: true, Favorites: []string{}},
		Notifications: NotificationSettings{Enabled: true, Email: false},
		Sync:          SyncSettings{AutoSync: true},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// SettingsPatch is a partial settings update: only non-nil keys are applied.
type SettingsPatch struct {
	Theme         *Theme             `json:"theme" validate:"omitempty,oneof=light dark system"`
	DefaultView   *View              `json:"defaultView" validate:"omitempty,oneof=grid list"`
	Sidebar       *SidebarPatch      `json:"sidebar"`
	Notifications *NotificationPatch `json:"notifications"`
	Sync          *SyncPatch         `json:"sync"`
}

type SidebarPatch struct {
	Expanded  *bool     `json:"expanded"`
	Favorites *[]string `json:"favorites"`
}

type NotificationPatch struct {
	Enabled *bool `json:"enabled"`
	Email   *bool `json:"email"`
}

type SyncPatch struct {
	AutoSync   *bool      `json:"autoSync"`
	LastSynced *time.Time `json:"lastSynced"`
}

// Apply merges p into s and returns the result. s is not modified.
func (p SettingsPatch) Apply(s UserSettings) UserSettings {
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.DefaultView != nil {
		s.DefaultView = *p.DefaultView
	}
	if p.Sidebar != nil {
		if p.Sidebar.Expanded != nil {
			s.Sidebar.Expanded = *p.Sidebar.Expanded
		}
		if p.Sidebar.Favorites != nil {
			s.Sidebar.Favorites = append([]string{}, (*p.Sidebar.Favorites)...)
		}
	}
	if p.Notifications != nil {
		if p.Notifications.Enabled != nil {
			s.Notifications.Enabled = *p.Notifications.Enabled
		}
		if p.Notifications.Email != nil {
			s.Notifications.Email = *p.Notifications.Email
		}
	}
	if p.Sync != nil {
		if p.Sync.AutoSync != nil {
			s.Sync.AutoSync = *p.Sync.AutoSync
		}
		if p.Sync.LastSynced != nil {
			t := *p.Sync.LastSynced
			s.Sync.LastSynced = &t
		}
	}
	return s
}

type ReadLaterBookmarkWithContent struct {
	Url                   string
	SuccessfullyRetrieved bool
	Title                 string
	Byline                string
	Content               string
	RetrievalTime         time.Time
	ContentType           string
}

type ReadLaterBookmark struct {
	Id           uint64
	Url          string
	AttemptCount int
}

type FeedCandidate struct {
	BookmarkId string
	UserId     string
}

type Configuration struct {
	DBFilename                string
	BaseUrl                   string
	ServerPort                int
	ServerReadTimeoutSeconds  int
	ServerWriteTimeoutSeconds int
	SessionCookieSecretKey    string

	LogLevel  string
	PrettyLog bool

	BookmarksPageSize    int
	BookmarksMaxPageSize int
	BatchChunkSize       int
	TagsCacheTTLSeconds  int

	MetadataTimeoutSeconds   int
	MetadataCacheTTLSeconds  int
	MetadataMaxBodyBytes     int
	MetadataUserAgent        string
	PreloadBatchSize         int
	PreloadPauseMilliseconds int
	PreloadMaxUrls           int

	// RedisAddr switches the metadata cache to redis when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MaxContentDownloadAttempts       int
	MaxContentDownloadTimeoutSeconds int
	MaxContentDownloadSizeBytes      int
	MaxBookmarksToDownload           int
	FeedCrawlingIntervalSeconds      int
	MonthsToAddToFeed                int
}

// DefaultConfiguration holds the values used when the environment does not override them.
func DefaultConfiguration() Configuration {
	return Configuration{
		DBFilename:                       "bookmarks.sqlite",
		BaseUrl:                          "http://localhost:1323",
		ServerPort:                       1323,
		ServerReadTimeoutSeconds:         5,
		ServerWriteTimeoutSeconds:        10,
		LogLevel:                         "info",
		BookmarksPageSize:                20,
		BookmarksMaxPageSize:             100,
		BatchChunkSize:                   500,
		TagsCacheTTLSeconds:              5 * 60,
		MetadataTimeoutSeconds:           5,
		MetadataCacheTTLSeconds:          24 * 60 * 60,
		MetadataMaxBodyBytes:             2 * 1024 * 1024,
		MetadataUserAgent:                "Mozilla/5.0 (compatible; LinkBook/1.0; +https://linkbook.app)",
		PreloadBatchSize:                 5,
		PreloadPauseMilliseconds:         500,
		PreloadMaxUrls:                   10,
		MaxContentDownloadAttempts:       3,
		MaxContentDownloadTimeoutSeconds: 20,
		MaxContentDownloadSizeBytes:      2 * 1024 * 1024,
		MaxBookmarksToDownload:           20,
		FeedCrawlingIntervalSeconds:      5 * 60,
		MonthsToAddToFeed:                6,
	}
}
