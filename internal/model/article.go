package model

import "time"

// Article is a raw scraped unit before classification. URL is the natural
// key: the same URL is never stored twice, and it joins an article to the
// CVE/news records derived from it.
type Article struct {
	ID                int64     `json:"id" db:"id"`
	Source            string    `json:"source" db:"source"`
	URL               string    `json:"url" db:"url"`
	Title             string    `json:"title" db:"title"`
	TitleTranslated   string    `json:"title_translated" db:"title_translated"`
	Content           string    `json:"content" db:"content"`
	ContentTranslated string    `json:"content_translated" db:"content_translated"`
	Language          string    `json:"language" db:"language"`
	ScrapedAt         time.Time `json:"scraped_at"`
	PublishedDate     time.Time `json:"published_date"`
	Processed         bool      `json:"processed" db:"processed"`
}

// BestContent returns the translated content when available, falling back to
// the original text.
func (a *Article) BestContent() string {
	if a.ContentTranslated != "" {
		return a.ContentTranslated
	}
	return a.Content
}
