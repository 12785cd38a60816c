package crawler

import (
	"fmt"
	"strconv"
	"strings"
)

// URL template placeholders.
const (
	PagePlaceholder = "{page}"
	IDPlaceholder   = "{id}"
)

// Layout folders, relative to the asset store root.
const (
	BooksDir  = "books"
	ImagesDir = "images"
)

// Default site values for tululu.org.
const (
	DefaultCatalogURL       = "https://tululu.org/l55/" + PagePlaceholder + "/"
	DefaultTextURL          = "https://tululu.org/txt.php?id=" + IDPlaceholder
	DefaultPlaceholderCover = "nopic.gif"
)

// Asset kinds matched against the declared Content-Type.
const (
	KindText  = "text/plain"
	KindImage = "image/"
)

// SiteConfig describes the target site's URL scheme.
type SiteConfig struct {
	// CatalogURL is the listing URL template containing {page}.
	CatalogURL string
	// TextURL is the text download URL template containing {id}.
	TextURL string
	// PlaceholderCover is the cover basename the site uses for "no cover".
	PlaceholderCover string
}

// DefaultSiteConfig returns the tululu.org configuration.
func DefaultSiteConfig() SiteConfig {
	return SiteConfig{
		CatalogURL:       DefaultCatalogURL,
		TextURL:          DefaultTextURL,
		PlaceholderCover: DefaultPlaceholderCover,
	}
}

// Validate checks that both templates carry their placeholder.
func (c SiteConfig) Validate() error {
	if !strings.Contains(c.CatalogURL, PagePlaceholder) {
		return fmt.Errorf("catalog url %q must contain %s", c.CatalogURL, PagePlaceholder)
	}
	if !strings.Contains(c.TextURL, IDPlaceholder) {
		return fmt.Errorf("text url %q must contain %s", c.TextURL, IDPlaceholder)
	}
	if strings.ContainsAny(c.PlaceholderCover, `/\`) {
		return fmt.Errorf("placeholder cover %q must be a bare filename", c.PlaceholderCover)
	}
	return nil
}

// CatalogPageURL returns the listing URL for page.
func (c SiteConfig) CatalogPageURL(page int) string {
	return strings.ReplaceAll(c.CatalogURL, PagePlaceholder, strconv.Itoa(page))
}

// BookTextURL returns the text download URL for id.
func (c SiteConfig) BookTextURL(id BookID) string {
	return strings.ReplaceAll(c.TextURL, IDPlaceholder, string(id))
}
