package crawler

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Selectors for the book detail page.
const (
	titleSelector   = "#content h1"
	coverSelector   = "#content .bookimage img"
	commentSelector = "#content .texts .black"
	genreSelector   = "#content span.d_book a"
)

// maxExtBytes bounds what CoverFilename treats as a file extension.
const maxExtBytes = 16

// TitleSeparator splits the detail page heading into title and author.
const TitleSeparator = "::"

// BookParser turns a detail page into a BookRecord, downloading its assets.
type BookParser struct {
	fetcher    Fetcher
	downloader *Downloader
	site       SiteConfig
	logger     *zap.Logger
}

// NewBookParser builds a BookParser.
func NewBookParser(fetcher Fetcher, downloader *Downloader, site SiteConfig, logger *zap.Logger) *BookParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookParser{
		fetcher:    fetcher,
		downloader: downloader,
		site:       site,
		logger:     logger,
	}
}

// bookPage holds what the detail page itself tells us.
type bookPage struct {
	Title    string
	Author   string
	CoverSrc string
	Comments []string
	Genres   []string
}

// Parse fetches pageURL, downloads the enabled assets and returns the record.
// No record is returned unless every step succeeded.
func (p *BookParser) Parse(ctx context.Context, id BookID, pageURL string, opts RunOptions) (BookRecord, error) {
	res, err := p.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return BookRecord{}, err
	}
	page, err := parseBookPage(res.URL, res.Body)
	if err != nil {
		return BookRecord{}, err
	}

	record := BookRecord{
		Title:    page.Title,
		Author:   page.Author,
		Comments: page.Comments,
		Genres:   page.Genres,
	}

	if !opts.SkipText {
		textPath, err := p.downloader.Download(ctx, p.site.BookTextURL(id), TextFilename(id, page.Title), KindText, BooksDir)
		if err != nil {
			return BookRecord{}, err
		}
		record.TextPath = &textPath
	}

	imageURL, err := ResolveURL(res.URL, page.CoverSrc)
	if err != nil {
		return BookRecord{}, &StructureError{URL: pageURL, Detail: fmt.Sprintf("cover url: %v", err)}
	}
	imageName, err := p.imageFilename(id, imageURL)
	if err != nil {
		return BookRecord{}, &StructureError{URL: pageURL, Detail: fmt.Sprintf("cover name: %v", err)}
	}
	if !opts.SkipImages {
		imagePath, err := p.downloader.Download(ctx, imageURL, imageName, KindImage, ImagesDir)
		if err != nil {
			return BookRecord{}, err
		}
		record.ImagePath = &imagePath
	}

	p.logger.Info("book parsed",
		zap.String("url", pageURL),
		zap.String("book_id", id.String()),
		zap.String("title", record.Title),
	)
	return record, nil
}

// imageFilename prefixes the cover basename with the book id unless it is the
// shared placeholder image.
func (p *BookParser) imageFilename(id BookID, imageURL string) (string, error) {
	name, err := lastPathSegment(imageURL)
	if err != nil {
		return "", err
	}
	out := CoverFilename(id, name, p.site.PlaceholderCover)
	if out == "" || out == id.String()+". " {
		return "", fmt.Errorf("no usable file name in %q", name)
	}
	return out, nil
}

// CoverFilename returns the stored cover name for basename. The basename is
// sanitized and the whole name kept within the file name limit, extension
// first.
func CoverFilename(id BookID, basename, placeholder string) string {
	if basename == placeholder {
		return basename
	}
	ext := SanitizeFilename(path.Ext(basename))
	stem := strings.TrimSuffix(basename, path.Ext(basename))
	if len(ext) > maxExtBytes || ext == "." {
		ext, stem = "", basename
	}
	return FitFilename(id.String()+". ", SanitizeFilename(stem), ext)
}

// TextFilename returns the stored text name for a book.
func TextFilename(id BookID, title string) string {
	return FitFilename(id.String()+". ", SanitizeFilename(title), ".txt")
}

// SplitTitleAuthor splits a heading of the form "Title :: Author".
func SplitTitleAuthor(heading string) (string, string, bool) {
	title, author, ok := strings.Cut(heading, TitleSeparator)
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(title), strings.TrimSpace(author), true
}

func parseBookPage(pageURL string, body []byte) (bookPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return bookPage{}, &StructureError{URL: pageURL, Detail: fmt.Sprintf("parse html: %v", err)}
	}

	heading := doc.Find(titleSelector).First()
	if heading.Length() == 0 {
		return bookPage{}, &StructureError{URL: pageURL, Detail: "title node " + titleSelector + " not found"}
	}
	title, author, ok := SplitTitleAuthor(heading.Text())
	if !ok {
		return bookPage{}, &StructureError{URL: pageURL, Detail: fmt.Sprintf("title %q lacks %q separator", heading.Text(), TitleSeparator)}
	}

	src, ok := doc.Find(coverSelector).First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return bookPage{}, &StructureError{URL: pageURL, Detail: "cover node " + coverSelector + " not found"}
	}

	return bookPage{
		Title:    title,
		Author:   author,
		CoverSrc: src,
		Comments: selectionTexts(doc.Find(commentSelector)),
		Genres:   selectionTexts(doc.Find(genreSelector)),
	}, nil
}

func selectionTexts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, s.Text())
	})
	return out
}
