package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/tululu-archiver/internal/progress"
)

const bookLinkSelector = "#content .bookimage a"

// bookParser is satisfied by *BookParser; tests substitute a stub.
type bookParser interface {
	Parse(ctx context.Context, id BookID, pageURL string, opts RunOptions) (BookRecord, error)
}

// BookLink is a book found on a catalog page.
type BookLink struct {
	ID  BookID
	URL string
}

// CatalogWalker drives the crawl across a range of catalog pages.
type CatalogWalker struct {
	fetcher Fetcher
	parser  bookParser
	site    SiteConfig
	emitter progress.Emitter
	logger  *zap.Logger
}

// NewCatalogWalker builds a CatalogWalker. emitter and logger may be nil.
func NewCatalogWalker(
	fetcher Fetcher,
	parser *BookParser,
	site SiteConfig,
	emitter progress.Emitter,
	logger *zap.Logger,
) *CatalogWalker {
	return newCatalogWalker(fetcher, parser, site, emitter, logger)
}

func newCatalogWalker(
	fetcher Fetcher,
	parser bookParser,
	site SiteConfig,
	emitter progress.Emitter,
	logger *zap.Logger,
) *CatalogWalker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogWalker{
		fetcher: fetcher,
		parser:  parser,
		site:    site,
		emitter: progress.OrNop(emitter),
		logger:  logger,
	}
}

// Walk visits pages [opts.StartPage, opts.EndPage) in order and returns the
// records in crawl order. Page and book failures are logged and skipped.
// On a fatal error (cancellation, storage failure) the records gathered so
// far are returned together with the error.
func (w *CatalogWalker) Walk(ctx context.Context, opts RunOptions) ([]BookRecord, error) {
	records := make([]BookRecord, 0)
	for page := opts.StartPage; page < opts.EndPage; page++ {
		if err := ctx.Err(); err != nil {
			return records, fmt.Errorf("walk interrupted before page %d: %w", page, err)
		}
		pageRecords, err := w.walkPage(ctx, page, opts)
		records = append(records, pageRecords...)
		if err != nil {
			return records, err
		}
	}
	return records, nil
}

func (w *CatalogWalker) walkPage(ctx context.Context, page int, opts RunOptions) ([]BookRecord, error) {
	pageURL := w.site.CatalogPageURL(page)
	w.emitter.Emit(progress.Event{Stage: progress.StagePageStart, Page: page, URL: pageURL})

	links, err := w.fetchLinks(ctx, pageURL)
	if err != nil {
		if IsFatal(err) {
			return nil, fmt.Errorf("catalog page %d: %w", page, err)
		}
		w.skipPage(page, pageURL, err)
		return nil, nil
	}

	var records []BookRecord
	for _, link := range links {
		record, err := w.parser.Parse(ctx, link.ID, link.URL, opts)
		if err != nil {
			if IsFatal(err) {
				return records, fmt.Errorf("book %s: %w", link.URL, err)
			}
			w.skipBook(page, link, err)
			continue
		}
		records = append(records, record)
		w.emitter.Emit(progress.Event{
			Stage:  progress.StageBookArchived,
			Page:   page,
			BookID: link.ID.String(),
			URL:    link.URL,
		})
	}
	return records, nil
}

func (w *CatalogWalker) fetchLinks(ctx context.Context, pageURL string) ([]BookLink, error) {
	res, err := w.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return ParseCatalogPage(res.URL, res.Body)
}

// ParseCatalogPage extracts book links from a listing, resolved against pageURL.
// Links without a usable identifier are dropped.
func ParseCatalogPage(pageURL string, body []byte) ([]BookLink, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &StructureError{URL: pageURL, Detail: fmt.Sprintf("parse html: %v", err)}
	}
	var links []BookLink
	doc.Find(bookLinkSelector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		id, err := ParseBookID(href)
		if err != nil {
			return
		}
		abs, err := ResolveURL(pageURL, href)
		if err != nil {
			return
		}
		links = append(links, BookLink{ID: id, URL: abs})
	})
	return links, nil
}

func (w *CatalogWalker) skipPage(page int, pageURL string, err error) {
	reason := skipReason(err)
	if errors.Is(err, ErrPageRedirected) {
		w.logger.Warn("catalog page does not exist", zap.Int("page", page), zap.String("url", pageURL), zap.Error(err))
	} else {
		w.logger.Error("catalog page skipped", zap.Int("page", page), zap.String("url", pageURL), zap.Error(err))
	}
	w.emitter.Emit(progress.Event{Stage: progress.StagePageSkipped, Page: page, URL: pageURL, Note: reason})
}

func (w *CatalogWalker) skipBook(page int, link BookLink, err error) {
	reason := skipReason(err)
	msg := "book skipped"
	switch {
	case errors.Is(err, ErrPageRedirected):
		msg = "book does not exist"
	case errors.Is(err, ErrWrongContentType):
		msg = "book is not available for download"
	case errors.Is(err, ErrStructure):
		msg = "book page is malformed"
	}
	w.logger.Warn(msg,
		zap.Int("page", page),
		zap.String("book_id", link.ID.String()),
		zap.String("url", link.URL),
		zap.Error(err),
	)
	w.emitter.Emit(progress.Event{
		Stage:  progress.StageBookSkipped,
		Page:   page,
		BookID: link.ID.String(),
		URL:    link.URL,
		Note:   reason,
	})
}

func skipReason(err error) string {
	var httpErr *HTTPError
	switch {
	case errors.Is(err, ErrPageRedirected):
		return "redirected"
	case errors.Is(err, ErrWrongContentType):
		return "wrong content type"
	case errors.Is(err, ErrStructure):
		return "malformed page"
	case errors.Is(err, ErrRetriesExhausted):
		return "retries exhausted"
	case errors.As(err, &httpErr):
		return fmt.Sprintf("http %d", httpErr.StatusCode)
	default:
		return "fetch failed"
	}
}
