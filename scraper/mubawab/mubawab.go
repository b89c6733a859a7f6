package mubawab

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"

	"domus-ia/config"
	"domus-ia/models"
	"domus-ia/storage"
	"domus-ia/utils"
)

const (
	baseURL      = "https://www.mubawab.ma"
	adPrefix     = baseURL + "/fr/a/"
	propertyType = "Appartement"
	goneMarker   = "Cette page n'est plus disponible"
)

var errPageGone = errors.New("page no longer available")

// card is what the in-page extractor returns for one listing box.
type card struct {
	LinkRef     string   `json:"linkref"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Price       string   `json:"price"`
	Location    string   `json:"location"`
	Surface     string   `json:"surface"`
	Rooms       string   `json:"rooms"`
	Bedrooms    string   `json:"bedrooms"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
	Images      []string `json:"images"`
}

type pageData struct {
	Gone  bool   `json:"gone"`
	Cards []card `json:"cards"`
}

// Scraper walks the search result pages of a category for every configured
// city and streams each listing card into out.
type Scraper struct {
	cfg        *config.Config
	logger     *utils.Logger
	out        storage.RecordWriter
	pool       *utils.WorkerPool
	pages      *rate.Limiter
	visitedURL *utils.URLSet
	retry      *utils.RetryConfig
	written    atomic.Int64
}

// New creates a ready-to-use Mubawab Scraper. Cities run in parallel on the
// pool; RateLimitMs spaces every page request across all of them.
func New(cfg *config.Config, out storage.RecordWriter, logger *utils.Logger) *Scraper {
	return &Scraper{
		cfg:        cfg,
		logger:     logger,
		out:        out,
		pool:       utils.NewWorkerPool(cfg.MaxConcurrency),
		pages:      pageLimiter(cfg.RateLimitMs),
		visitedURL: utils.NewURLSet(),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
	}
}

// Scrape visits every city concurrently, up to PagesToScrape result pages
// each, and returns how many listings were written.
func (s *Scraper) Scrape(ctx context.Context) (int, error) {
	if len(s.cfg.ScrapeCities) == 0 {
		return 0, errors.New("mubawab: no cities configured")
	}
	s.logger.Info("[mubawab] Starting scrape of %s in %d cities, up to %d pages each",
		s.cfg.ScrapeCategory, len(s.cfg.ScrapeCities), s.cfg.PagesToScrape)

	chromeBin := findChromeBinary(s.cfg.ChromeBin)
	s.logger.Info("[mubawab] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()
	if err := chromedp.Run(browserCtx); err != nil {
		return 0, fmt.Errorf("mubawab: start browser: %w", err)
	}

	dateScraped := time.Now().Format("2006-01-02T15:04:05")
	for _, city := range s.cfg.ScrapeCities {
		city := city
		if err := s.pool.SubmitContext(ctx, func() { s.scrapeCity(browserCtx, city, dateScraped) }); err != nil {
			break
		}
	}
	s.pool.Wait()

	n := int(s.written.Load())
	s.logger.Info("[mubawab] Scrape complete: %d listings written, %d distinct urls seen", n, s.visitedURL.Size())
	return n, ctx.Err()
}

func (s *Scraper) scrapeCity(browserCtx context.Context, city, dateScraped string) {
	for page := 1; page <= s.cfg.PagesToScrape; page++ {
		if browserCtx.Err() != nil {
			return
		}

		url := PageURL(city, s.cfg.ScrapeCategory, page)
		data, err := s.fetchPage(browserCtx, url, page)
		if errors.Is(err, errPageGone) {
			s.logger.Info("[mubawab] %s: page %d no longer exists, moving on", city, page)
			return
		}
		if err != nil {
			s.logger.Error("[mubawab] %s: page %d failed: %v", city, page, err)
			return
		}

		listings := s.collect(data.Cards, dateScraped)
		if len(listings) == 0 {
			s.logger.Info("[mubawab] %s: no listings on page %d, done", city, page)
			return
		}

		for _, l := range listings {
			if err := s.out.Write(l); err != nil {
				s.logger.Error("[mubawab] %s: write listing: %v", city, err)
				return
			}
			s.written.Add(1)
		}
		s.logger.Info("[mubawab] %s: page %d, %d listings", city, page, len(listings))
	}
}

// collect keeps real ads not seen before in this run.
func (s *Scraper) collect(cards []card, dateScraped string) []*models.RawListing {
	out := make([]*models.RawListing, 0, len(cards))
	for _, c := range cards {
		l, ok := toListing(c, dateScraped)
		if !ok {
			continue
		}
		if !s.visitedURL.Add(l.URL) {
			s.logger.Debug("[mubawab] Skipping duplicate: %s", l.URL)
			continue
		}
		out = append(out, l)
	}
	return out
}

// pageLimiter allows one page request per rateLimitMs, without bursts.
func pageLimiter(rateLimitMs int) *rate.Limiter {
	if rateLimitMs <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Duration(rateLimitMs)*time.Millisecond), 1)
}

func (s *Scraper) fetchPage(browserCtx context.Context, url string, page int) (pageData, error) {
	var data pageData

	err := s.retry.Do(browserCtx, fmt.Sprintf("fetch %s", url), func() error {
		if err := s.pages.Wait(browserCtx); err != nil {
			return err
		}

		ctx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()

		ctx, cancelTimeout := context.WithTimeout(ctx, 60*time.Second)
		defer cancelTimeout()

		data = pageData{}
		if err := chromedp.Run(ctx,
			chromedp.Navigate(url),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Evaluate(extractScript, &data),
		); err != nil {
			return fmt.Errorf("chromedp page %d: %w", page, err)
		}
		return nil
	})
	if err != nil {
		return data, err
	}
	if data.Gone {
		return data, errPageGone
	}
	return data, nil
}

// PageURL returns the search result page for a city and category slug.
func PageURL(city, category string, page int) string {
	u := fmt.Sprintf("%s/fr/st/%s/%s", baseURL, city, category)
	if page > 1 {
		u += fmt.Sprintf(":p:%d", page)
	}
	return u
}

// toListing turns an extracted card into an export record. Cards that do
// not link to an ad are rejected.
func toListing(c card, dateScraped string) (*models.RawListing, bool) {
	if !strings.HasPrefix(c.LinkRef, adPrefix) {
		return nil, false
	}
	url := strings.TrimSpace(c.URL)
	if url == "" {
		url = c.LinkRef
	}

	l := &models.RawListing{
		Title:        squash(c.Title),
		Price:        squash(c.Price),
		Location:     squash(c.Location),
		PropertyType: propertyType,
		URL:          url,
		SourceSite:   baseURL,
		Surface:      squash(c.Surface),
		Rooms:        firstWord(c.Rooms),
		Bedrooms:     firstWord(c.Bedrooms),
		Description:  strings.TrimSpace(c.Description),
		Images:       strings.Join(c.Images, ";"),
		DateScraped:  dateScraped,
	}
	if l.Rooms == "" {
		l.Rooms = l.Bedrooms
	}

	var balcony, pool, elevator bool
	features := make([]string, 0, len(c.Features))
	for _, f := range c.Features {
		f = strings.ToLower(squash(f))
		if f == "" {
			continue
		}
		features = append(features, capitalize(f))
		balcony = balcony || strings.Contains(f, "terrasse") || strings.Contains(f, "balcon")
		pool = pool || strings.Contains(f, "piscine")
		elevator = elevator || strings.Contains(f, "ascenseur")
	}
	l.Features = strings.Join(features, ";")
	l.Balcony = pyBool(balcony)
	l.Pool = pyBool(pool)
	l.Elevator = pyBool(elevator)

	return l, true
}

// squash collapses runs of whitespace, NBSP included, into single spaces.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

// pyBool matches how existing exports spell booleans.
func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// findChromeBinary locates a Chrome/Chromium binary, preferring configured.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var extractScript = `
(function() {
	var text = function(el) { return el ? el.textContent.trim() : ''; };
	var gone = document.body.innerText.indexOf(` + "`" + goneMarker + "`" + `) !== -1;
	var cards = [];
	var boxes = document.querySelectorAll('div.listingBox');
	for (var i = 0; i < boxes.length; i++) {
		var box = boxes[i];
		var link = box.querySelector('h2.listingTit a');
		var c = {
			linkref: box.getAttribute('linkref') || '',
			title: text(link),
			url: link ? link.href : '',
			price: text(box.querySelector('span.priceTag')),
			location: text(box.querySelector('span.listingH3')),
			surface: '', rooms: '', bedrooms: '',
			description: text(box.querySelector('p.listingP')),
			features: [],
			images: []
		};
		var details = box.querySelectorAll('div.adDetailFeature');
		for (var d = 0; d < details.length; d++) {
			var icon = details[d].querySelector('i');
			if (!icon) continue;
			var val = text(details[d].querySelector('span'));
			if (icon.classList.contains('icon-triangle')) c.surface = val;
			else if (icon.classList.contains('icon-house-boxes')) c.rooms = val;
			else if (icon.classList.contains('icon-bed')) c.bedrooms = val;
		}
		var feats = box.querySelectorAll('div.adFeatures div.adFeature span');
		for (var f = 0; f < feats.length; f++) c.features.push(text(feats[f]));
		var imgs = box.querySelectorAll('div.adSlider img[data-lazy]');
		for (var m = 0; m < imgs.length; m++) c.images.push(imgs[m].getAttribute('data-lazy'));
		cards.push(c);
	}
	return {gone: gone, cards: cards};
})()
`
