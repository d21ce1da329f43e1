package zillow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"zillow-scraper/fetch"
	"zillow-scraper/models"
	"zillow-scraper/utils"
)

const siteBase = "https://www.zillow.com"

// priceBand is one slice of the price axis used to split a search whose
// result set spans more pages than the site will serve.
type priceBand struct {
	min int
	max int // 0 means unbounded
}

// Zillow stops serving results past page 20, so oversized ZIPs are
// re-searched one price band at a time.
var priceBands = []priceBand{
	{0, 300000},
	{300001, 400000},
	{400001, 450000},
	{450001, 500000},
	{500001, 600000},
	{600001, 800000},
	{800001, 0},
}

// Collector discovers property links for ZIP codes through search-result
// pages.
type Collector struct {
	client   fetch.Client
	logger   *utils.Logger
	maxPages int
}

// NewCollector creates a Collector. maxPages caps pagination per search
// regardless of what the page content claims.
func NewCollector(client fetch.Client, logger *utils.Logger, maxPages int) *Collector {
	if maxPages < 1 {
		maxPages = 20
	}
	return &Collector{client: client, logger: logger, maxPages: maxPages}
}

// CollectLinks walks the search results for one ZIP code and returns the
// deduplicated property links. If the first page cannot be fetched or
// parsed, it returns no links and a single FailureRecord for the ZIP.
func (c *Collector) CollectLinks(ctx context.Context, zipCode string) ([]models.PropertyLink, *models.FailureRecord) {
	html, err := c.client.Fetch(ctx, searchURL(zipCode, 1, nil))
	if err != nil {
		f := fetch.AsFailure(err)
		c.logger.Error("[collector] %s: first page fetch failed: %s", zipCode, f.Detail)
		return nil, &models.FailureRecord{
			TargetID:   zipCode,
			Kind:       f.Kind,
			Detail:     f.Detail,
			OccurredAt: time.Now(),
		}
	}

	page, perr := parseSearchPage(html)
	if perr != nil {
		c.logger.Error("[collector] %s: %v", zipCode, perr)
		return nil, &models.FailureRecord{
			TargetID:   zipCode,
			Kind:       models.FailUnparsable,
			Detail:     perr.Error(),
			OccurredAt: time.Now(),
		}
	}

	seen := utils.NewLinkSet()
	var links []models.PropertyLink
	links = c.appendLinks(links, seen, zipCode, page.links)

	if page.totalPages > c.maxPages {
		c.logger.Info("[collector] %s reports %d pages, splitting by price band", zipCode, page.totalPages)
		for i := range priceBands {
			links = c.collectBand(ctx, zipCode, &priceBands[i], seen, links)
		}
	} else {
		links = c.collectPages(ctx, zipCode, nil, page.totalPages, seen, links)
	}

	c.logger.Info("[collector] %s: %d unique links", zipCode, len(links))
	return links, nil
}

// collectBand re-runs the search restricted to one price band and walks
// its pages.
func (c *Collector) collectBand(ctx context.Context, zipCode string, band *priceBand, seen *utils.LinkSet, links []models.PropertyLink) []models.PropertyLink {
	html, err := c.client.Fetch(ctx, searchURL(zipCode, 1, band))
	if err != nil {
		c.logger.Warn("[collector] %s band %d-%d: fetch failed: %v", zipCode, band.min, band.max, err)
		return links
	}
	page, perr := parseSearchPage(html)
	if perr != nil {
		c.logger.Warn("[collector] %s band %d-%d: %v", zipCode, band.min, band.max, perr)
		return links
	}
	links = c.appendLinks(links, seen, zipCode, page.links)
	return c.collectPages(ctx, zipCode, band, page.totalPages, seen, links)
}

// collectPages fetches pages 2..totalPages, never past the configured
// page cap, so malformed page counts cannot loop the collector.
func (c *Collector) collectPages(ctx context.Context, zipCode string, band *priceBand, totalPages int, seen *utils.LinkSet, links []models.PropertyLink) []models.PropertyLink {
	if totalPages > c.maxPages {
		totalPages = c.maxPages
	}
	for p := 2; p <= totalPages; p++ {
		if ctx.Err() != nil {
			c.logger.Warn("[collector] %s: stopping pagination: %v", zipCode, ctx.Err())
			return links
		}
		html, err := c.client.Fetch(ctx, searchURL(zipCode, p, band))
		if err != nil {
			c.logger.Warn("[collector] %s page %d: fetch failed: %v", zipCode, p, err)
			continue
		}
		page, perr := parseSearchPage(html)
		if perr != nil {
			c.logger.Warn("[collector] %s page %d: %v", zipCode, p, perr)
			continue
		}
		links = c.appendLinks(links, seen, zipCode, page.links)
	}
	return links
}

func (c *Collector) appendLinks(links []models.PropertyLink, seen *utils.LinkSet, zipCode string, urls []string) []models.PropertyLink {
	now := time.Now()
	for _, u := range urls {
		abs := absoluteURL(u)
		if abs == "" || !seen.Add(abs) {
			continue
		}
		links = append(links, models.PropertyLink{URL: abs, Zip: zipCode, DiscoveredAt: now})
	}
	return links
}

// searchPage is the parsed form of one search-results page.
type searchPage struct {
	links      []string
	totalPages int
}

// nextData mirrors the slice of the embedded __NEXT_DATA__ blob the
// collector needs.
type nextData struct {
	Props struct {
		PageProps struct {
			SearchPageState struct {
				Cat1 struct {
					SearchResults struct {
						ListResults []struct {
							DetailURL string `json:"detailUrl"`
						} `json:"listResults"`
					} `json:"searchResults"`
					SearchList struct {
						TotalPages int `json:"totalPages"`
					} `json:"searchList"`
				} `json:"cat1"`
			} `json:"searchPageState"`
		} `json:"pageProps"`
	} `json:"props"`
}

// parseSearchPage pulls property links and the reported page count out of
// the embedded data blob, falling back to scanning detail-page anchors
// when the blob is absent.
func parseSearchPage(html string) (*searchPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	if raw := doc.Find("script#__NEXT_DATA__").First().Text(); raw != "" {
		var nd nextData
		if err := json.Unmarshal([]byte(raw), &nd); err != nil {
			return nil, fmt.Errorf("parse search data blob: %w", err)
		}
		page := &searchPage{totalPages: nd.Props.PageProps.SearchPageState.Cat1.SearchList.TotalPages}
		for _, r := range nd.Props.PageProps.SearchPageState.Cat1.SearchResults.ListResults {
			if r.DetailURL != "" {
				page.links = append(page.links, r.DetailURL)
			}
		}
		return page, nil
	}

	// Fallback: anchor scan.
	var links []string
	doc.Find(`a[href*="/homedetails/"]`).Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && href != "" {
			links = append(links, href)
		}
	})
	if len(links) == 0 {
		return nil, fmt.Errorf("no search data blob and no listing anchors found")
	}
	return &searchPage{links: links, totalPages: 1}, nil
}

// searchURL builds the search-results URL for a ZIP, page number, and
// optional price band. Filters and pagination ride in the encoded
// searchQueryState query parameter the site expects.
func searchURL(zipCode string, page int, band *priceBand) string {
	base := fmt.Sprintf("%s/homes/%s_rb/", siteBase, zipCode)
	path := base
	if page > 1 {
		path = fmt.Sprintf("%s%d_p/", base, page)
	}
	if band == nil && page <= 1 {
		return path
	}

	state := map[string]any{
		"pagination":  map[string]int{},
		"filterState": map[string]any{},
	}
	if page > 1 {
		state["pagination"] = map[string]int{"currentPage": page}
	}
	if band != nil {
		price := map[string]int{"min": band.min}
		if band.max > 0 {
			price["max"] = band.max
		}
		state["filterState"] = map[string]any{"price": price}
	}

	encoded, _ := json.Marshal(state)
	return path + "?searchQueryState=" + url.QueryEscape(string(encoded))
}

func absoluteURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "/") {
		return siteBase + u
	}
	return u
}
