package zillow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"zillow-scraper/fetch"
	"zillow-scraper/models"
	"zillow-scraper/utils"
)

// clientFunc adapts a function to the fetch.Client interface for stubbing.
type clientFunc func(ctx context.Context, url string) (string, error)

func (f clientFunc) Fetch(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

// searchHTML builds a search-results page carrying the embedded data blob.
func searchHTML(t *testing.T, totalPages int, detailURLs ...string) string {
	t.Helper()

	list := make([]map[string]string, 0, len(detailURLs))
	for _, u := range detailURLs {
		list = append(list, map[string]string{"detailUrl": u})
	}
	blob := map[string]any{
		"props": map[string]any{
			"pageProps": map[string]any{
				"searchPageState": map[string]any{
					"cat1": map[string]any{
						"searchResults": map[string]any{"listResults": list},
						"searchList":    map[string]any{"totalPages": totalPages},
					},
				},
			},
		},
	}
	data, err := json.Marshal(blob)
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf(`<html><body><script id="__NEXT_DATA__" type="application/json">%s</script></body></html>`, data)
}

func TestCollectLinksSinglePage(t *testing.T) {
	client := clientFunc(func(_ context.Context, url string) (string, error) {
		return searchHTML(t, 1,
			"/homedetails/1-Main-St/111_zpid/",
			"https://www.zillow.com/homedetails/2-Oak-Ave/222_zpid/",
		), nil
	})

	c := NewCollector(client, utils.NewLogger(), 20)
	links, failure := c.CollectLinks(context.Background(), "02108")
	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if len(links) != 2 {
		t.Fatalf("links: got %d, want 2", len(links))
	}
	if links[0].URL != "https://www.zillow.com/homedetails/1-Main-St/111_zpid/" {
		t.Errorf("relative link not absolutized: %s", links[0].URL)
	}
	for _, l := range links {
		if l.Zip != "02108" {
			t.Errorf("link zip: got %s, want 02108", l.Zip)
		}
	}
}

func TestCollectLinksPaginates(t *testing.T) {
	client := clientFunc(func(_ context.Context, url string) (string, error) {
		switch {
		case strings.Contains(url, "2_p/"):
			return searchHTML(t, 3, "/homedetails/p2/222_zpid/"), nil
		case strings.Contains(url, "3_p/"):
			return searchHTML(t, 3, "/homedetails/p3/333_zpid/"), nil
		default:
			return searchHTML(t, 3, "/homedetails/p1/111_zpid/"), nil
		}
	})

	c := NewCollector(client, utils.NewLogger(), 20)
	links, failure := c.CollectLinks(context.Background(), "02108")
	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if len(links) != 3 {
		t.Errorf("links: got %d, want 3", len(links))
	}
}

func TestCollectLinksDeduplicates(t *testing.T) {
	// Every page returns the same listing.
	client := clientFunc(func(_ context.Context, url string) (string, error) {
		return searchHTML(t, 3, "/homedetails/same/999_zpid/"), nil
	})

	c := NewCollector(client, utils.NewLogger(), 20)
	links, failure := c.CollectLinks(context.Background(), "02108")
	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if len(links) != 1 {
		t.Errorf("links: got %d, want 1 after dedup", len(links))
	}
}

func TestCollectLinksFirstPageFailure(t *testing.T) {
	client := clientFunc(func(_ context.Context, url string) (string, error) {
		return "", &fetch.Failure{Kind: models.FailHTTPError, Detail: "503"}
	})

	c := NewCollector(client, utils.NewLogger(), 20)
	links, failure := c.CollectLinks(context.Background(), "02108")
	if len(links) != 0 {
		t.Errorf("links: got %d, want 0", len(links))
	}
	if failure == nil {
		t.Fatal("expected a failure record for the ZIP")
	}
	if failure.TargetID != "02108" {
		t.Errorf("failure target: got %s, want the ZIP code", failure.TargetID)
	}
	if failure.Kind != models.FailHTTPError {
		t.Errorf("failure kind: got %s, want %s", failure.Kind, models.FailHTTPError)
	}
}

func TestCollectLinksLaterPageFailureIsTolerated(t *testing.T) {
	client := clientFunc(func(_ context.Context, url string) (string, error) {
		if strings.Contains(url, "2_p/") {
			return "", errors.New("boom")
		}
		return searchHTML(t, 2, "/homedetails/p1/111_zpid/"), nil
	})

	c := NewCollector(client, utils.NewLogger(), 20)
	links, failure := c.CollectLinks(context.Background(), "02108")
	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if len(links) != 1 {
		t.Errorf("links: got %d, want 1 from the surviving page", len(links))
	}
}

func TestCollectLinksPaginationGuard(t *testing.T) {
	// The page always claims a huge page count; the collector must stop at
	// its cap instead of walking forever.
	var calls int64
	var serial int64
	client := clientFunc(func(_ context.Context, url string) (string, error) {
		atomic.AddInt64(&calls, 1)
		n := atomic.AddInt64(&serial, 1)
		return searchHTML(t, 100000, fmt.Sprintf("/homedetails/x%d/%d_zpid/", n, n)), nil
	})

	maxPages := 3
	c := NewCollector(client, utils.NewLogger(), maxPages)
	_, failure := c.CollectLinks(context.Background(), "02108")
	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}

	// Oversized searches split into price bands, each capped at maxPages.
	limit := int64(1 + len(priceBands)*maxPages)
	if calls > limit {
		t.Errorf("fetch calls: got %d, want at most %d", calls, limit)
	}
}

func TestParseSearchPageAnchorFallback(t *testing.T) {
	html := `<html><body>
		<a href="/homedetails/10-Elm-St/444_zpid/">listing</a>
		<a href="/profile/agent">not a listing</a>
	</body></html>`

	page, err := parseSearchPage(html)
	if err != nil {
		t.Fatalf("parseSearchPage: %v", err)
	}
	if len(page.links) != 1 {
		t.Fatalf("links: got %d, want 1", len(page.links))
	}
	if page.totalPages != 1 {
		t.Errorf("totalPages: got %d, want 1", page.totalPages)
	}
}

func TestParseSearchPageRejectsEmptyContent(t *testing.T) {
	if _, err := parseSearchPage("<html><body>nothing here</body></html>"); err == nil {
		t.Error("expected error for page with no blob and no anchors")
	}
}

func TestSearchURL(t *testing.T) {
	base := searchURL("02108", 1, nil)
	if base != "https://www.zillow.com/homes/02108_rb/" {
		t.Errorf("base url: got %s", base)
	}

	paged := searchURL("02108", 2, nil)
	if !strings.Contains(paged, "2_p/") || !strings.Contains(paged, "searchQueryState=") {
		t.Errorf("paged url missing page path or query state: %s", paged)
	}

	banded := searchURL("02108", 1, &priceBand{min: 300001, max: 400000})
	if !strings.Contains(banded, "searchQueryState=") {
		t.Errorf("banded url missing query state: %s", banded)
	}
}
