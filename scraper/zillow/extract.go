package zillow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"zillow-scraper/models"
	"zillow-scraper/utils"
)

var (
	// zpidRegexp pulls the numeric property id out of a detail URL.
	zpidRegexp = regexp.MustCompile(`(\d+)_zpid`)
	// numberRegexp captures a numeric value tolerating thousands separators.
	numberRegexp = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
)

// ExtractionError reports that a page could not yield a usable record.
type ExtractionError struct {
	Kind   models.FailureKind
	Detail string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract: %s: %s", e.Kind, e.Detail)
}

// Extractor parses fetched property pages into PropertyRecords. Each page
// is run through an ordered list of strategies; later strategies only fill
// fields the earlier ones left empty.
type Extractor struct {
	logger *utils.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(logger *utils.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// fieldSet is the raw string form of a listing's fields as found on the
// page, before numeric normalization.
type fieldSet struct {
	address      string
	price        string
	status       string
	mlsNumber    string
	daysOnMarket string
	views        string
	saves        string
}

func (f *fieldSet) merge(other fieldSet) {
	if f.address == "" {
		f.address = other.address
	}
	if f.price == "" {
		f.price = other.price
	}
	if f.status == "" {
		f.status = other.status
	}
	if f.mlsNumber == "" {
		f.mlsNumber = other.mlsNumber
	}
	if f.daysOnMarket == "" {
		f.daysOnMarket = other.daysOnMarket
	}
	if f.views == "" {
		f.views = other.views
	}
	if f.saves == "" {
		f.saves = other.saves
	}
}

// Extract parses one property page. Missing optional fields become nil
// values plus a warning; a record-level failure occurs only when no
// strategy can locate all of {address, price, status}.
func (e *Extractor) Extract(pageURL, html string) (*models.PropertyRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ExtractionError{Kind: models.FailUnparsable, Detail: err.Error()}
	}

	strategies := []struct {
		name string
		fn   func(*goquery.Document) fieldSet
	}{
		{"structured-data", extractStructuredData},
		{"markup", extractMarkup},
	}

	// Later strategies only fill what earlier ones left blank, so the
	// structured blob wins for core fields while the markup still
	// contributes the overview stats it alone carries.
	var fields fieldSet
	for _, s := range strategies {
		fields.merge(s.fn(doc))
	}

	price, priceOK := parsePrice(fields.price)
	var missing []string
	if fields.address == "" {
		missing = append(missing, "address")
	}
	if !priceOK {
		missing = append(missing, "price")
	}
	if fields.status == "" {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return nil, &ExtractionError{
			Kind:   models.FailMissingField,
			Detail: "mandatory fields not found: " + strings.Join(missing, ", "),
		}
	}

	record := &models.PropertyRecord{
		PropertyID:  propertyID(pageURL),
		URL:         pageURL,
		Address:     fields.address,
		Price:       price,
		Status:      fields.status,
		MLSNumber:   fields.mlsNumber,
		ExtractedAt: time.Now(),
	}

	if fields.mlsNumber == "" {
		record.Warnings = append(record.Warnings, "mls_number absent")
	}
	record.DaysOnMarket = parseOptionalCount(fields.daysOnMarket, "days_on_market", record)
	record.ViewCount = parseOptionalCount(fields.views, "view_count", record)
	record.SaveCount = parseOptionalCount(fields.saves, "save_count", record)

	return record, nil
}

// parseOptionalCount converts a raw count field, recording a warning on
// the target record when the field is absent or non-numeric.
func parseOptionalCount(raw, name string, record *models.PropertyRecord) *int {
	n, ok := parseCount(raw)
	if !ok {
		record.Warnings = append(record.Warnings, name+" absent")
		return nil
	}
	return &n
}

// ldListing mirrors the schema.org blob carried on property pages.
type ldListing struct {
	Type    string `json:"@type"`
	Name    string `json:"name"`
	Address *struct {
		StreetAddress   string `json:"streetAddress"`
		AddressLocality string `json:"addressLocality"`
		AddressRegion   string `json:"addressRegion"`
		PostalCode      string `json:"postalCode"`
	} `json:"address"`
	Offers *struct {
		Price        json.Number `json:"price"`
		Availability string      `json:"availability"`
	} `json:"offers"`
}

// extractStructuredData reads ld+json blocks for address, price, and
// status.
func extractStructuredData(doc *goquery.Document) fieldSet {
	var fields fieldSet
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var ld ldListing
		if err := json.Unmarshal([]byte(s.Text()), &ld); err != nil {
			return true
		}
		if ld.Address != nil && ld.Address.StreetAddress != "" {
			parts := []string{ld.Address.StreetAddress}
			if ld.Address.AddressLocality != "" {
				parts = append(parts, ld.Address.AddressLocality)
			}
			if ld.Address.AddressRegion != "" {
				region := ld.Address.AddressRegion
				if ld.Address.PostalCode != "" {
					region += " " + ld.Address.PostalCode
				}
				parts = append(parts, region)
			}
			fields.address = strings.Join(parts, ", ")
		}
		if ld.Offers != nil {
			if ld.Offers.Price != "" {
				fields.price = ld.Offers.Price.String()
			}
			fields.status = statusFromAvailability(ld.Offers.Availability)
		}
		return fields.address == "" || fields.price == ""
	})
	return fields
}

func statusFromAvailability(availability string) string {
	switch {
	case strings.Contains(availability, "InStock"):
		return "For sale"
	case strings.Contains(availability, "SoldOut"):
		return "Sold"
	case strings.Contains(availability, "PreOrder"):
		return "Pending"
	default:
		return ""
	}
}

// extractMarkup is the fallback strategy scraping the visible page: the
// title carries "address | MLS #n", the meta description carries the
// price, and the overview-stats list carries days/views/saves in order.
func extractMarkup(doc *goquery.Document) fieldSet {
	var fields fieldSet

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts := strings.Split(title, "|")
		if len(parts) >= 2 {
			fields.address = strings.TrimSpace(parts[0])
			mls := strings.TrimSpace(parts[1])
			if idx := strings.LastIndex(mls, "#"); idx >= 0 {
				fields.mlsNumber = strings.TrimSpace(mls[idx+1:])
			}
		}
	}

	if content, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		if idx := strings.Index(content, "$"); idx >= 0 {
			rest := content[idx+1:]
			if end := strings.IndexAny(rest, " ."); end > 0 {
				fields.price = rest[:end]
			} else {
				fields.price = rest
			}
		}
		fields.status = statusFromText(content)
	}

	if fields.status == "" {
		fields.status = statusFromText(doc.Find(`[data-testid="home-status"]`).First().Text())
	}

	stats := doc.Find(`dl[class*="StyledOverviewStats"]`).First()
	if stats.Length() > 0 {
		var values []string
		stats.Find("dt").Each(func(_ int, dt *goquery.Selection) {
			if _, hasClass := dt.Attr("class"); hasClass {
				return
			}
			values = append(values, strings.TrimSpace(dt.Find("strong").First().Text()))
		})
		if len(values) > 0 {
			fields.daysOnMarket = values[0]
		}
		if len(values) > 1 {
			fields.views = values[1]
		}
		if len(values) > 2 {
			fields.saves = values[2]
		}
	}

	return fields
}

var knownStatuses = []string{"for sale", "for rent", "sold", "pending", "off market", "auction"}

func statusFromText(text string) string {
	lower := strings.ToLower(text)
	for _, s := range knownStatuses {
		if strings.Contains(lower, s) {
			return strings.ToUpper(s[:1]) + s[1:]
		}
	}
	return ""
}

// parsePrice normalizes a price string, tolerating currency symbols and
// thousands separators. Garbage is reported as absent, never an error.
func parsePrice(raw string) (float64, bool) {
	match := numberRegexp.FindString(raw)
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseCount parses an integer count with optional thousands separators.
func parseCount(raw string) (int, bool) {
	match := numberRegexp.FindString(raw)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

// propertyID derives a stable identifier from a detail URL, preferring the
// site's numeric id when present.
func propertyID(pageURL string) string {
	if m := zpidRegexp.FindStringSubmatch(pageURL); len(m) == 2 {
		return m[1]
	}
	trimmed := strings.TrimSuffix(pageURL, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 && idx < len(trimmed)-1 {
		return trimmed[idx+1:]
	}
	return trimmed
}
