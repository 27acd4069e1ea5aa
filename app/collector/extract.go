package collector

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const marketplaceBaseURL = "https://facebook.com"

// ExtractListings pulls the individual ads out of a rendered search
// results page. Listings without both a title and a price are dropped,
// as are prices not denominated in the configured currency ("free" ads
// always pass). Duplicate detail URLs within one page yield one listing.
func ExtractListings(html, currency string) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	seen := make(map[string]bool)
	var listings []Listing

	doc.Find(`a[href^="/marketplace/item/"]`).Each(func(_ int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		// Tracking parameters vary between scrapes of the same ad
		if i := strings.IndexByte(href, '?'); i >= 0 {
			href = href[:i]
		}

		detailURL := marketplaceBaseURL + href
		if seen[detailURL] {
			return
		}
		seen[detailURL] = true

		title := strings.TrimSpace(link.Find(`span[style*="-webkit-line-clamp"]`).First().Text())
		price := strings.TrimSpace(link.Find(`span[dir="auto"]`).First().Text())
		if title == "" || price == "" {
			return
		}

		if !validPrice(price, currency) {
			return
		}

		listings = append(listings, Listing{
			DetailURL: detailURL,
			Title:     title,
			Price:     price,
		})
	})

	return listings, nil
}

func validPrice(price, currency string) bool {
	return strings.HasPrefix(price, currency) || strings.Contains(strings.ToLower(price), "free")
}
