package listing

import (
	"net/url"
	"strings"
	"supplierbot/internal/supplier"
	"supplierbot/lib/htmlutil"
	"supplierbot/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// minimum amount of text fragments a row without cells must have to be read
// positionally
const minFragments = 5

// ExtractPage reads every product of a single listing document in document
// order, it also returns the name of the strategy that matched or "" when none
// did. It depends on nothing but doc.
func ExtractPage(doc *goquery.Document) ([]supplier.ProductRecord, string) {
	for _, strategy := range Strategies {
		rows := strategy.Rows(doc)
		if rows.Length() == 0 {
			continue
		}
		records := []supplier.ProductRecord{}
		rows.Each(func(_ int, row *goquery.Selection) {
			record, ok := ExtractRow(row)
			if ok {
				records = append(records, record)
			}
		})
		return records, strategy.Name
	}
	return nil, ""
}

// ExtractRow maps a row onto a ProductRecord positionally: gtin, code,
// description, factory price and stock. Rows with cells use their first five
// cells, anything else uses its first five text fragments. ok is false when
// the row identifies no product.
func ExtractRow(row *goquery.Selection) (record supplier.ProductRecord, ok bool) {
	var values []string

	cells := row.Find("td")
	switch {
	case cells.Length() > 0:
		cells.EachWithBreak(func(i int, cell *goquery.Selection) bool {
			values = append(values, htmlutil.CleanText(htmlutil.GetText(cell.Get(0))))
			return len(values) < 5
		})
	case goquery.NodeName(row) == "tr" && row.Find("th").Length() > 0:
		// header row
		return supplier.ProductRecord{}, false
	default:
		values = htmlutil.TextFragments(row)
		if len(values) < minFragments {
			return supplier.ProductRecord{}, false
		}
	}

	at := func(i int) string {
		if i < len(values) {
			return values[i]
		}
		return ""
	}
	record = supplier.ProductRecord{
		GTIN:         at(0),
		Code:         at(1),
		Description:  at(2),
		FactoryPrice: textutil.ParseDecimal(at(3), 0),
		Stock:        textutil.ParseDecimal(at(4), 0),
	}
	return record, record.Identified()
}

var nextLinkTexts = []string{"próxim", "next", "»"}

// NextPage finds the link to the next page of a listing, resolved against
// base. It returns nil on the last page.
func NextPage(base *url.URL, doc *goquery.Document) *url.URL {
	var next *url.URL
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := strings.ToLower(htmlutil.CleanText(a.Text()))
		if _, ok := textutil.MatchName(text, nextLinkTexts); !ok {
			return true
		}
		next = followable(base, a.AttrOr("href", ""))
		return next == nil
	})
	if next != nil {
		return next
	}

	for _, selector := range []string{
		"ul.pagination a[rel=next]",
		"a[rel=next]",
		"link[rel=next]",
	} {
		href, ok := doc.Find(selector).First().Attr("href")
		if !ok {
			continue
		}
		if next = followable(base, href); next != nil {
			return next
		}
	}
	return nil
}

func followable(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return nil
	}
	return htmlutil.ResolveURL(base, href)
}
