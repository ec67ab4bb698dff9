package order

import (
	"regexp"
	"strings"
	"supplierbot/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

var (
	confirmationTokenRegex = regexp.MustCompile(`^[A-Z0-9-]{4,}$`)
	digitRegex             = regexp.MustCompile(`[0-9]`)
)

// IsConfirmationToken matches order codes like "PED-2024-001". A digit is
// required so that uppercase labels ("PEDIDO", "MENU") are never taken for a
// code.
func IsConfirmationToken(text string) bool {
	return confirmationTokenRegex.MatchString(text) && digitRegex.MatchString(text)
}

func ownTextContains(sel *goquery.Selection, substrings ...string) bool {
	text := htmlutil.OwnText(sel.Get(0))
	for _, s := range substrings {
		if !strings.Contains(text, s) {
			return false
		}
	}
	return true
}

// confirmationSelector returns the nodes whose text may carry the order code.
type confirmationSelector struct {
	name string
	find func(doc *goquery.Document) *goquery.Selection
}

var confirmationSelectors = []confirmationSelector{
	{
		name: "codigo-pedido-class",
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find(`[class*="codigo-pedido"]`)
		},
	},
	{
		name: "order-code-class",
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find(`[class*="order-code"]`)
		},
	},
	{
		name: "pedido-numero-text",
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("body *").FilterFunction(func(_ int, el *goquery.Selection) bool {
				return ownTextContains(el, "Pedido", "número")
			})
		},
	},
	{
		name: "sibling-of-label",
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("body *").FilterFunction(func(_ int, el *goquery.Selection) bool {
				return ownTextContains(el, "Nº") || ownTextContains(el, "Código")
			}).NextAll()
		},
	},
	{
		name: "cell-after-pedido",
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("td").FilterFunction(func(_ int, td *goquery.Selection) bool {
				return strings.Contains(td.Text(), "Pedido")
			}).NextAllFiltered("td")
		},
	},
}

// FindConfirmationCode returns the first confirmation token found by the
// ordered selectors, along with the name of the selector that found it.
func FindConfirmationCode(doc *goquery.Document) (code string, selector string, ok bool) {
	for _, s := range confirmationSelectors {
		for _, fragment := range htmlutil.TextFragments(s.find(doc)) {
			if IsConfirmationToken(fragment) {
				return fragment, s.name, true
			}
		}
	}
	return "", "", false
}
