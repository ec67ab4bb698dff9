package listing

import (
	"github.com/PuerkitoBio/goquery"
)

// Strategy selects the nodes of a listing page that each describe one
// product.
type Strategy struct {
	Name string
	Rows func(doc *goquery.Document) *goquery.Selection
}

// the html parser wraps rows in a tbody even when the markup has none, so
// only a thead tells a declared header apart from the first data row.
func headed(table *goquery.Selection) bool {
	return table.ChildrenFiltered("thead").Length() > 0
}

func bodyRows(tables *goquery.Selection) *goquery.Selection {
	return tables.ChildrenFiltered("tbody").ChildrenFiltered("tr")
}

var tableBody = Strategy{
	Name: "table-body",
	Rows: func(doc *goquery.Document) *goquery.Selection {
		tables := doc.Find("table").FilterFunction(func(_ int, table *goquery.Selection) bool {
			return headed(table)
		})
		rows := bodyRows(tables.Filter(".table"))
		if rows.Length() > 0 {
			return rows
		}
		return bodyRows(tables)
	},
}

var tableRowsWithoutHeader = Strategy{
	Name: "table-rows-without-header",
	Rows: func(doc *goquery.Document) *goquery.Selection {
		rows := doc.Selection.Slice(0, 0)
		doc.Find("table").Each(func(_ int, table *goquery.Selection) {
			if headed(table) {
				return
			}
			body := bodyRows(table)
			if body.Length() > 1 {
				rows = rows.AddSelection(body.Slice(1, goquery.ToEnd))
			}
		})
		return rows
	},
}

var listItemBlocks = Strategy{
	Name: "list-item-blocks",
	Rows: func(doc *goquery.Document) *goquery.Selection {
		return doc.Find(`div[class*="item"], div[class*="produto"], div[class*="row"]`)
	},
}

// reaches single row tables and rows kept in a tfoot
var rowsWithThreeCells = Strategy{
	Name: "rows-with-three-cells",
	Rows: func(doc *goquery.Document) *goquery.Selection {
		return doc.Find("tr").Not("thead tr").FilterFunction(func(_ int, row *goquery.Selection) bool {
			return row.ChildrenFiltered("td").Length() >= 3
		})
	},
}

// Strategies are evaluated in order once per page, the first one selecting any
// node decides which nodes of the page are read as products. Tables without a
// thead always lose their first row, it is read as the header.
var Strategies = []Strategy{
	tableBody,
	tableRowsWithoutHeader,
	listItemBlocks,
	rowsWithThreeCells,
}
