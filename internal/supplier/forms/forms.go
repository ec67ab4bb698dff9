// Package forms finds the login or order form of an unknown page and maps
// its inputs to roles without knowing the field names in advance. Everything
// here is pure with respect to the document, nothing touches the network.
package forms

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"supplierbot/internal/supplier"
	"supplierbot/internal/supplier/fetch"

	"github.com/PuerkitoBio/goquery"
)

// field names tried when a form has no recognizable username or password
// input, covering the two naming schemes the supplier portals are known to use
var (
	fallbackUsernameFields = []string{"Email", "UserName"}
	fallbackPasswordFields = []string{"Senha", "Password"}
)

// Candidate is a form proposed by a FormRule.
type Candidate struct {
	Form       *goquery.Selection
	Index      int
	Rule       string
	Confidence float64
}

// Descriptor is everything needed to submit a located form.
type Descriptor struct {
	Action *url.URL
	Method string
	// Fields maps roles to the names of the inputs carrying them.
	Fields map[Role]string
	// Hidden holds inputs echoed back unchanged (csrf tokens, view state).
	Hidden url.Values
	// Rule is the name of the FormRule that selected the form.
	Rule string
}

// Payload builds the submission for creds. Roles without a field fall back to
// conventional field names. The descriptor is not modified.
func (d Descriptor) Payload(creds supplier.Credentials) url.Values {
	out := url.Values{}
	for k, v := range d.Hidden {
		out[k] = append([]string(nil), v...)
	}

	fill := func(role Role, value string, fallback []string) {
		if name, ok := d.Fields[role]; ok {
			out.Set(name, value)
			return
		}
		if value == "" {
			return
		}
		for _, f := range fallback {
			out.Set(f, value)
		}
	}
	fill(ROLE_USERNAME, creds.Username, fallbackUsernameFields)
	fill(ROLE_PASSWORD, creds.Password, fallbackPasswordFields)

	return out
}

// Locator applies form and field rules to documents.
type Locator struct {
	formRules  []FormRule
	fieldRules []FieldRule
}

func NewLocator(formRules []FormRule, fieldRules []FieldRule) Locator {
	return Locator{formRules: formRules, fieldRules: fieldRules}
}

var (
	loginLocator = NewLocator(LoginFormRules, LoginFieldRules)
	orderLocator = NewLocator(OrderFormRules, nil)
)

// Candidates returns the candidates of the first rule that proposed any, in
// document order. Confidence never reorders forms, the first match wins.
func (l Locator) Candidates(doc *goquery.Document) []Candidate {
	forms := doc.Find("form")
	for _, rule := range l.formRules {
		var candidates []Candidate
		forms.Each(func(i int, form *goquery.Selection) {
			confidence, ok := rule.Match(form, i)
			if !ok {
				return
			}
			candidates = append(candidates, Candidate{
				Form:       form,
				Index:      i,
				Rule:       rule.Name,
				Confidence: confidence,
			})
		})
		if len(candidates) > 0 {
			return candidates
		}
	}
	return nil
}

// Locate returns a descriptor for the best candidate form on the page or
// supplier.ErrFormNotFound.
func (l Locator) Locate(page fetch.Page) (Descriptor, error) {
	candidates := l.Candidates(page.Doc)
	if len(candidates) == 0 {
		return Descriptor{}, supplier.ErrFormNotFound
	}
	best := candidates[0]

	desc := Descriptor{
		Action: formAction(page, best.Form),
		Method: formMethod(best.Form),
		Fields: map[Role]string{},
		Hidden: url.Values{},
		Rule:   best.Rule,
	}

	confidences := map[Role]float64{}
	best.Form.Find("input").Each(func(_ int, input *goquery.Selection) {
		name := inputName(input)
		if name == "" {
			return
		}
		for _, rule := range l.fieldRules {
			confidence, ok := rule.Match(input)
			if !ok {
				continue
			}
			if _, taken := desc.Fields[rule.Role]; !taken || confidence > confidences[rule.Role] {
				desc.Fields[rule.Role] = name
				confidences[rule.Role] = confidence
			}
			return
		}
		value, hasValue := input.Attr("value")
		if hasValue {
			desc.Hidden.Add(name, value)
		}
	})

	return desc, nil
}

func formAction(page fetch.Page, form *goquery.Selection) *url.URL {
	action := page.Resolve(form.AttrOr("action", ""))
	if action == nil {
		u := *page.URL
		return &u
	}
	return action
}

func formMethod(form *goquery.Selection) string {
	method := strings.ToUpper(strings.TrimSpace(form.AttrOr("method", "")))
	if method == http.MethodGet {
		return http.MethodGet
	}
	return http.MethodPost
}

// LocateLogin finds the login form of a page.
func LocateLogin(page fetch.Page) (Descriptor, error) {
	return loginLocator.Locate(page)
}

// LocateOrder finds an order or cart form of a page. Only inputs carrying both
// a name and a value end up in Hidden.
func LocateOrder(page fetch.Page) (Descriptor, error) {
	desc, err := orderLocator.Locate(page)
	if err != nil {
		return desc, fmt.Errorf("order form: %w", err)
	}
	return desc, nil
}

// HasPasswordForm reports whether doc carries a form with a password input.
func HasPasswordForm(doc *goquery.Document) bool {
	return len(NewLocator([]FormRule{hasPasswordInput}, nil).Candidates(doc)) > 0
}
