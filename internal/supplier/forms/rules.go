package forms

import (
	"strings"
	"supplierbot/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
)

// Role is the meaning a field carries for the submission.
type Role string

const (
	ROLE_USERNAME Role = "username"
	ROLE_PASSWORD Role = "password"
)

// FormRule proposes forms of a document as candidates. Rules are consulted in
// order, the first rule yielding any candidate decides the result.
type FormRule struct {
	Name string
	// Match returns the confidence that form is the one searched for, ok is
	// false when the rule does not apply to the form at all.
	Match func(form *goquery.Selection, index int) (confidence float64, ok bool)
}

// FieldRule assigns a Role to an input of the chosen form.
type FieldRule struct {
	Name  string
	Role  Role
	Match func(input *goquery.Selection) (confidence float64, ok bool)
}

var (
	passwordKeywords = []string{"senha", "password"}
	usernameKeywords = []string{"email", "user", "login", "usuario"}
	orderKeywords    = []string{"pedido", "carrinho", "order", "cart"}
	quantityKeywords = []string{"quantidade", "quantity", "qtd", "qty"}
)

// nameConfidence scores how close an attribute value is to the keyword it
// matched, so that "username" outranks "remember_user".
func nameConfidence(name, keyword string) float64 {
	return matchr.JaroWinkler(textutil.NormalizeName(name), keyword, false)
}

func inputName(input *goquery.Selection) string {
	return strings.TrimSpace(input.AttrOr("name", ""))
}

func inputType(input *goquery.Selection) string {
	return strings.ToLower(strings.TrimSpace(input.AttrOr("type", "text")))
}

func anyInputNamed(form *goquery.Selection, keywords []string) (float64, bool) {
	best := 0.0
	found := false
	form.Find("input[name]").Each(func(_ int, input *goquery.Selection) {
		name := inputName(input)
		matched, ok := textutil.MatchName(name, keywords)
		if !ok {
			return
		}
		found = true
		best = max(best, nameConfidence(name, matched))
	})
	return best, found
}

var hasPasswordInput = FormRule{
	Name: "has-password-input",
	Match: func(form *goquery.Selection, _ int) (float64, bool) {
		passwords := form.Find("input").FilterFunction(func(_ int, input *goquery.Selection) bool {
			return inputType(input) == "password"
		})
		return 1, passwords.Length() > 0
	},
}

var firstForm = FormRule{
	Name: "first-form",
	Match: func(_ *goquery.Selection, index int) (float64, bool) {
		return 0.1, index == 0
	},
}

var actionOrIdHint = FormRule{
	Name: "action-or-id-hint",
	Match: func(form *goquery.Selection, _ int) (float64, bool) {
		action := strings.ToLower(form.AttrOr("action", ""))
		for _, k := range orderKeywords {
			if strings.Contains(action, k) {
				return 1, true
			}
		}
		id := form.AttrOr("id", "")
		if matched, ok := textutil.MatchName(id, orderKeywords); ok {
			return 0.5 + nameConfidence(id, matched)/2, true
		}
		return 0, false
	},
}

var hasQuantityInput = FormRule{
	Name: "has-quantity-input",
	Match: func(form *goquery.Selection, _ int) (float64, bool) {
		return anyInputNamed(form, quantityKeywords)
	},
}

var hasOrderInput = FormRule{
	Name: "has-order-input",
	Match: func(form *goquery.Selection, _ int) (float64, bool) {
		return anyInputNamed(form, orderKeywords)
	},
}

// LoginFormRules locate the login form: the first form with a password input,
// else the first form of the page.
var LoginFormRules = []FormRule{hasPasswordInput, firstForm}

// OrderFormRules locate an order or cart form. There is intentionally no
// first-form fallback, a page without an order form must be detectable.
var OrderFormRules = []FormRule{actionOrIdHint, hasQuantityInput, hasOrderInput}

var passwordType = FieldRule{
	Name: "password-type",
	Role: ROLE_PASSWORD,
	Match: func(input *goquery.Selection) (float64, bool) {
		return 1, inputType(input) == "password"
	},
}

var passwordName = FieldRule{
	Name: "password-name",
	Role: ROLE_PASSWORD,
	Match: func(input *goquery.Selection) (float64, bool) {
		name := inputName(input)
		matched, ok := textutil.MatchName(name, passwordKeywords)
		if !ok {
			return 0, false
		}
		return nameConfidence(name, matched), true
	},
}

var usernameName = FieldRule{
	Name: "username-name",
	Role: ROLE_USERNAME,
	Match: func(input *goquery.Selection) (float64, bool) {
		name := inputName(input)
		matched, ok := textutil.MatchName(name, usernameKeywords)
		if !ok {
			return 0, false
		}
		return nameConfidence(name, matched), true
	},
}

// LoginFieldRules are consulted in order for every input, the first matching
// rule classifies it.
var LoginFieldRules = []FieldRule{passwordType, passwordName, usernameName}
