package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSString quotes s as a JavaScript string literal.
func JSString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// XPathLiteral quotes s as an XPath 1.0 string literal.
func XPathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		quoted = append(quoted, `"`+p+`"`)
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// TextXPath matches links and buttons whose text contains text.
func TextXPath(text string) string {
	q := XPathLiteral(text)
	return fmt.Sprintf(`//a[contains(normalize-space(.), %s)] | //button[contains(normalize-space(.), %s)]`, q, q)
}

// FindExpr returns a JavaScript expression evaluating to the first element
// matching loc, or null.
func FindExpr(loc Locator) string {
	switch loc.By {
	case "css":
		return fmt.Sprintf(`document.querySelector(%s)`, JSString(loc.Expr))
	case "text":
		return xpathFind(TextXPath(loc.Expr))
	default:
		return xpathFind(loc.Expr)
	}
}

func xpathFind(xpath string) string {
	return fmt.Sprintf(`document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`, JSString(xpath))
}

// TextScript yields the trimmed text content of the first match, or null.
func TextScript(loc Locator) string {
	return fmt.Sprintf(`(function () { var el = %s; return el ? el.textContent.trim() : null; })()`, FindExpr(loc))
}

// ClickScript clicks the first match from script and yields whether it existed.
func ClickScript(loc Locator) string {
	return fmt.Sprintf(`(function () { var el = %s; if (!el) { return false; } el.click(); return true; })()`, FindExpr(loc))
}

// VisibleScript yields whether the first match is rendered.
func VisibleScript(loc Locator) string {
	return fmt.Sprintf(`(function () { var el = %s; return !!el && (el.offsetParent !== null || el.getClientRects().length > 0); })()`, FindExpr(loc))
}
