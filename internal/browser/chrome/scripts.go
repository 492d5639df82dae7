package chrome

import (
	"fmt"

	"github.com/chromedp/chromedp"

	"contact_harvest/internal/browser"
)

const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });

window.chrome = {
    runtime: {},
    loadTimes: function() {},
    csi: function() {},
    app: {},
};

Object.defineProperty(navigator, 'plugins', {
    get: () => [
        { name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
        { name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai', description: '' },
    ],
});

Object.defineProperty(navigator, 'languages', {
    get: () => ['en-US', 'en'],
});

const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
    parameters.name === 'notifications' ?
        Promise.resolve({ state: Notification.permission }) :
        originalQuery(parameters)
);
`

// query maps a locator onto a chromedp selector and query option.
func query(loc browser.Locator) (string, chromedp.QueryOption) {
	switch loc.By {
	case "css":
		return loc.Expr, chromedp.ByQuery
	case "text":
		return browser.TextXPath(loc.Expr), chromedp.BySearch
	default:
		return loc.Expr, chromedp.BySearch
	}
}

func scriptCenter(css string) string {
	return fmt.Sprintf(`(function () {
  var el = document.querySelector(%s);
  if (!el) { return null; }
  var r = el.getBoundingClientRect();
  if (r.width === 0 || r.height === 0) { return null; }
  return [r.left + r.width / 2, r.top + r.height / 2];
})()`, browser.JSString(css))
}
