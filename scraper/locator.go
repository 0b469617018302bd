package scraper

import (
	"encoding/json"
	"fmt"
)

// By selects how a Locator's Value is interpreted.
type By string

const (
	ByID    By = "id"
	ByCSS   By = "css"
	ByXPath By = "xpath"
)

// Locator identifies an element the way the page scripts refer to it.
type Locator struct {
	By    By
	Value string
}

// ID, CSS and XPath build Locators.
func ID(v string) Locator { return Locator{By: ByID, Value: v} }
func CSS(v string) Locator { return Locator{By: ByCSS, Value: v} }
func XPath(v string) Locator { return Locator{By: ByXPath, Value: v} }

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.By, l.Value)
}

// Validate rejects empty values and unknown strategies before anything is
// sent to the browser.
func (l Locator) Validate() error {
	switch l.By {
	case ByID, ByCSS, ByXPath:
	default:
		return fmt.Errorf("locator %q: unknown strategy %q", l.Value, l.By)
	}
	if l.Value == "" {
		return fmt.Errorf("locator %s: empty value", l.By)
	}
	return nil
}

type condition string

const (
	condPresent   condition = "present"
	condVisible   condition = "visible"
	condClickable condition = "clickable"
	condGone      condition = "gone"
	condCount     condition = "count"
)

// finderJS is called with `this` bound to the document being searched (the
// top document or an iframe's document). Depending on cond it returns the
// nth match, a match count, or whether the first match is gone.
const finderJS = `function() {
	const by = %s, value = %s, cond = %s, nth = %d;
	const doc = this;
	let list = [];
	if (by === 'id') {
		const el = doc.getElementById(value);
		if (el) list = [el];
	} else if (by === 'css') {
		list = Array.from(doc.querySelectorAll(value));
	} else {
		const r = doc.evaluate(value, doc, null, 7, null);
		for (let i = 0; i < r.snapshotLength; i++) list.push(r.snapshotItem(i));
	}
	const view = doc.defaultView || window;
	const visible = (el) => {
		if (!el.isConnected) return false;
		const st = view.getComputedStyle(el);
		return st.visibility !== 'hidden' && st.display !== 'none' && el.getClientRects().length > 0;
	};
	if (cond === 'count') return list.length;
	if (cond === 'gone') return list.length === 0 || !visible(list[0]);
	const el = list[nth];
	if (!el) return null;
	if (cond === 'visible' && !visible(el)) return null;
	if (cond === 'clickable' && (!visible(el) || el.disabled)) return null;
	return el;
}`

func (l Locator) finder(cond condition, nth int) string {
	return fmt.Sprintf(finderJS, jsString(string(l.By)), jsString(l.Value), jsString(string(cond)), nth)
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
