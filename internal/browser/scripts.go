package browser

import (
	"encoding/json"
	"fmt"

	"github.com/opencode-ai/uiwalk/internal/uienv"
)

// registry maps refs to weakly held elements within one document.
const registry = `(window.__uiwalk || (window.__uiwalk = {seq: 0, els: {}}))`

type candidate struct {
	Ref     string  `json:"ref"`
	Text    string  `json:"text"`
	Visible bool    `json:"visible"`
	Attr    *string `json:"attr"`
}

type refResult struct {
	Found   bool `json:"found"`
	Visible bool `json:"visible"`
}

func literal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode script argument: %w", err)
	}
	return string(data), nil
}

// findScript lists the elements under d.Selector. Text and attribute
// matching happens in Go so both environments share one implementation.
func findScript(d uienv.Descriptor) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	selector, err := literal(d.Selector)
	if err != nil {
		return "", err
	}
	attribute, err := literal(d.Attribute)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
  const reg = %s;
  const attr = %s;
  for (const [ref, weak] of Object.entries(reg.els)) {
    const held = weak.deref();
    if (!held || !held.isConnected) delete reg.els[ref];
  }
  const out = [];
  for (const el of document.querySelectorAll(%s)) {
    const visible = el.isConnected && el.offsetParent !== null;
    if (%t && !visible) continue;
    if (!el.__uiwalkRef) {
      reg.seq += 1;
      el.__uiwalkRef = "e" + reg.seq;
    }
    if (!reg.els[el.__uiwalkRef]) {
      reg.els[el.__uiwalkRef] = new WeakRef(el);
    }
    out.push({ref: el.__uiwalkRef, text: el.textContent || "", visible, attr: attr ? el.getAttribute(attr) : null});
  }
  return out;
})()`, registry, attribute, selector, d.Visible), nil
}

func pick(candidates []candidate, d uienv.Descriptor) *uienv.Element {
	for _, c := range candidates {
		if d.Visible && !c.Visible {
			continue
		}
		attr := c.Attr
		lookup := func(name string) (string, bool) {
			if attr == nil || name != d.Attribute {
				return "", false
			}
			return *attr, true
		}
		if d.MatchesContent(c.Text, lookup) {
			return &uienv.Element{Ref: c.Ref, Text: c.Text}
		}
	}
	return nil
}

func elementExpr(ref string) (string, error) {
	lit, err := literal(ref)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`%s.els[%s]?.deref()`, registry, lit), nil
}

func visibleScript(ref string) string {
	el, err := elementExpr(ref)
	if err != nil {
		return `({found: false, visible: false})`
	}
	return fmt.Sprintf(`(() => {
  const el = %s;
  if (!el || !el.isConnected) return {found: false, visible: false};
  return {found: true, visible: el.offsetParent !== null};
})()`, el)
}

func invokeScript(ref string, action uienv.Action) (string, error) {
	var call string
	switch action {
	case uienv.ActionClick:
		call = "el.click()"
	case uienv.ActionFocus:
		call = "el.focus()"
	default:
		return "", fmt.Errorf("unsupported action %q", action)
	}
	el, err := elementExpr(ref)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
  const el = %s;
  if (!el || !el.isConnected) return {found: false, visible: false};
  %s;
  return {found: true, visible: el.offsetParent !== null};
})()`, el, call), nil
}

func navigateScript(url string) (string, error) {
	lit, err := literal(url)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => { window.location.href = %s; return true; })()`, lit), nil
}
