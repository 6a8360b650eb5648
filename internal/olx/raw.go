package olx

import (
	"encoding/xml"
	"html"
	"strings"
)

// rawWriter re-serializes decoded markup. Elements with no content are
// written self-closed, so <img/> survives the round trip unchanged.
type rawWriter struct {
	sb   strings.Builder
	open string // element whose start tag still lacks its ">"
}

func openTag(t xml.StartElement) string {
	var sb strings.Builder
	sb.WriteString("<" + t.Name.Local)
	for _, a := range t.Attr {
		sb.WriteString(" " + a.Name.Local + `="` + html.EscapeString(a.Value) + `"`)
	}
	sb.WriteString(">")
	return sb.String()
}

func (w *rawWriter) closeOpen() {
	if w.open != "" {
		w.sb.WriteString(">")
		w.open = ""
	}
}

func (w *rawWriter) start(t xml.StartElement) {
	w.closeOpen()
	tag := openTag(t)
	w.sb.WriteString(tag[:len(tag)-1])
	w.open = t.Name.Local
}

func (w *rawWriter) end(name string) {
	if w.open != "" {
		w.sb.WriteString("/>")
		w.open = ""
		return
	}
	w.sb.WriteString("</" + name + ">")
}

func (w *rawWriter) text(s string) {
	if s == "" {
		return
	}
	w.closeOpen()
	w.sb.WriteString(html.EscapeString(s))
}

func (w *rawWriter) String() string {
	w.closeOpen()
	return w.sb.String()
}

func (w *rawWriter) reset() {
	w.sb.Reset()
	w.open = ""
}
