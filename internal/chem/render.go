package chem

import (
	"html"
	"math/big"
	"strconv"
	"strings"
)

// RenderHTML renders an expression or equation with HTML sub- and
// superscripts. A side that does not parse is shown as written inside an
// inline-error span.
func RenderHTML(src string) string {
	left, arrow, right := SplitOnArrow(src)
	if arrow == "" {
		return spanify(renderSide(left))
	}
	return spanify(renderSide(left) + renderArrow(arrow) + renderSide(right))
}

func spanify(s string) string {
	return `<span class="math">` + s + `</span>`
}

func renderArrow(a Arrow) string {
	if a == ArrowReversible {
		return "↔"
	}
	return "→"
}

func renderSide(src string) string {
	expr, err := ParseExpression(src)
	if err != nil {
		return `<span class="inline-error inline">` + html.EscapeString(src) + `</span>`
	}
	terms := make([]string, len(expr))
	for i, t := range expr {
		terms[i] = renderTerm(t)
	}
	return strings.Join(terms, "+")
}

func renderTerm(t Term) string {
	var sb strings.Builder
	switch {
	case t.Coefficient.IsInt():
		if t.Coefficient.Cmp(big.NewRat(1, 1)) != 0 {
			sb.WriteString(t.Coefficient.Num().String())
		}
	default:
		sb.WriteString("<sup>" + t.Coefficient.Num().String() + "</sup>&frasl;<sub>" + t.Coefficient.Denom().String() + "</sub>")
	}
	renderParts(&sb, t.Molecule.Parts)
	if t.Molecule.Phase != "" {
		sb.WriteString("(" + t.Molecule.Phase + ")")
	}
	return sb.String()
}

func renderParts(sb *strings.Builder, parts []Part) {
	for _, p := range parts {
		if p.Element != "" {
			sb.WriteString(p.Element)
		} else {
			sb.WriteByte(p.Bracket)
			renderParts(sb, p.Group)
			sb.WriteByte(closing(p.Bracket))
		}
		if p.Count != 1 {
			sb.WriteString("<sub>" + strconv.Itoa(p.Count) + "</sub>")
		}
		if p.Charge != 0 {
			sb.WriteString("<sup>" + chargeString(p.Charge) + "</sup>")
		}
	}
}
