package olx

import (
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// Config maps markup tags to tree node types. The zero value recognizes
// nothing; use DefaultConfig.
type Config struct {
	GroupTags       map[string]ItemType
	ResponseTags    map[string]ItemType
	TransparentTags map[string]bool
	// CodeAnswerTypes must carry a nested <answer> whose text is the code.
	CodeAnswerTypes map[ItemType]bool
}

// DefaultConfig returns the tag tables for the CAPA dialect.
func DefaultConfig() Config {
	return Config{
		GroupTags: map[string]ItemType{
			"multiplechoiceresponse": ItemMultipleChoice,
			"choiceresponse":         ItemMultipleChoice,
			"truefalseresponse":      ItemTrueFalse,
		},
		ResponseTags: map[string]ItemType{
			"numericalresponse": ItemNumerical,
			"stringresponse":    ItemString,
			"formularesponse":   ItemFormula,
			"schematicresponse": ItemSchematic,
			"symbolicresponse":  ItemSymbolic,
			"customresponse":    ItemCustom,
		},
		TransparentTags: map[string]bool{
			"problem":       true,
			"choicegroup":   true,
			"checkboxgroup": true,
		},
		CodeAnswerTypes: map[ItemType]bool{
			ItemCustom:    true,
			ItemSchematic: true,
		},
	}
}

// Converter turns markup into a Problem. It keeps no state between calls.
type Converter struct {
	cfg Config
}

// New returns a Converter for cfg.
func New(cfg Config) *Converter {
	return &Converter{cfg: cfg}
}

// Convert parses src with the default tag tables.
func Convert(src string) (*Problem, error) {
	return New(DefaultConfig()).Convert(src)
}

var (
	startOutText = regexp.MustCompile(`<startouttext\s*/>`)
	endOutText   = regexp.MustCompile(`<endouttext\s*/>`)
)

// Convert parses src.
func (c *Converter) Convert(src string) (*Problem, error) {
	src = startOutText.ReplaceAllString(src, "<text>")
	src = endOutText.ReplaceAllString(src, "</text>")
	return c.ConvertReader(strings.NewReader(src))
}

// ConvertReader parses markup from r. The <startouttext/> spelling is not
// rewritten here; use Convert for sources that may contain it.
func (c *Converter) ConvertReader(r io.Reader) (*Problem, error) {
	dec := xml.NewDecoder(r)
	dec.Entity = xml.HTMLEntity

	st := &state{cfg: c.cfg, p: &Problem{}, section: NoNode, group: NoNode}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &InvalidNesting{Tag: st.top(), Depth: len(st.stack), Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			err = st.start(t)
		case xml.EndElement:
			err = st.end(t)
		case xml.CharData:
			st.chars(string(t))
		}
		if err != nil {
			return nil, err
		}
	}
	if st.inText {
		return nil, &InvalidNesting{Tag: "text", Depth: len(st.stack)}
	}
	st.flush()
	return st.p, nil
}

type frameKind int

const (
	frameTransparent frameKind = iota
	frameText
	frameGroup
	frameChoice
	frameResponse
	frameCode   // <script> or <answer> body
	frameCenter // <center> inside top-level text
	frameRaw    // markup copied into pending text
	frameInline // markup inside a section; only its text is kept
)

type frame struct {
	tag  string
	kind frameKind
}

type state struct {
	cfg Config
	p   *Problem

	stack []frame

	inText  bool
	section NodeID
	group   NodeID
	pending rawWriter

	code       strings.Builder
	scriptLang string

	center centerCapture
}

type centerCapture struct {
	raw    rawWriter
	imgs   []xml.StartElement
	others int
	text   strings.Builder
}

func (s *state) top() string {
	if len(s.stack) == 0 {
		return ""
	}
	return s.stack[len(s.stack)-1].tag
}

func (s *state) innermost() frameKind {
	if len(s.stack) == 0 {
		return frameTransparent
	}
	return s.stack[len(s.stack)-1].kind
}

func (s *state) push(tag string, kind frameKind) {
	s.stack = append(s.stack, frame{tag: tag, kind: kind})
}

func (s *state) nesting(tag string) error {
	return &InvalidNesting{Tag: tag, Depth: len(s.stack) + 1}
}

func (s *state) start(t xml.StartElement) error {
	tag := strings.ToLower(t.Name.Local)

	if s.innermost() == frameCode {
		s.code.WriteString(openTag(t))
		s.push(tag, frameCode)
		return nil
	}

	if tag == "script" {
		s.scriptLang = scriptLanguage(attr(t, "type"))
		s.code.Reset()
		s.push(tag, frameCode)
		return nil
	}

	if k := s.innermost(); k == frameCenter || k == frameRaw {
		if s.structural(tag) {
			return s.nesting(tag)
		}
		if s.inCenter() {
			s.captureCenterStart(t)
		} else {
			s.pending.start(t)
		}
		s.push(tag, frameRaw)
		return nil
	}

	if tag == "text" {
		if s.inText {
			return s.nesting(tag)
		}
		s.inText = true
		embedded := s.section != NoNode
		if !embedded {
			s.flush()
		}
		slog.Debug("olx: enter text region", "embedded", embedded, "depth", len(s.stack)+1)
		s.push(tag, frameText)
		return nil
	}

	if typ, ok := s.cfg.GroupTags[tag]; ok {
		if s.section != NoNode {
			return s.nesting(tag)
		}
		s.flush()
		s.group = s.p.add(Node{Parent: NoNode, Type: typ, Extras: extras(t, nil)})
		s.section = s.group
		slog.Debug("olx: open group", "tag", tag, "id", s.group)
		s.push(tag, frameGroup)
		return nil
	}

	if typ, ok := s.cfg.ResponseTags[tag]; ok {
		if s.section != NoNode {
			return s.nesting(tag)
		}
		s.flush()
		answer := attr(t, "expect")
		if answer == "" {
			answer = attr(t, "answer")
		}
		s.section = s.p.add(Node{
			Parent: NoNode,
			Type:   typ,
			Answer: Answer{Value: answer},
			Extras: extras(t, map[string]bool{"answer": true, "expect": true}),
		})
		slog.Debug("olx: open response", "tag", tag, "id", s.section)
		s.push(tag, frameResponse)
		return nil
	}

	if tag == "choice" {
		if s.group == NoNode || s.section != s.group {
			return s.nesting(tag)
		}
		correct, ok := boolAttr(t, "correct")
		if !ok {
			return &MissingContent{Tag: tag, What: `a correct="true|false" attribute`}
		}
		s.section = s.p.add(Node{
			Parent:   s.group,
			Type:     ItemChoice,
			Correct:  correct,
			Location: attr(t, "location"),
			Extras:   extras(t, map[string]bool{"correct": true, "location": true}),
		})
		slog.Debug("olx: open choice", "id", s.section, "group", s.group)
		s.push(tag, frameChoice)
		return nil
	}

	if tag == "responseparam" {
		n := s.currentResponse()
		if n == nil {
			return &TagNotConsumed{Tag: tag, Depth: len(s.stack) + 1}
		}
		for _, a := range t.Attr {
			name := a.Name.Local
			if name == "type" || name == "default" || strings.HasPrefix(name, "_") {
				continue
			}
			setExtra(n, name, a.Value)
		}
		if typ := attr(t, "type"); typ != "" {
			setExtra(n, typ, attr(t, "default"))
		}
		s.push(tag, frameInline)
		return nil
	}

	if tag == "answer" {
		n := s.currentResponse()
		if n == nil || !s.cfg.CodeAnswerTypes[n.Type] {
			return &TagNotConsumed{Tag: tag, Depth: len(s.stack) + 1}
		}
		s.code.Reset()
		s.scriptLang = scriptLanguage(attr(t, "type"))
		s.push(tag, frameCode)
		return nil
	}

	if tag == "additional_answer" {
		n := s.currentResponse()
		if n == nil {
			return &TagNotConsumed{Tag: tag, Depth: len(s.stack) + 1}
		}
		if v := attr(t, "answer"); v != "" {
			n.Answer.Alternatives = append(n.Answer.Alternatives, v)
		}
		s.push(tag, frameInline)
		return nil
	}

	if s.cfg.TransparentTags[tag] {
		s.push(tag, frameTransparent)
		return nil
	}

	if s.section != NoNode {
		// Labels and inputs inside a section only contribute their text.
		s.push(tag, frameInline)
		return nil
	}

	if tag == "center" && s.inText {
		s.flush()
		s.center = centerCapture{}
		s.center.raw.start(t)
		s.push(tag, frameCenter)
		return nil
	}

	s.pending.start(t)
	s.push(tag, frameRaw)
	return nil
}

func (s *state) inCenter() bool {
	for _, f := range s.stack {
		if f.kind == frameCenter {
			return true
		}
	}
	return false
}

// structural reports whether tag opens a tree node or a text region.
func (s *state) structural(tag string) bool {
	_, group := s.cfg.GroupTags[tag]
	_, response := s.cfg.ResponseTags[tag]
	return group || response || tag == "choice" || tag == "text"
}

func (s *state) captureCenterStart(t xml.StartElement) {
	s.center.raw.start(t)
	if strings.EqualFold(t.Name.Local, "img") {
		s.center.imgs = append(s.center.imgs, t)
	} else {
		s.center.others++
	}
}

func (s *state) end(t xml.EndElement) error {
	tag := strings.ToLower(t.Name.Local)
	if len(s.stack) == 0 {
		return s.nesting(tag)
	}
	f := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]

	switch f.kind {
	case frameCode:
		if s.innermost() == frameCode {
			s.code.WriteString("</" + t.Name.Local + ">")
			return nil
		}
		code := strings.Trim(s.code.String(), "\r\n")
		if tag == "script" {
			s.p.Scripts = append(s.p.Scripts, Script{Language: s.scriptLang, Code: code})
			return nil
		}
		s.currentResponse().Answer.Code = code
		return nil

	case frameRaw:
		if s.inCenter() {
			s.center.raw.end(t.Name.Local)
		} else {
			s.pending.end(t.Name.Local)
		}
		return nil

	case frameCenter:
		s.center.raw.end(t.Name.Local)
		s.finishCenter()
		return nil

	case frameText:
		slog.Debug("olx: leave text region", "embedded", s.section != NoNode)
		s.inText = false
		if s.section == NoNode {
			s.flush()
		}
		return nil

	case frameChoice:
		s.section = s.group
		return nil

	case frameGroup:
		slog.Debug("olx: close group", "id", s.group, "choices", len(s.p.Node(s.group).Children))
		s.section, s.group = NoNode, NoNode
		return nil

	case frameResponse:
		n := s.p.Node(s.section)
		if s.cfg.CodeAnswerTypes[n.Type] && n.Answer.Code == "" {
			return &MissingContent{Tag: tag, What: "a nested <answer> element"}
		}
		slog.Debug("olx: close response", "tag", tag, "id", s.section)
		s.section = NoNode
		return nil
	}
	return nil
}

func (s *state) chars(text string) {
	switch {
	case s.innermost() == frameCode:
		s.code.WriteString(text)
	case s.inCenter():
		s.center.raw.text(text)
		s.center.text.WriteString(text)
	case s.section != NoNode:
		appendText(s.p.Node(s.section), text)
	default:
		s.pending.text(text)
	}
}

// currentResponse returns the open response node, or nil.
func (s *state) currentResponse() *Node {
	if s.section == NoNode {
		return nil
	}
	n := s.p.Node(s.section)
	if !n.Type.IsResponse() {
		return nil
	}
	return n
}

// flush turns pending top-level markup into a text item.
func (s *state) flush() {
	html := strings.TrimSpace(s.pending.String())
	s.pending.reset()
	if html == "" {
		return
	}
	s.p.add(Node{Parent: NoNode, Type: ItemText, Text: html})
}

// finishCenter emits an image item for a <center> holding one <img> and
// optional caption text, or keeps the markup as a text item otherwise.
func (s *state) finishCenter() {
	c := &s.center
	if len(c.imgs) == 1 && c.others == 0 {
		img := c.imgs[0]
		n := Node{
			Parent: NoNode,
			Type:   ItemImage,
			Src:    attr(img, "src"),
			Title:  strings.Join(strings.Fields(c.text.String()), " "),
			Extras: extras(img, map[string]bool{"src": true}),
		}
		s.p.add(n)
		return
	}
	s.p.add(Node{Parent: NoNode, Type: ItemText, Text: strings.TrimSpace(c.raw.String())})
}

func appendText(n *Node, text string) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return
	}
	if n.Text != "" {
		n.Text += " "
	}
	n.Text += text
}

func attr(t xml.StartElement, name string) string {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func boolAttr(t xml.StartElement, name string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(attr(t, name))) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// extras copies the attributes not in skip. Names starting with "_" are
// internal and never copied.
func extras(t xml.StartElement, skip map[string]bool) map[string]string {
	var m map[string]string
	for _, a := range t.Attr {
		name := a.Name.Local
		if skip[name] || strings.HasPrefix(name, "_") {
			continue
		}
		if m == nil {
			m = make(map[string]string)
		}
		m[name] = a.Value
	}
	return m
}

func setExtra(n *Node, key, value string) {
	if strings.HasPrefix(key, "_") {
		return
	}
	if n.Extras == nil {
		n.Extras = make(map[string]string)
	}
	n.Extras[key] = value
}

// scriptLanguage takes the part after the slash: "loncapa/python" is python.
func scriptLanguage(typ string) string {
	if i := strings.LastIndex(typ, "/"); i >= 0 {
		return typ[i+1:]
	}
	return typ
}
