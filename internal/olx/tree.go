// Package olx converts CAPA problem markup into a flat problem tree of text,
// images, choice groups and response fields.
package olx

import (
	"encoding/json"
	"fmt"
)

// ItemType names the kind of a tree node.
type ItemType string

const (
	ItemText           ItemType = "text"
	ItemImage          ItemType = "image"
	ItemChoice         ItemType = "choice"
	ItemMultipleChoice ItemType = "multiple_choice"
	ItemTrueFalse      ItemType = "true_false"
	ItemNumerical      ItemType = "numerical"
	ItemString         ItemType = "string"
	ItemFormula        ItemType = "formula"
	ItemSchematic      ItemType = "schematic"
	ItemSymbolic       ItemType = "symbolic"
	ItemCustom         ItemType = "custom"
)

// IsGroup reports whether t holds choices.
func (t ItemType) IsGroup() bool {
	return t == ItemMultipleChoice || t == ItemTrueFalse
}

// IsResponse reports whether t is a free-response field.
func (t ItemType) IsResponse() bool {
	switch t {
	case ItemNumerical, ItemString, ItemFormula, ItemSchematic, ItemSymbolic, ItemCustom:
		return true
	}
	return false
}

// NodeID addresses a node inside its Problem.
type NodeID int

// NoNode is the parent of top-level nodes.
const NoNode NodeID = -1

// Answer is the expected answer of a response field.
type Answer struct {
	Value        string   `json:"value,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	Code         string   `json:"code,omitempty"`
}

// Node is one element of the problem tree. Nodes refer to each other only
// by NodeID; the Problem owns them all.
type Node struct {
	ID     NodeID
	Parent NodeID
	Type   ItemType

	Text string
	// Src and Title describe images.
	Src   string
	Title string
	// Correct and Location describe choices.
	Correct  bool
	Location string

	Answer Answer
	Extras map[string]string

	Children []NodeID
}

// Script is embedded code carried by the problem.
type Script struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// Problem is the converted tree.
type Problem struct {
	Scripts  []Script
	Contents []NodeID
	Nodes    []Node
}

// Node returns the node with the given id.
func (p *Problem) Node(id NodeID) *Node {
	return &p.Nodes[id]
}

// Gradable returns the top-level groups and responses in document order.
func (p *Problem) Gradable() []*Node {
	var out []*Node
	for _, id := range p.Contents {
		n := p.Node(id)
		if n.Type.IsGroup() || n.Type.IsResponse() {
			out = append(out, n)
		}
	}
	return out
}

func (p *Problem) add(n Node) NodeID {
	n.ID = NodeID(len(p.Nodes))
	p.Nodes = append(p.Nodes, n)
	if n.Parent == NoNode {
		p.Contents = append(p.Contents, n.ID)
	} else {
		parent := p.Node(n.Parent)
		parent.Children = append(parent.Children, n.ID)
	}
	return n.ID
}

// itemJSON is the nested wire form of a node.
type itemJSON struct {
	Type     ItemType          `json:"type"`
	Text     string            `json:"text,omitempty"`
	Src      string            `json:"src,omitempty"`
	Title    string            `json:"title,omitempty"`
	Correct  *bool             `json:"correct,omitempty"`
	Location string            `json:"location,omitempty"`
	Answer   *Answer           `json:"answer,omitempty"`
	Extras   map[string]string `json:"extras,omitempty"`
	Choices  []itemJSON        `json:"choices,omitempty"`
}

type problemJSON struct {
	Scripts  []scriptJSON `json:"scripts"`
	Contents []itemJSON   `json:"contents"`
}

type scriptJSON struct {
	Type string `json:"type"`
	Script
}

// MarshalJSON writes the nested {scripts, contents} form.
func (p *Problem) MarshalJSON() ([]byte, error) {
	out := problemJSON{Scripts: []scriptJSON{}, Contents: []itemJSON{}}
	for _, s := range p.Scripts {
		out.Scripts = append(out.Scripts, scriptJSON{Type: "script", Script: s})
	}
	for _, id := range p.Contents {
		out.Contents = append(out.Contents, p.itemJSON(id))
	}
	return json.Marshal(out)
}

func (p *Problem) itemJSON(id NodeID) itemJSON {
	n := p.Node(id)
	it := itemJSON{
		Type:     n.Type,
		Text:     n.Text,
		Src:      n.Src,
		Title:    n.Title,
		Location: n.Location,
		Extras:   n.Extras,
	}
	if n.Type == ItemChoice {
		correct := n.Correct
		it.Correct = &correct
	}
	if n.Type.IsResponse() {
		answer := n.Answer
		it.Answer = &answer
	}
	for _, c := range n.Children {
		it.Choices = append(it.Choices, p.itemJSON(c))
	}
	return it
}

// UnmarshalJSON rebuilds the arena from the nested form.
func (p *Problem) UnmarshalJSON(data []byte) error {
	var in problemJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*p = Problem{}
	for _, s := range in.Scripts {
		p.Scripts = append(p.Scripts, s.Script)
	}
	for _, it := range in.Contents {
		if err := p.addJSON(it, NoNode); err != nil {
			return err
		}
	}
	return nil
}

func (p *Problem) addJSON(it itemJSON, parent NodeID) error {
	if it.Type == "" {
		return fmt.Errorf("problem item without type")
	}
	n := Node{
		Parent:   parent,
		Type:     it.Type,
		Text:     it.Text,
		Src:      it.Src,
		Title:    it.Title,
		Location: it.Location,
		Extras:   it.Extras,
	}
	if it.Correct != nil {
		n.Correct = *it.Correct
	}
	if it.Answer != nil {
		n.Answer = *it.Answer
	}
	id := p.add(n)
	for _, c := range it.Choices {
		if err := p.addJSON(c, id); err != nil {
			return err
		}
	}
	return nil
}
