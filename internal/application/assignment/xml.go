package assignment

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// Doc numbers this long are PCT or publication numbers and never match a
// stored application or patent number.
const maxDocNumberLen = 10

// node is a generic element: its text and child elements in document order.
type node struct {
	XMLName  xml.Name
	Text     string `xml:",chardata"`
	Children []node `xml:",any"`
}

func (n node) text() string { return strings.TrimSpace(n.Text) }

func (n node) child(name string) (node, bool) {
	for _, c := range n.Children {
		if c.XMLName.Local == name {
			return c, true
		}
	}
	return node{}, false
}

// descendants appends every element named name below n, depth first.
func (n node) descendants(name string, out []node) []node {
	for _, c := range n.Children {
		if c.XMLName.Local == name {
			out = append(out, c)
		}
		out = c.descendants(name, out)
	}
	return out
}

type xmlAssignment struct {
	Record     node   `xml:"assignment-record"`
	Assignees  []node `xml:"patent-assignees>patent-assignee"`
	Properties []node `xml:"patent-properties>patent-property"`
}

// XMLAssignment is one decoded patent-assignment element.
type XMLAssignment struct {
	Assignment patent.Assignment
	// Groups holds one doc-number group per patent property.
	Groups [][]string
}

// DecodeAssignments streams every patent-assignments/patent-assignment
// element from r.
func DecodeAssignments(r io.Reader) ([]XMLAssignment, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	var out []XMLAssignment
	depth := 0
	inList := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeParseXML, "decode assignment xml")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 && t.Name.Local == "patent-assignments" {
				inList = true
				continue
			}
			if inList && depth == 3 && t.Name.Local == "patent-assignment" {
				var raw xmlAssignment
				if err := dec.DecodeElement(&raw, &t); err != nil {
					return nil, errors.Wrap(err, errors.ErrCodeParseXML, "decode patent-assignment")
				}
				depth--
				out = append(out, raw.convert())
			}
		case xml.EndElement:
			if depth == 2 && t.Name.Local == "patent-assignments" {
				inList = false
			}
			depth--
		}
	}
}

func (raw xmlAssignment) convert() XMLAssignment {
	var a patent.Assignment
	for _, c := range raw.Record.Children {
		switch c.XMLName.Local {
		case "reel-no":
			a.ReelNum = c.text()
		case "frame-no":
			a.FrameNum = c.text()
		case "correspondent":
			for _, f := range c.Children {
				if f.XMLName.Local == "name" {
					a.CorrespondentName = f.text()
				} else {
					a.CorrespondentAddress = joinLines(a.CorrespondentAddress, f.text())
				}
			}
		}
	}
	for _, assignee := range raw.Assignees {
		for _, f := range assignee.Children {
			if f.XMLName.Local == "name" {
				a.AssigneeName = f.text()
			} else {
				a.AssigneeAddress = joinLines(a.AssigneeAddress, f.text())
			}
		}
	}

	groups := make([][]string, 0, len(raw.Properties))
	for _, prop := range raw.Properties {
		var group []string
		for _, doc := range prop.descendants("document-id", nil) {
			num, ok := doc.child("doc-number")
			if !ok {
				continue
			}
			if n := num.text(); n != "" && len(n) < maxDocNumberLen {
				group = append(group, n)
			}
		}
		groups = append(groups, group)
	}
	return XMLAssignment{Assignment: a, Groups: groups}
}
