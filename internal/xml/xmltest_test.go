package xml

import (
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

var xmlDeclRe = regexp.MustCompile(`<\?xml[^>]*\?>`)

// canonicalXML flattens formatting differences (declaration, indentation,
// padding around text, letter case) so serialized documents compare by value
func canonicalXML(s string) string {
	s = xmlDeclRe.ReplaceAllString(s, "")
	s = regexp.MustCompile(`\s+`).ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "> ", ">")
	s = strings.ReplaceAll(s, " <", "<")
	s = strings.ReplaceAll(s, " />", "/>")
	return strings.ToLower(strings.TrimSpace(s))
}

// renderElement serializes one element without an XML declaration
func renderElement(elem *etree.Element) string {
	doc := etree.NewDocument()
	doc.AddChild(elem.Copy())
	s, _ := doc.WriteToString()
	return strings.TrimSpace(xmlDeclRe.ReplaceAllString(s, ""))
}
