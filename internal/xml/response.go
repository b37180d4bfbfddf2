package xml

import (
	"fmt"

	"github.com/beevik/etree"
)

// MultistatusResponse represents a multistatus response
type MultistatusResponse struct {
	Responses []Response
	SyncToken string
}

// Response represents a single response within a multistatus
type Response struct {
	Href      string
	PropStats []PropStat
	Error     *Error
	Status    string
}

// PropStat represents property status in a response
type PropStat struct {
	Props  []Property
	Status string
}

// OKPropStat builds a 200 propstat from resolved properties
func OKPropStat(props []Property) PropStat {
	return PropStat{Props: props, Status: "HTTP/1.1 200 OK"}
}

// NotFoundPropStat builds a 404 propstat from unresolved property names
func NotFoundPropStat(names []string) PropStat {
	ps := PropStat{Status: "HTTP/1.1 404 Not Found"}
	for _, name := range names {
		ps.Props = append(ps.Props, Property{Name: name})
	}
	return ps
}

// Parse parses a multistatus response from an XML document
func (m *MultistatusResponse) Parse(doc *etree.Document) error {
	if doc == nil || doc.Root() == nil {
		return fmt.Errorf("empty document")
	}

	root := doc.Root()
	if root.Tag != TagMultistatus {
		return fmt.Errorf("invalid root tag: %s", root.Tag)
	}

	m.Responses = nil
	m.SyncToken = ""

	if token := FindElementWithNS(root, TagSyncToken); token != nil {
		m.SyncToken = token.Text()
	}

	for _, respElem := range root.ChildElements() {
		if respElem.Tag != TagResponse {
			continue
		}
		resp := Response{}

		if hrefElem := FindElementWithNS(respElem, TagHref); hrefElem != nil {
			resp.Href = hrefElem.Text()
		}

		if statusElem := FindElementWithNS(respElem, TagStatus); statusElem != nil {
			resp.Status = statusElem.Text()
		}

		if errorElem := FindElementWithNS(respElem, TagError); errorElem != nil {
			if child := errorElem.ChildElements(); len(child) > 0 {
				resp.Error = &Error{
					Tag:     child[0].Tag,
					Message: child[0].Text(),
				}
			}
		} else {
			for _, propstatElem := range respElem.ChildElements() {
				if propstatElem.Tag != TagPropstat {
					continue
				}
				propstat := PropStat{}

				if propElem := FindElementWithNS(propstatElem, TagProp); propElem != nil {
					for _, prop := range propElem.ChildElements() {
						property := Property{}
						property.FromElement(prop)
						propstat.Props = append(propstat.Props, property)
					}
				}

				if statusElem := FindElementWithNS(propstatElem, TagStatus); statusElem != nil {
					propstat.Status = statusElem.Text()
				}

				resp.PropStats = append(resp.PropStats, propstat)
			}
		}

		m.Responses = append(m.Responses, resp)
	}

	return nil
}

// ToXML converts a MultistatusResponse to an XML document
func (m *MultistatusResponse) ToXML() *etree.Document {
	doc := etree.NewDocument()
	root := doc.CreateElement(TagMultistatus)
	root.Space = "d"
	AddNamespaces(doc)

	for _, resp := range m.Responses {
		response := CreateElementWithNS(root, TagResponse)
		href := CreateElementWithNS(response, TagHref)
		href.SetText(resp.Href)

		if resp.Error != nil {
			response.AddChild(resp.Error.ToElement())
			if resp.Status != "" {
				status := CreateElementWithNS(response, TagStatus)
				status.SetText(resp.Status)
			}
		} else if resp.Status != "" {
			status := CreateElementWithNS(response, TagStatus)
			status.SetText(resp.Status)
		} else {
			for _, propstat := range resp.PropStats {
				ps := CreateElementWithNS(response, TagPropstat)
				prop := CreateElementWithNS(ps, TagProp)

				for _, p := range propstat.Props {
					prop.AddChild(p.ToElement())
				}

				status := CreateElementWithNS(ps, TagStatus)
				status.SetText(propstat.Status)
			}
		}
	}

	if m.SyncToken != "" {
		token := CreateElementWithNS(root, TagSyncToken)
		token.SetText(m.SyncToken)
	}

	return doc
}

// WriteToString serializes the multistatus document with an XML declaration
func (m *MultistatusResponse) WriteToString() (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.AddChild(m.ToXML().Root())
	return doc.WriteToString()
}
