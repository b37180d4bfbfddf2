package xml

import (
	"fmt"
	"time"

	"github.com/beevik/etree"
)

// TimeRange represents a time range filter
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}

func (tr *TimeRange) toElement(elem *etree.Element) {
	if tr.Start != nil {
		elem.CreateAttr("start", tr.Start.Format("20060102T150405Z"))
	}
	if tr.End != nil {
		elem.CreateAttr("end", tr.End.Format("20060102T150405Z"))
	}
}

// Filter represents a calendar query filter
type Filter struct {
	ComponentName string
	SubFilter     *Filter
	TimeRange     *TimeRange
}

func (f *Filter) toElement(elem *etree.Element) {
	compFilter := CreateElementWithNS(elem, "comp-filter")
	compFilter.CreateAttr("name", f.ComponentName)

	if f.TimeRange != nil {
		tr := CreateElementWithNS(compFilter, "time-range")
		f.TimeRange.toElement(tr)
	}

	if f.SubFilter != nil {
		f.SubFilter.toElement(compFilter)
	}
}

// CalendarQuery represents a calendar-query REPORT request
type CalendarQuery struct {
	Props  []string
	Filter Filter
}

// CalendarMultiget represents a calendar-multiget REPORT request
type CalendarMultiget struct {
	Props []string
	Hrefs []string
}

// SyncCollection represents a sync-collection REPORT request
type SyncCollection struct {
	SyncToken string
	SyncLevel string
	Props     []string
}

// ReportRequest represents a REPORT request
type ReportRequest struct {
	Query    *CalendarQuery
	MultiGet *CalendarMultiget
	Sync     *SyncCollection
}

// Parse parses a REPORT request from an XML document
func (r *ReportRequest) Parse(doc *etree.Document) error {
	if doc == nil || doc.Root() == nil {
		return fmt.Errorf("empty document")
	}

	root := doc.Root()

	switch root.Tag {
	case "calendar-query":
		return r.parseCalendarQuery(root)
	case "calendar-multiget":
		return r.parseCalendarMultiget(root)
	case "sync-collection":
		return r.parseSyncCollection(root)
	default:
		return fmt.Errorf("unsupported report type: %s", root.Tag)
	}
}

func (r *ReportRequest) parseCalendarQuery(root *etree.Element) error {
	r.Query = &CalendarQuery{}

	// Parse prop element
	if prop := FindElementWithNS(root, TagProp); prop != nil {
		for _, p := range prop.ChildElements() {
			r.Query.Props = append(r.Query.Props, p.Tag)
		}
	}

	// Parse filter element
	if filter := FindElementWithNS(root, "filter"); filter != nil {
		if err := r.parseFilter(filter, &r.Query.Filter); err != nil {
			return err
		}
	}

	return nil
}

func (r *ReportRequest) parseFilter(elem *etree.Element, filter *Filter) error {
	if compFilter := FindElementWithNS(elem, "comp-filter"); compFilter != nil {
		filter.ComponentName = compFilter.SelectAttrValue("name", "")

		// Parse time-range if present
		if tr := FindElementWithNS(compFilter, "time-range"); tr != nil {
			filter.TimeRange = &TimeRange{}
			if start := tr.SelectAttrValue("start", ""); start != "" {
				t, err := time.Parse("20060102T150405Z", start)
				if err != nil {
					return fmt.Errorf("invalid time-range start %q: %w", start, err)
				}
				filter.TimeRange.Start = &t
			}
			if end := tr.SelectAttrValue("end", ""); end != "" {
				t, err := time.Parse("20060102T150405Z", end)
				if err != nil {
					return fmt.Errorf("invalid time-range end %q: %w", end, err)
				}
				filter.TimeRange.End = &t
			}
		}

		// Parse nested comp-filter if present
		if nested := FindElementWithNS(compFilter, "comp-filter"); nested != nil {
			filter.SubFilter = &Filter{}
			return r.parseFilter(compFilter, filter.SubFilter)
		}
	}

	return nil
}

func (r *ReportRequest) parseCalendarMultiget(root *etree.Element) error {
	r.MultiGet = &CalendarMultiget{}

	// Parse prop element
	if prop := FindElementWithNS(root, TagProp); prop != nil {
		for _, p := range prop.ChildElements() {
			r.MultiGet.Props = append(r.MultiGet.Props, p.Tag)
		}
	}

	// Parse href elements, regardless of prefix
	for _, child := range root.ChildElements() {
		if child.Tag == TagHref {
			r.MultiGet.Hrefs = append(r.MultiGet.Hrefs, child.Text())
		}
	}

	return nil
}

func (r *ReportRequest) parseSyncCollection(root *etree.Element) error {
	r.Sync = &SyncCollection{}

	if token := FindElementWithNS(root, TagSyncToken); token != nil {
		r.Sync.SyncToken = token.Text()
	}

	if level := FindElementWithNS(root, "sync-level"); level != nil {
		r.Sync.SyncLevel = level.Text()
	}

	if prop := FindElementWithNS(root, TagProp); prop != nil {
		for _, p := range prop.ChildElements() {
			r.Sync.Props = append(r.Sync.Props, p.Tag)
		}
	}

	return nil
}

// ToXML converts a ReportRequest to an XML document
func (r *ReportRequest) ToXML() *etree.Document {
	doc := etree.NewDocument()
	var root *etree.Element

	switch {
	case r.Query != nil:
		root = doc.CreateElement("calendar-query")
		root.Space = "cal"
		AddNamespaces(doc)

		prop := CreateElementWithNS(root, TagProp)
		for _, p := range r.Query.Props {
			CreateElementWithNS(prop, p)
		}

		filter := CreateElementWithNS(root, "filter")
		r.Query.Filter.toElement(filter)

	case r.MultiGet != nil:
		root = doc.CreateElement("calendar-multiget")
		root.Space = "cal"
		AddNamespaces(doc)

		prop := CreateElementWithNS(root, TagProp)
		for _, p := range r.MultiGet.Props {
			CreateElementWithNS(prop, p)
		}

		for _, href := range r.MultiGet.Hrefs {
			hrefElem := CreateElementWithNS(root, TagHref)
			hrefElem.SetText(href)
		}

	case r.Sync != nil:
		root = doc.CreateElement("sync-collection")
		root.Space = "d"
		AddNamespaces(doc)

		token := CreateElementWithNS(root, TagSyncToken)
		token.SetText(r.Sync.SyncToken)

		level := CreateElementWithNS(root, "sync-level")
		level.SetText(r.Sync.SyncLevel)

		if len(r.Sync.Props) > 0 {
			prop := CreateElementWithNS(root, TagProp)
			for _, p := range r.Sync.Props {
				CreateElementWithNS(prop, p)
			}
		}
	}

	return doc
}
