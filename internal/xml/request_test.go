package xml

import (
	"reflect"
	"testing"

	"github.com/beevik/etree"
)

func TestPropfindRequest_Parse(t *testing.T) {
	tests := []struct {
		name    string
		xml     string
		want    *PropfindRequest
		wantErr bool
	}{
		{
			name:    "empty document",
			xml:     "",
			wantErr: true,
		},
		{
			name:    "invalid root tag",
			xml:     `<?xml version="1.0" encoding="utf-8"?><wrong/>`,
			wantErr: true,
		},
		{
			name: "simple propfind with specific props",
			xml: `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
<D:prop>
<D:displayname/>
<D:resourcetype/>
<C:calendar-home-set/>
</D:prop>
</D:propfind>`,
			want: &PropfindRequest{
				Prop: []string{"displayname", "resourcetype", "calendar-home-set"},
			},
		},
		{
			name: "propfind with getctag in calendarserver namespace",
			xml: `<?xml version="1.0" encoding="utf-8"?>
<A:propfind xmlns:A="DAV:" xmlns:B="http://calendarserver.org/ns/">
<A:prop>
<B:getctag/>
<A:getetag/>
</A:prop>
</A:propfind>`,
			want: &PropfindRequest{
				Prop: []string{"getctag", "getetag"},
			},
		},
		{
			name: "propfind with propname",
			xml: `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:">
<D:propname/>
</D:propfind>`,
			want: &PropfindRequest{
				PropNames: true,
			},
		},
		{
			name: "propfind with allprop",
			xml: `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:">
<D:allprop/>
</D:propfind>`,
			want: &PropfindRequest{
				AllProp: true,
			},
		},
		{
			name: "allprop with include",
			xml: `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
<D:allprop/>
<D:include>
<C:calendar-data/>
<D:sync-token/>
</D:include>
</D:propfind>`,
			want: &PropfindRequest{
				AllProp: true,
				Include: []string{"calendar-data", "sync-token"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := etree.NewDocument()
			if tt.xml != "" {
				err := doc.ReadFromString(tt.xml)
				if err != nil {
					t.Fatalf("failed to parse test XML: %v", err)
				}
			}

			var got PropfindRequest
			err := got.Parse(doc)

			if (err != nil) != tt.wantErr {
				t.Errorf("PropfindRequest.Parse() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if err == nil {
				if tt.want == nil {
					t.Error("PropfindRequest.Parse() succeeded but want error")
					return
				}
				if !reflect.DeepEqual(&got, tt.want) {
					t.Errorf("PropfindRequest.Parse() = %+v, want %+v", got, tt.want)
				}
			}
		})
	}
}

func TestPropfindRequest_ToXML(t *testing.T) {
	request := PropfindRequest{
		Prop: []string{"displayname", "resourcetype", "getctag"},
	}

	got, err := request.ToXML().WriteToString()
	if err != nil {
		t.Fatalf("WriteToString() error = %v", err)
	}

	want := `<d:propfind xmlns:d="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav" xmlns:cs="http://calendarserver.org/ns/">
<d:prop>
<d:displayname/>
<d:resourcetype/>
<cs:getctag/>
</d:prop>
</d:propfind>`

	if canonicalXML(got) != canonicalXML(want) {
		t.Errorf("PropfindRequest.ToXML() = %s, want %s", got, want)
	}
}
