package caldav

import (
	"testing"
)

func TestParsePath(t *testing.T) {
	testCases := []struct {
		name          string
		path          string
		wantErr       bool
		wantProjectID string
		wantTaskID    string
		wantType      ResourceType
	}{
		{"empty path", "", false, "", "", ResourceRoot},
		{"root slash", "/", false, "", "", ResourceRoot},
		{"principals", "/principals/", false, "", "", ResourcePrincipal},
		{"named principal", "/principals/kodbox/", false, "", "", ResourcePrincipal},
		{"unknown principal", "/principals/alice/", true, "", "", ResourceUnknown},
		{"home set", "/calendars/", false, "", "", ResourceHomeSet},
		{"collection", "/calendars/42/", false, "42", "", ResourceCollection},
		{"object", "/calendars/42/137.ics", false, "42", "137", ResourceObject},
		{"aggregate", "/calendars/42/calendar.ics", false, "42", "", ResourceAggregate},
		{"bare ics suffix", "/calendars/42/.ics", true, "", "", ResourceUnknown},
		{"missing extension", "/calendars/42/137", true, "", "", ResourceUnknown},
		{"too many segments", "/calendars/42/137.ics/extra", true, "", "", ResourceUnknown},
		{"unknown top level", "/contacts/", true, "", "", ResourceUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ParsePath(tc.path)

			if (err != nil) != tc.wantErr {
				t.Errorf("ParsePath(%q) error = %v, wantErr %v", tc.path, err, tc.wantErr)
				return
			}
			if err != nil {
				return
			}

			if res.Type != tc.wantType {
				t.Errorf("Type = %v, want %v", res.Type, tc.wantType)
			}
			if res.ProjectID != tc.wantProjectID {
				t.Errorf("ProjectID = %q, want %q", res.ProjectID, tc.wantProjectID)
			}
			if res.TaskID != tc.wantTaskID {
				t.Errorf("TaskID = %q, want %q", res.TaskID, tc.wantTaskID)
			}
		})
	}
}

func TestEncodePath(t *testing.T) {
	testCases := []struct {
		name    string
		res     Resource
		want    string
		wantErr bool
	}{
		{"root", Resource{Type: ResourceRoot}, "/", false},
		{"principal", Resource{Type: ResourcePrincipal}, "/principals/kodbox/", false},
		{"home set", Resource{Type: ResourceHomeSet}, "/calendars/", false},
		{"collection", Resource{Type: ResourceCollection, ProjectID: "42"}, "/calendars/42/", false},
		{"object", Resource{Type: ResourceObject, ProjectID: "42", TaskID: "137"}, "/calendars/42/137.ics", false},
		{"aggregate", Resource{Type: ResourceAggregate, ProjectID: "42"}, "/calendars/42/calendar.ics", false},
		{"unknown", Resource{Type: ResourceUnknown}, "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EncodePath(tc.res)
			if (err != nil) != tc.wantErr {
				t.Errorf("EncodePath() error = %v, wantErr %v", err, tc.wantErr)
				return
			}
			if got != tc.want {
				t.Errorf("EncodePath() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseEncodeRoundTrip(t *testing.T) {
	paths := []string{
		"/",
		"/principals/kodbox/",
		"/calendars/",
		"/calendars/7/",
		"/calendars/7/12.ics",
		"/calendars/7/calendar.ics",
	}
	for _, path := range paths {
		res, err := ParsePath(path)
		if err != nil {
			t.Fatalf("ParsePath(%q) error = %v", path, err)
		}
		got, err := EncodePath(res)
		if err != nil {
			t.Fatalf("EncodePath(%v) error = %v", res, err)
		}
		if got != path {
			t.Errorf("round trip of %q produced %q", path, got)
		}
	}
}

func TestResourceTypeString(t *testing.T) {
	tests := []struct {
		rt   ResourceType
		want string
	}{
		{ResourceUnknown, "unknown"},
		{ResourceRoot, "root"},
		{ResourcePrincipal, "principal"},
		{ResourceHomeSet, "homeset"},
		{ResourceCollection, "collection"},
		{ResourceObject, "object"},
		{ResourceAggregate, "aggregate"},
		{ResourceType(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.rt.String(); got != tt.want {
			t.Errorf("ResourceType(%d).String() = %v, want %v", int(tt.rt), got, tt.want)
		}
	}
}
