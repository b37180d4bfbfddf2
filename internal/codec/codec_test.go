package codec

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kodcaldav/kodcaldav/internal/upstream"
)

var testProject = upstream.Project{
	ID:          "12",
	Name:        "Website relaunch",
	Description: "Q3 marketing site",
}

func timedTask() upstream.Task {
	return upstream.Task{
		ID:          "450",
		ProjectID:   "12",
		Title:       "Draft homepage copy",
		Description: "<p>First pass</p>",
		Status:      upstream.StatusDoing,
		Priority:    upstream.PriorityHigh,
		Start:       time.Unix(1700001000, 0).UTC(),
		Due:         time.Unix(1700005000, 0).UTC(),
		CreatedAt:   time.Unix(1700000100, 0).UTC(),
		ModifiedAt:  time.Unix(1700000200, 0).UTC(),
	}
}

func TestEncodeTaskDeterministic(t *testing.T) {
	first, err := EncodeTask(testProject, timedTask())
	require.NoError(t, err)
	second, err := EncodeTask(testProject, timedTask())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEncodeTaskEvent(t *testing.T) {
	data, err := EncodeTask(testProject, timedTask())
	require.NoError(t, err)

	cal, err := Decode(data)
	require.NoError(t, err)

	require.Len(t, cal.Children, 1)
	event := cal.Children[0]
	assert.Equal(t, ical.CompEvent, event.Name)

	uid, err := event.Props.Text(ical.PropUID)
	require.NoError(t, err)
	assert.Equal(t, TaskUID("12", "450"), uid)

	summary, _ := event.Props.Text(ical.PropSummary)
	assert.Equal(t, "Draft homepage copy", summary)

	desc, _ := event.Props.Text(ical.PropDescription)
	assert.Equal(t, "First pass", desc)

	status, _ := event.Props.Text(ical.PropStatus)
	assert.Equal(t, "CONFIRMED", status)

	prio := event.Props.Get(ical.PropPriority)
	require.NotNil(t, prio)
	assert.Equal(t, "1", prio.Value)

	start, err := event.Props.DateTime(ical.PropDateTimeStart, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700001000, 0).UTC(), start)

	end, err := event.Props.DateTime(ical.PropDateTimeEnd, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700005000, 0).UTC(), end)
}

func TestEncodeTaskTodoWhenNotFullyScheduled(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*upstream.Task)
		wantStatus string
	}{
		{
			name: "due only",
			mutate: func(task *upstream.Task) {
				task.Start = time.Time{}
			},
			wantStatus: "IN-PROCESS",
		},
		{
			name: "start only",
			mutate: func(task *upstream.Task) {
				task.Due = time.Time{}
				task.Status = upstream.StatusOpen
			},
			wantStatus: "NEEDS-ACTION",
		},
		{
			name: "undated done",
			mutate: func(task *upstream.Task) {
				task.Start = time.Time{}
				task.Due = time.Time{}
				task.Status = upstream.StatusDone
			},
			wantStatus: "COMPLETED",
		},
		{
			name: "undated closed",
			mutate: func(task *upstream.Task) {
				task.Start = time.Time{}
				task.Due = time.Time{}
				task.Status = upstream.StatusClosed
			},
			wantStatus: "CANCELLED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := timedTask()
			tt.mutate(&task)

			data, err := EncodeTask(testProject, task)
			require.NoError(t, err)
			cal, err := Decode(data)
			require.NoError(t, err)

			require.Len(t, cal.Children, 1)
			todo := cal.Children[0]
			assert.Equal(t, ical.CompToDo, todo.Name)

			status, _ := todo.Props.Text(ical.PropStatus)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestEncodeTaskPrioritySerialization(t *testing.T) {
	data, err := EncodeTask(testProject, timedTask())
	require.NoError(t, err)

	// PRIORITY is an INTEGER property and must serialize without a VALUE
	// parameter or strict clients discard it
	assert.Contains(t, string(data), "PRIORITY:1\r\n")
	assert.NotContains(t, string(data), "PRIORITY;")
}

func TestEncodeTaskAlarms(t *testing.T) {
	tests := []struct {
		name         string
		priority     upstream.TaskPriority
		wantAction   string
		wantTriggers []string
	}{
		{
			name:         "high priority gets audible alarms",
			priority:     upstream.PriorityHigh,
			wantAction:   "AUDIO",
			wantTriggers: []string{"PT0S", "-PT15M", "-PT1H", "-P1D"},
		},
		{
			name:         "normal priority",
			priority:     upstream.PriorityNormal,
			wantAction:   "DISPLAY",
			wantTriggers: []string{"-PT15M", "-PT1H"},
		},
		{
			name:         "low priority",
			priority:     upstream.PriorityLow,
			wantAction:   "DISPLAY",
			wantTriggers: []string{"-PT1H"},
		},
		{
			name:         "no priority",
			priority:     upstream.PriorityNone,
			wantAction:   "DISPLAY",
			wantTriggers: []string{"-PT15M"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := timedTask()
			task.Priority = tt.priority

			data, err := EncodeTask(testProject, task)
			require.NoError(t, err)
			cal, err := Decode(data)
			require.NoError(t, err)

			require.Len(t, cal.Children, 1)
			var triggers []string
			for _, child := range cal.Children[0].Children {
				require.Equal(t, ical.CompAlarm, child.Name)

				action, err := child.Props.Text(ical.PropAction)
				require.NoError(t, err)
				assert.Equal(t, tt.wantAction, action)

				trigger := child.Props.Get(ical.PropTrigger)
				require.NotNil(t, trigger)
				triggers = append(triggers, trigger.Value)
			}
			assert.Equal(t, tt.wantTriggers, triggers)
		})
	}
}

func TestEncodeTaskNoAlarmsWithoutStart(t *testing.T) {
	task := timedTask()
	task.Start = time.Time{}

	data, err := EncodeTask(testProject, task)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "BEGIN:VALARM")
}

func TestEncodeTaskStampWithoutTimestamps(t *testing.T) {
	task := upstream.Task{ID: "460", ProjectID: "12", Title: "Rotate certs"}

	data, err := EncodeTask(testProject, task)
	require.NoError(t, err)
	cal, err := Decode(data)
	require.NoError(t, err)

	stamp, err := cal.Children[0].Props.DateTime(ical.PropDateTimeStamp, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(0, 0).UTC(), stamp)
}

func TestEncodeCalendar(t *testing.T) {
	second := timedTask()
	second.ID = "451"
	second.Title = "Review assets"

	data, err := EncodeCalendar(testProject, []upstream.Task{timedTask(), second})
	require.NoError(t, err)

	cal, err := Decode(data)
	require.NoError(t, err)
	assert.Len(t, cal.Children, 2)

	name, err := cal.Props.Text("X-WR-CALNAME")
	require.NoError(t, err)
	assert.Equal(t, "Website relaunch", name)
}

func TestEncodeCalendarEmptyProject(t *testing.T) {
	data, err := EncodeCalendar(testProject, nil)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "BEGIN:VCALENDAR"))
	assert.True(t, strings.Contains(string(data), "X-WR-CALNAME:Website relaunch"))
}

func TestTaskUIDStable(t *testing.T) {
	assert.Equal(t, TaskUID("12", "450"), TaskUID("12", "450"))
	assert.NotEqual(t, TaskUID("12", "450"), TaskUID("13", "450"))
	assert.NotEqual(t, TaskUID("12", "450"), TaskUID("12", "451"))
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "just text", "just text"},
		{"line breaks", "one<br>two<br />three", "one\ntwo\nthree"},
		{"paragraphs", "<p>first</p><p>second</p>", "first\n\nsecond"},
		{"links keep target", `see <a href="https://example.com">docs</a>`, "see docs (https://example.com)"},
		{"entities", "a &amp; b", "a & b"},
		{"nested tags", "<div><span>inner</span></div>", "inner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, htmlToText(tt.in))
		})
	}
}
