// Package codec renders upstream projects and tasks as iCalendar data.
//
// Encoding is deterministic: the same project and task always produce the
// same bytes, so entity tags derived from the output are stable across
// sync cycles and process restarts.
package codec

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/kodcaldav/kodcaldav/internal/upstream"
)

const prodID = "-//kodcaldav//KodBox CalDAV Bridge//EN"

// uidNamespace seeds the name-based UUIDs used as component UIDs.
var uidNamespace = uuid.MustParse("9f2c9a46-7b83-4f5d-9d1a-2f6e8f0b7c31")

// TaskUID derives a stable UID for a task within its project
func TaskUID(projectID, taskID string) string {
	return uuid.NewSHA1(uidNamespace, []byte(projectID+"/"+taskID)).String()
}

// EncodeTask renders one task as a single-component VCALENDAR
func EncodeTask(project upstream.Project, task upstream.Task) ([]byte, error) {
	cal := newCalendar(project)
	cal.Children = append(cal.Children, taskComponent(project, task))
	return encode(cal)
}

// EncodeCalendar renders a whole project as one VCALENDAR holding every task
func EncodeCalendar(project upstream.Project, tasks []upstream.Task) ([]byte, error) {
	cal := newCalendar(project)
	for i := range tasks {
		cal.Children = append(cal.Children, taskComponent(project, tasks[i]))
	}
	return encode(cal)
}

// Decode parses iCalendar bytes back into a calendar
func Decode(data []byte) (*ical.Calendar, error) {
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}
	return cal, nil
}

func newCalendar(project upstream.Project) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, prodID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")
	cal.Props.SetText(ical.PropMethod, "PUBLISH")
	setRaw(cal.Props, "X-WR-CALNAME", project.Name)
	if project.Description != "" {
		setRaw(cal.Props, "X-WR-CALDESC", project.Description)
	}
	return cal
}

// setRaw sets a property value without a VALUE parameter, keeping the
// property's default value type on the wire.
func setRaw(props ical.Props, name, value string) {
	prop := ical.NewProp(name)
	prop.Value = value
	props.Set(prop)
}

// ComponentFor reports which iCalendar component a task renders as: a
// VEVENT when it carries both a start and a due time, a VTODO otherwise.
func ComponentFor(task upstream.Task) string {
	if !task.Start.IsZero() && !task.Due.IsZero() {
		return ical.CompEvent
	}
	return ical.CompToDo
}

func taskComponent(project upstream.Project, task upstream.Task) *ical.Component {
	timed := ComponentFor(task) == ical.CompEvent

	var comp *ical.Component
	if timed {
		comp = ical.NewComponent(ical.CompEvent)
		comp.Props.SetDateTime(ical.PropDateTimeStart, task.Start.UTC())
		comp.Props.SetDateTime(ical.PropDateTimeEnd, task.Due.UTC())
		comp.Props.SetText(ical.PropTransparency, "OPAQUE")
		comp.Props.SetText(ical.PropStatus, eventStatus(task.Status))
	} else {
		comp = ical.NewComponent(ical.CompToDo)
		if !task.Start.IsZero() {
			comp.Props.SetDateTime(ical.PropDateTimeStart, task.Start.UTC())
		}
		if !task.Due.IsZero() {
			comp.Props.SetDateTime(ical.PropDue, task.Due.UTC())
		}
		comp.Props.SetText(ical.PropStatus, todoStatus(task.Status))
	}

	comp.Props.SetText(ical.PropUID, TaskUID(project.ID, task.ID))
	comp.Props.SetText(ical.PropSummary, task.Title)
	// PRIORITY is an INTEGER property; a VALUE=TEXT override would make
	// strict clients drop it.
	setRaw(comp.Props, ical.PropPriority, priorityValue(task.Priority))

	if desc := htmlToText(task.Description); desc != "" {
		comp.Props.SetText(ical.PropDescription, desc)
	}
	if !task.CreatedAt.IsZero() {
		comp.Props.SetDateTime(ical.PropCreated, task.CreatedAt.UTC())
	}
	if !task.ModifiedAt.IsZero() {
		comp.Props.SetDateTime(ical.PropLastModified, task.ModifiedAt.UTC())
	}

	comp.Props.SetDateTime(ical.PropDateTimeStamp, stampTime(task))
	comp.Children = append(comp.Children, alarms(task)...)
	return comp
}

// alarms derives reminder components for a task with a start time. Urgent
// tasks get audible alarms on a denser schedule.
func alarms(task upstream.Task) []*ical.Component {
	if task.Start.IsZero() {
		return nil
	}

	action := "DISPLAY"
	if task.Priority == upstream.PriorityVeryHigh || task.Priority == upstream.PriorityHigh {
		action = "AUDIO"
	}

	var out []*ical.Component
	for _, minutes := range alarmOffsets(task.Priority) {
		alarm := ical.NewComponent(ical.CompAlarm)
		alarm.Props.SetText(ical.PropAction, action)
		alarm.Props.SetText(ical.PropDescription, alarmText(task.Title, minutes))
		setRaw(alarm.Props, ical.PropTrigger, triggerValue(minutes))
		out = append(out, alarm)
	}
	return out
}

// alarmOffsets lists reminder lead times in minutes by task urgency
func alarmOffsets(p upstream.TaskPriority) []int {
	switch p {
	case upstream.PriorityVeryHigh, upstream.PriorityHigh:
		return []int{0, 15, 60, 1440}
	case upstream.PriorityNormal:
		return []int{15, 60}
	case upstream.PriorityLow, upstream.PriorityVeryLow:
		return []int{60}
	default:
		return []int{15}
	}
}

func alarmText(title string, minutes int) string {
	switch {
	case minutes == 0:
		return fmt.Sprintf("Reminder: %s (starting now)", title)
	case minutes < 60:
		return fmt.Sprintf("Reminder: %s (in %d minutes)", title, minutes)
	case minutes < 1440:
		return fmt.Sprintf("Reminder: %s (in %d hours)", title, minutes/60)
	default:
		return fmt.Sprintf("Reminder: %s (in %d days)", title, minutes/1440)
	}
}

// triggerValue renders a lead time as a negative ISO 8601 duration
// relative to the component start
func triggerValue(minutes int) string {
	switch {
	case minutes == 0:
		return "PT0S"
	case minutes%1440 == 0:
		return fmt.Sprintf("-P%dD", minutes/1440)
	case minutes%60 == 0:
		return fmt.Sprintf("-PT%dH", minutes/60)
	default:
		return fmt.Sprintf("-PT%dM", minutes)
	}
}

// stampTime picks a deterministic DTSTAMP from the task's own timestamps
func stampTime(task upstream.Task) time.Time {
	for _, t := range []time.Time{task.ModifiedAt, task.CreatedAt, task.Start, task.Due} {
		if !t.IsZero() {
			return t.UTC()
		}
	}
	return time.Unix(0, 0).UTC()
}

func eventStatus(s upstream.TaskStatus) string {
	if s == upstream.StatusClosed {
		return "CANCELLED"
	}
	return "CONFIRMED"
}

func todoStatus(s upstream.TaskStatus) string {
	switch s {
	case upstream.StatusDoing:
		return "IN-PROCESS"
	case upstream.StatusDone:
		return "COMPLETED"
	case upstream.StatusClosed:
		return "CANCELLED"
	default:
		return "NEEDS-ACTION"
	}
}

// priorityValue maps task urgency onto the RFC 5545 1/5/9 scale
func priorityValue(p upstream.TaskPriority) string {
	switch p {
	case upstream.PriorityVeryHigh, upstream.PriorityHigh:
		return "1"
	case upstream.PriorityLow, upstream.PriorityVeryLow:
		return "9"
	default:
		return "5"
	}
}

func encode(cal *ical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}
