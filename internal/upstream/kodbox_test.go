package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taskListPayload = `{
	"code": true,
	"data": {
		"project": {
			"12": {"name": "Website relaunch", "desc": "Q3 marketing site", "createTime": "1700000000", "modifyTime": "1700100000"},
			"13": {"name": "Ops backlog", "desc": "", "createTime": "1700000000", "modifyTime": "1700000000"}
		},
		"task": {
			"450": {"name": "Draft homepage copy", "desc": "<p>First pass</p>", "projectID": "12", "status": "2", "isList": "0",
				"ownerUser": "7", "createTime": "1700000100", "modifyTime": "1700000200",
				"metaInfo": {"timeFrom": "1700001000", "timeTo": "1700005000", "taskLevel": "hight"}},
			"451": {"name": "Review assets", "desc": "", "projectID": "12", "status": "1", "isList": "0",
				"createTime": "1700000300", "modifyTime": "1700000400", "metaInfo": []},
			"452": {"name": "Sprint board", "projectID": "12", "status": "0", "isList": "1", "metaInfo": []},
			"460": {"name": "Rotate certs", "projectID": "99", "status": "0", "isList": "0",
				"createTime": "1700000500", "modifyTime": "1700000500", "metaInfo": {"taskLevel": "low"}}
		}
	}
}`

// newKodBoxServer fakes the two KodBox endpoints the client talks to
func newKodBoxServer(t *testing.T, listBody string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.RawQuery, "user/index/loginSubmit"):
			if !strings.Contains(r.URL.RawQuery, "name=alice") || !strings.Contains(r.URL.RawQuery, "password=secret") {
				w.Write([]byte(`{"code": false, "info": "bad credentials"}`))
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "CSRF_TOKEN", Value: "csrf123"})
			w.Write([]byte(`{"code": true, "info": "token-abc"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/index.php":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "plugin/project/taskListSelf", r.PostFormValue("API_ROUTE"))
			assert.Equal(t, "csrf123", r.PostFormValue("CSRF_TOKEN"))
			w.Write([]byte(listBody))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestKodBoxListProjects(t *testing.T) {
	srv := newKodBoxServer(t, taskListPayload)
	defer srv.Close()

	client := NewKodBox(srv.URL, "alice", "secret")
	projects, err := client.ListProjects(context.Background())
	require.NoError(t, err)

	// Orphan project 99 is synthesized for task 460
	require.Len(t, projects, 3)
	assert.Equal(t, "12", projects[0].ID)
	assert.Equal(t, "Website relaunch", projects[0].Name)
	assert.Equal(t, "Q3 marketing site", projects[0].Description)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), projects[0].CreatedAt)
	assert.Equal(t, "13", projects[1].ID)
	assert.Equal(t, "99", projects[2].ID)
	assert.Equal(t, "Project 99", projects[2].Name)
}

func TestKodBoxListTasks(t *testing.T) {
	srv := newKodBoxServer(t, taskListPayload)
	defer srv.Close()

	client := NewKodBox(srv.URL, "alice", "secret")
	tasks, err := client.ListTasks(context.Background(), "12")
	require.NoError(t, err)

	// Kanban group 452 is excluded
	require.Len(t, tasks, 2)

	draft := tasks[0]
	assert.Equal(t, "450", draft.ID)
	assert.Equal(t, "Draft homepage copy", draft.Title)
	assert.Equal(t, "<p>First pass</p>", draft.Description)
	assert.Equal(t, StatusDoing, draft.Status)
	assert.Equal(t, PriorityHigh, draft.Priority)
	assert.Equal(t, "7", draft.Assignee)
	assert.Equal(t, time.Unix(1700001000, 0).UTC(), draft.Start)
	assert.Equal(t, time.Unix(1700005000, 0).UTC(), draft.Due)

	review := tasks[1]
	assert.Equal(t, StatusDone, review.Status)
	assert.Equal(t, PriorityNone, review.Priority)
	assert.True(t, review.Start.IsZero())
	assert.True(t, review.Due.IsZero())
}

func TestKodBoxListTasksEmptyProject(t *testing.T) {
	srv := newKodBoxServer(t, taskListPayload)
	defer srv.Close()

	client := NewKodBox(srv.URL, "alice", "secret")
	tasks, err := client.ListTasks(context.Background(), "13")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestKodBoxListTasksUnknownProject(t *testing.T) {
	srv := newKodBoxServer(t, taskListPayload)
	defer srv.Close()

	client := NewKodBox(srv.URL, "alice", "secret")
	_, err := client.ListTasks(context.Background(), "7777")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKodBoxLoginRejected(t *testing.T) {
	srv := newKodBoxServer(t, taskListPayload)
	defer srv.Close()

	client := NewKodBox(srv.URL, "alice", "wrong")
	_, err := client.ListProjects(context.Background())
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestKodBoxUnreachable(t *testing.T) {
	srv := newKodBoxServer(t, taskListPayload)
	srv.Close()

	client := NewKodBox(srv.URL, "alice", "secret")
	_, err := client.ListProjects(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestKodBoxExpiredSession(t *testing.T) {
	srv := newKodBoxServer(t, `{"code": false, "data": []}`)
	defer srv.Close()

	client := NewKodBox(srv.URL, "alice", "secret")
	_, err := client.ListProjects(context.Background())
	assert.ErrorIs(t, err, ErrAuthFailed)
	// The token is discarded so the next call logs in again
	assert.Empty(t, client.token)
}

func TestKodBoxEmptyListingArrays(t *testing.T) {
	srv := newKodBoxServer(t, `{"code": true, "data": {"project": [], "task": []}}`)
	defer srv.Close()

	client := NewKodBox(srv.URL, "alice", "secret")
	projects, err := client.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestKodBoxMalformedPayload(t *testing.T) {
	srv := newKodBoxServer(t, `<html>not json</html>`)
	defer srv.Close()

	client := NewKodBox(srv.URL, "alice", "secret")
	_, err := client.ListProjects(context.Background())
	assert.ErrorIs(t, err, ErrMalformedData)
}
