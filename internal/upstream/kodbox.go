package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// taskListRoute is the KodBox plugin route that returns all projects and
// tasks visible to the logged-in user in a single payload.
const taskListRoute = "plugin/project/taskListSelf"

// KodBox is a Client backed by the KodBox project plugin API.
//
// KodBox has no per-project endpoint: one call returns every project and
// task at once. The last payload is kept so that ListTasks can serve from
// it without another round trip.
type KodBox struct {
	baseURL  string
	username string
	password string

	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	token   string
	csrf    string
	listing *listing
}

type listing struct {
	projects []Project
	tasks    map[string][]Task
}

// KodBoxOption configures a KodBox client
type KodBoxOption func(*KodBox)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(hc *http.Client) KodBoxOption {
	return func(c *KodBox) {
		c.httpClient = hc
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) KodBoxOption {
	return func(c *KodBox) {
		c.logger = logger
	}
}

// NewKodBox creates a client for the KodBox instance at baseURL.
// Credentials are exchanged for an access token on first use.
func NewKodBox(baseURL, username, password string, opts ...KodBoxOption) *KodBox {
	c := &KodBox{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	// The login call establishes a PHP session; later calls need its cookies.
	if c.httpClient.Jar == nil {
		jar, _ := cookiejar.New(nil)
		c.httpClient.Jar = jar
	}
	return c
}

// ListProjects fetches a fresh listing and returns its projects sorted by ID
func (c *KodBox) ListProjects(ctx context.Context) ([]Project, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.listing = l

	projects := make([]Project, len(l.projects))
	copy(projects, l.projects)
	return projects, nil
}

// ListTasks returns the tasks of one project from the last fetched listing,
// fetching first if no listing is held yet
func (c *KodBox) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listing == nil {
		l, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.listing = l
	}

	tasks, ok := c.listing.tasks[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, projectID)
	}
	out := make([]Task, len(tasks))
	copy(out, tasks)
	return out, nil
}

type loginReply struct {
	Code bool   `json:"code"`
	Info string `json:"info"`
}

func (c *KodBox) login(ctx context.Context) error {
	loginURL := fmt.Sprintf("%s/?user/index/loginSubmit&name=%s&password=%s",
		c.baseURL, url.QueryEscape(c.username), url.QueryEscape(c.password))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: login: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: login returned %s", ErrUnavailable, resp.Status)
	}

	var reply loginReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("%w: login reply: %v", ErrMalformedData, err)
	}
	if !reply.Code || reply.Info == "" {
		return fmt.Errorf("%w: %s", ErrAuthFailed, reply.Info)
	}

	c.token = reply.Info
	for _, ck := range resp.Cookies() {
		if ck.Name == "CSRF_TOKEN" {
			c.csrf = ck.Value
		}
	}
	c.logger.Debug("logged in to kodbox", "user", c.username)
	return nil
}

type listReply struct {
	Code bool `json:"code"`
	Data struct {
		Project objMap[rawProject] `json:"project"`
		Task    objMap[rawTask]    `json:"task"`
	} `json:"data"`
}

// fetch retrieves and decodes the full task listing. Caller holds c.mu.
func (c *KodBox) fetch(ctx context.Context) (*listing, error) {
	if c.token == "" {
		if err := c.login(ctx); err != nil {
			return nil, err
		}
	}

	form := url.Values{"API_ROUTE": {taskListRoute}}
	if c.csrf != "" {
		form.Set("CSRF_TOKEN", c.csrf)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/index.php", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build task list request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: task list: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: task list returned %s", ErrUnavailable, resp.Status)
	}

	var reply listReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("%w: task list reply: %v", ErrMalformedData, err)
	}
	if !reply.Code {
		// The session likely expired; force a fresh login on the next call.
		c.token = ""
		return nil, fmt.Errorf("%w: task list rejected", ErrAuthFailed)
	}

	return buildListing(c.logger, reply.Data.Project, reply.Data.Task), nil
}

// buildListing groups tasks under their projects, synthesizing placeholder
// projects for tasks whose project is absent from the payload.
func buildListing(logger *slog.Logger, projects objMap[rawProject], tasks objMap[rawTask]) *listing {
	l := &listing{tasks: make(map[string][]Task)}

	byID := make(map[string]Project, len(projects))
	for id, rp := range projects {
		byID[id] = Project{
			ID:          id,
			Name:        rp.Name,
			Description: rp.Desc,
			CreatedAt:   epochTime(rp.CreateTime),
			ModifiedAt:  epochTime(rp.ModifyTime),
		}
		l.tasks[id] = nil
	}

	for id, rt := range tasks {
		if rt.IsList == "1" {
			// Kanban board groups are structural, not schedulable work.
			continue
		}
		projectID := string(rt.ProjectID)
		if projectID == "" {
			continue
		}
		if _, ok := byID[projectID]; !ok {
			logger.Warn("task references unknown project", "task", id, "project", projectID)
			byID[projectID] = Project{
				ID:   projectID,
				Name: fmt.Sprintf("Project %s", projectID),
			}
			l.tasks[projectID] = nil
		}
		l.tasks[projectID] = append(l.tasks[projectID], parseTask(id, rt))
	}

	for id := range byID {
		l.projects = append(l.projects, byID[id])
	}
	sort.Slice(l.projects, func(i, j int) bool { return l.projects[i].ID < l.projects[j].ID })
	for _, ts := range l.tasks {
		sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
	}

	logger.Debug("fetched kodbox listing", "projects", len(l.projects), "tasks", len(tasks))
	return l
}

func parseTask(id string, rt rawTask) Task {
	t := Task{
		ID:          id,
		ProjectID:   string(rt.ProjectID),
		Title:       rt.Name,
		Description: rt.Desc,
		Status:      parseStatus(string(rt.Status)),
		Priority:    parsePriority(string(rt.MetaInfo.TaskLevel)),
		Assignee:    string(rt.OwnerUser),
		Start:       epochTime(rt.MetaInfo.TimeFrom),
		Due:         epochTime(rt.MetaInfo.TimeTo),
		CreatedAt:   epochTime(rt.CreateTime),
		ModifiedAt:  epochTime(rt.ModifyTime),
	}
	if t.Title == "" {
		t.Title = "Untitled Task"
	}
	return t
}

func parseStatus(s string) TaskStatus {
	switch s {
	case "1":
		return StatusDone
	case "2":
		return StatusDoing
	case "3":
		return StatusClosed
	default:
		return StatusOpen
	}
}

func parsePriority(level string) TaskPriority {
	switch level {
	case "very-hight", "very-high":
		return PriorityVeryHigh
	case "hight", "high":
		return PriorityHigh
	case "normal":
		return PriorityNormal
	case "low":
		return PriorityLow
	case "very-low":
		return PriorityVeryLow
	default:
		return PriorityNone
	}
}

// epochTime parses an epoch-second string, returning the zero time for
// empty or unparseable values
func epochTime(s flexString) time.Time {
	if s == "" || s == "0" {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// objMap decodes a JSON object of keyed records, tolerating the empty
// array PHP emits in place of an empty object.
type objMap[T any] map[string]T

func (m *objMap[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == '[' || string(b) == "null" {
		*m = nil
		return nil
	}
	return json.Unmarshal(b, (*map[string]T)(m))
}

// flexString accepts both JSON strings and bare numbers
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	if string(b) == "null" {
		*s = ""
		return nil
	}
	*s = flexString(b)
	return nil
}

type rawProject struct {
	Name       string     `json:"name"`
	Desc       string     `json:"desc"`
	CreateTime flexString `json:"createTime"`
	ModifyTime flexString `json:"modifyTime"`
}

type rawTask struct {
	Name       string     `json:"name"`
	Desc       string     `json:"desc"`
	ProjectID  flexString `json:"projectID"`
	Status     flexString `json:"status"`
	IsList     flexString `json:"isList"`
	OwnerUser  flexString `json:"ownerUser"`
	CreateTime flexString `json:"createTime"`
	ModifyTime flexString `json:"modifyTime"`
	MetaInfo   rawMeta    `json:"metaInfo"`
}

type rawMeta struct {
	TimeFrom  flexString `json:"timeFrom"`
	TimeTo    flexString `json:"timeTo"`
	TaskLevel flexString `json:"taskLevel"`
}

// UnmarshalJSON tolerates the empty array PHP emits for missing metaInfo
func (m *rawMeta) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == '[' || string(b) == "null" {
		*m = rawMeta{}
		return nil
	}
	type plain rawMeta
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*m = rawMeta(p)
	return nil
}
