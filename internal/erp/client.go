// Package erp is a minimal client for the ERPNext/Frappe REST API covering
// the Employee, Employee Checkin and Timesheet resources.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TimeLayout is the datetime format Frappe expects.
const TimeLayout = "2006-01-02 15:04:05"

const (
	LogIn  = "IN"
	LogOut = "OUT"

	resourceCheckin   = "Employee Checkin"
	resourceTimesheet = "Timesheet"
	resourceEmployee  = "Employee"

	activityWorking = "Working"
	maxBodyBytes    = 1 << 20
)

type Checkin struct {
	Name     string `json:"name,omitempty"`
	Employee string `json:"employee"`
	LogType  string `json:"log_type"`
	Time     string `json:"time"`
	DeviceID string `json:"device_id,omitempty"`
}

type TimeLog struct {
	FromTime     string  `json:"from_time"`
	Hours        float64 `json:"hours"`
	ActivityType string  `json:"activity_type,omitempty"`
}

type Timesheet struct {
	Name      string    `json:"name,omitempty"`
	Employee  string    `json:"employee"`
	StartDate string    `json:"start_date"`
	TimeLogs  []TimeLog `json:"time_logs"`
}

type Employee struct {
	Name          string `json:"name"`
	EmployeeName  string `json:"employee_name"`
	Department    string `json:"department"`
	Designation   string `json:"designation"`
	UserID        string `json:"user_id"`
	PersonalEmail string `json:"personal_email"`
	CompanyEmail  string `json:"company_email"`
}

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("erp %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Temporary reports whether retrying later may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type Client struct {
	baseURL    string
	authHeader string
	http       *http.Client
}

// New returns a client for baseURL authenticating with an API key pair.
// Every request is bounded by timeout in addition to its context.
func New(baseURL, apiKey, apiSecret string, timeout time.Duration) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
	if apiKey != "" || apiSecret != "" {
		c.authHeader = fmt.Sprintf("token %s:%s", apiKey, apiSecret)
	}
	return c
}

// FindCheckin returns the newest checkin of logType for employee on date
// (YYYY-MM-DD), or nil if there is none.
func (c *Client) FindCheckin(ctx context.Context, employee, logType, date string) (*Checkin, error) {
	filters := [][]string{
		{"employee", "=", employee},
		{"log_type", "=", logType},
		{"time", ">=", date + " 00:00:00"},
		{"time", "<=", date + " 23:59:59"},
	}
	var rows []Checkin
	err := c.list(ctx, resourceCheckin, filters, []string{"name", "employee", "log_type", "time"}, "time desc", &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *Client) CreateCheckin(ctx context.Context, in Checkin) (*Checkin, error) {
	var out Checkin
	if err := c.do(ctx, http.MethodPost, resourcePath(resourceCheckin, ""), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCheckinTime moves an existing checkin to at.
func (c *Client) UpdateCheckinTime(ctx context.Context, name string, at string) error {
	body := map[string]string{"time": at}
	return c.do(ctx, http.MethodPut, resourcePath(resourceCheckin, name), nil, body, nil)
}

// FindTimesheet returns the timesheet of employee starting on date, or nil.
func (c *Client) FindTimesheet(ctx context.Context, employee, date string) (*Timesheet, error) {
	filters := [][]string{
		{"employee", "=", employee},
		{"start_date", "=", date},
	}
	var rows []Timesheet
	if err := c.list(ctx, resourceTimesheet, filters, []string{"name", "employee", "start_date"}, "", &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *Client) CreateTimesheet(ctx context.Context, ts Timesheet) error {
	return c.do(ctx, http.MethodPost, resourcePath(resourceTimesheet, ""), nil, ts, nil)
}

// ReplaceTimesheet overwrites the time logs of timesheet name with those of ts.
func (c *Client) ReplaceTimesheet(ctx context.Context, name string, ts Timesheet) error {
	ts.Name = ""
	return c.do(ctx, http.MethodPut, resourcePath(resourceTimesheet, name), nil, ts, nil)
}

// DailyTimesheet builds the single-entry timesheet for one day.
func DailyTimesheet(employee, date, fromTime string, hours float64) Timesheet {
	return Timesheet{
		Employee:  employee,
		StartDate: date,
		TimeLogs: []TimeLog{{
			FromTime:     fromTime,
			Hours:        hours,
			ActivityType: activityWorking,
		}},
	}
}

var employeeFields = []string{"name", "employee_name", "department", "designation", "user_id", "personal_email", "company_email"}

// GetEmployee returns the employee with the given id.
func (c *Client) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	var out Employee
	if err := c.do(ctx, http.MethodGet, resourcePath(resourceEmployee, id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindEmployeeByEmail looks the employee up by user id, then personal
// email, then company email. It returns nil when no field matches.
func (c *Client) FindEmployeeByEmail(ctx context.Context, email string) (*Employee, error) {
	for _, field := range []string{"user_id", "personal_email", "company_email"} {
		var rows []Employee
		filters := [][]string{{field, "=", email}}
		if err := c.list(ctx, resourceEmployee, filters, employeeFields, "", &rows); err != nil {
			return nil, errors.Wrapf(err, "employee lookup by %s", field)
		}
		if len(rows) > 0 {
			return &rows[0], nil
		}
	}
	return nil, nil
}

// Ping checks connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/method/frappe.auth.get_logged_user", nil, nil, nil)
}

func (c *Client) list(ctx context.Context, resource string, filters [][]string, fields []string, orderBy string, out interface{}) error {
	f, err := json.Marshal(filters)
	if err != nil {
		return errors.Wrap(err, "failed to encode filters")
	}
	q := url.Values{}
	q.Set("filters", string(f))
	if len(fields) > 0 {
		fl, err := json.Marshal(fields)
		if err != nil {
			return errors.Wrap(err, "failed to encode fields")
		}
		q.Set("fields", string(fl))
	}
	if orderBy != "" {
		q.Set("order_by", orderBy)
	}
	q.Set("limit_page_length", "1")

	return c.do(ctx, http.MethodGet, resourcePath(resource, ""), q, nil, out)
}

func resourcePath(resource, name string) string {
	p := "/api/resource/" + url.PathEscape(resource)
	if name != "" {
		p += "/" + url.PathEscape(name)
	}
	return p
}

// envelope is the {"data": ...} wrapper of resource responses.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if c.baseURL == "" {
		return errors.New("erp base url is not configured")
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "erp %s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrapf(err, "erp %s %s: failed to read response", method, path)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(raw), 512),
		}
	}

	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errors.Wrapf(err, "erp %s %s: unexpected response %q", method, path, truncate(string(raw), 200))
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return errors.Errorf("erp %s %s: response has no data: %q", method, path, truncate(string(raw), 200))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.Wrapf(err, "erp %s %s: unexpected data shape", method, path)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
