// Package erptest provides an in-memory Frappe server for tests.
package erptest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/shiftledger/shiftledger/internal/erp"
)

// Server implements the subset of the Frappe resource API used by the agent.
type Server struct {
	*httptest.Server

	// Auth, when set, must match the Authorization header.
	Auth string
	// Fail, when set, may return a non-zero status to fail a request.
	Fail func(r *http.Request) int

	mu         sync.Mutex
	seq        int
	checkins   []erp.Checkin
	timesheets []erp.Timesheet
	employees  []erp.Employee
	calls      []string
}

func NewServer() *Server {
	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// AddEmployee seeds an employee record.
func (s *Server) AddEmployee(e erp.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees = append(s.employees, e)
}

// AddCheckin seeds a checkin and returns its name.
func (s *Server) AddCheckin(c erp.Checkin) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Name = s.nextName("CKIN")
	s.checkins = append(s.checkins, c)
	return c.Name
}

func (s *Server) Checkins() []erp.Checkin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]erp.Checkin(nil), s.checkins...)
}

func (s *Server) Timesheets() []erp.Timesheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]erp.Timesheet, len(s.timesheets))
	for i, ts := range s.timesheets {
		ts.TimeLogs = append([]erp.TimeLog(nil), ts.TimeLogs...)
		out[i] = ts
	}
	return out
}

// Calls returns "METHOD Resource" for every mutating request, in order.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Server) nextName(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if s.Auth != "" && r.Header.Get("Authorization") != s.Auth {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"exc_type": "AuthenticationError"})
		return
	}
	if s.Fail != nil {
		if status := s.Fail(r); status != 0 {
			writeJSON(w, status, map[string]string{"exc_type": "ServerError"})
			return
		}
	}

	if r.URL.Path == "/api/method/frappe.auth.get_logged_user" {
		writeJSON(w, http.StatusOK, map[string]string{"message": "agent@example.com"})
		return
	}

	rest, ok := strings.CutPrefix(r.URL.Path, "/api/resource/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	resource, name, _ := strings.Cut(rest, "/")

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Method != http.MethodGet {
		s.calls = append(s.calls, r.Method+" "+resource)
	}

	switch {
	case r.Method == http.MethodGet && name == "":
		s.list(w, r, resource)
	case r.Method == http.MethodGet:
		s.get(w, resource, name)
	case r.Method == http.MethodPost && name == "":
		s.create(w, r, resource)
	case r.Method == http.MethodPut && name != "":
		s.update(w, r, resource, name)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, nil)
	}
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, resource string) {
	var filters [][]string
	if f := r.URL.Query().Get("filters"); f != "" {
		if err := json.Unmarshal([]byte(f), &filters); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"exc": err.Error()})
			return
		}
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit_page_length"))

	var rows []interface{}
	switch resource {
	case "Employee Checkin":
		var matched []erp.Checkin
		for _, c := range s.checkins {
			if match(filters, checkinField(c)) {
				matched = append(matched, c)
			}
		}
		if r.URL.Query().Get("order_by") == "time desc" {
			sort.SliceStable(matched, func(i, j int) bool { return matched[i].Time > matched[j].Time })
		}
		for _, c := range matched {
			rows = append(rows, c)
		}
	case "Timesheet":
		for _, ts := range s.timesheets {
			if match(filters, timesheetField(ts)) {
				rows = append(rows, erp.Timesheet{Name: ts.Name, Employee: ts.Employee, StartDate: ts.StartDate})
			}
		}
	case "Employee":
		for _, e := range s.employees {
			if match(filters, employeeField(e)) {
				rows = append(rows, e)
			}
		}
	default:
		http.NotFound(w, r)
		return
	}

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	if rows == nil {
		rows = []interface{}{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": rows})
}

func (s *Server) get(w http.ResponseWriter, resource, name string) {
	if resource == "Employee" {
		for _, e := range s.employees {
			if e.Name == name {
				writeJSON(w, http.StatusOK, map[string]interface{}{"data": e})
				return
			}
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"exc_type": "DoesNotExistError"})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, resource string) {
	switch resource {
	case "Employee Checkin":
		var c erp.Checkin
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil || c.Employee == "" || c.Time == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"exc_type": "ValidationError"})
			return
		}
		c.Name = s.nextName("CKIN")
		s.checkins = append(s.checkins, c)
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": c})
	case "Timesheet":
		var ts erp.Timesheet
		if err := json.NewDecoder(r.Body).Decode(&ts); err != nil || ts.Employee == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"exc_type": "ValidationError"})
			return
		}
		ts.Name = s.nextName("TS")
		s.timesheets = append(s.timesheets, ts)
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": ts})
	default:
		writeJSON(w, http.StatusNotFound, nil)
	}
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, resource, name string) {
	switch resource {
	case "Employee Checkin":
		var body struct {
			Time string `json:"time"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, nil)
			return
		}
		for i := range s.checkins {
			if s.checkins[i].Name == name {
				s.checkins[i].Time = body.Time
				writeJSON(w, http.StatusOK, map[string]interface{}{"data": s.checkins[i]})
				return
			}
		}
	case "Timesheet":
		var body erp.Timesheet
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, nil)
			return
		}
		for i := range s.timesheets {
			if s.timesheets[i].Name == name {
				s.timesheets[i].TimeLogs = body.TimeLogs
				writeJSON(w, http.StatusOK, map[string]interface{}{"data": s.timesheets[i]})
				return
			}
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"exc_type": "DoesNotExistError"})
}

func match(filters [][]string, field func(string) string) bool {
	for _, f := range filters {
		if len(f) != 3 {
			return false
		}
		v := field(f[0])
		switch f[1] {
		case "=":
			if v != f[2] {
				return false
			}
		case ">=":
			if v < f[2] {
				return false
			}
		case "<=":
			if v > f[2] {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func checkinField(c erp.Checkin) func(string) string {
	return func(name string) string {
		switch name {
		case "employee":
			return c.Employee
		case "log_type":
			return c.LogType
		case "time":
			return c.Time
		}
		return ""
	}
}

func timesheetField(ts erp.Timesheet) func(string) string {
	return func(name string) string {
		switch name {
		case "employee":
			return ts.Employee
		case "start_date":
			return ts.StartDate
		}
		return ""
	}
}

func employeeField(e erp.Employee) func(string) string {
	return func(name string) string {
		switch name {
		case "name":
			return e.Name
		case "user_id":
			return e.UserID
		case "personal_email":
			return e.PersonalEmail
		case "company_email":
			return e.CompanyEmail
		}
		return ""
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
