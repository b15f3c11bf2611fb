package identity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/unza/counseling-identity/internal/core/domain"
)

// node is a decoded JSON object. SIS instances disagree on field names, so
// profiles are read through alias lists rather than fixed structs.
type node map[string]any

var (
	firstNameFields = []string{
		"first_name", "firstname", "given_name", "fname", "givenname",
		"First_Name", "FirstName", "FIRST_NAME", "forename", "fore_name",
	}
	lastNameFields = []string{
		"last_name", "lastname", "surname", "family_name", "lname", "familyname",
		"Last_Name", "LastName", "LAST_NAME", "Surname", "SURNAME",
	}
	fullNameFields = []string{
		"full_name", "fullname", "name", "student_name", "names",
		"Full_Name", "FullName", "FULL_NAME", "Name", "NAME",
		"student_fullname", "student_full_name", "studentName",
	}
	studentIDFields = []string{"student_id", "computer_no", "studentId"}
	yearFields      = []string{"yr_of_study", "year_of_study", "year", "level"}
	programFields   = []string{"major", "program", "programme", "degree", "course"}
)

// sisReply is the interpretation of one SIS login response.
type sisReply struct {
	ok      bool
	message string
	user    node
	data    node
}

// parseSISReply accepts both payload generations:
//
//	{"success": true, "data": {"user": {...}}}
//	{"response": {"status": 200, "data": {"user": {...}}, "message": "..."}}
//
// A missing user object means the user fields sit directly under data.
func parseSISReply(body []byte) (sisReply, error) {
	var root node
	if err := json.Unmarshal(body, &root); err != nil {
		return sisReply{}, fmt.Errorf("decode sis response: %w", err)
	}

	if truthy(root["success"]) {
		if data := root.object("data"); data != nil {
			return sisReply{ok: true, user: userOrData(data), data: data}, nil
		}
	}

	resp := root.object("response")
	if resp != nil && resp.number("status") == 200 {
		if data := resp.object("data"); data != nil {
			return sisReply{ok: true, user: userOrData(data), data: data}, nil
		}
	}

	msg := root.text("message")
	if msg == "" && resp != nil {
		msg = resp.text("message")
	}
	if msg == "" {
		msg = "authentication failed"
	}
	return sisReply{message: msg}, nil
}

func userOrData(data node) node {
	if u := data.object("user"); u != nil {
		return u
	}
	return data
}

// profile builds the external profile for a positive reply.
func (r sisReply) profile(loginUsername, system string) *domain.ExternalProfile {
	user, data := r.user, r.data

	studentID := user.first(studentIDFields...)
	username := studentID
	if username == "" {
		username = loginUsername
	}

	first := firstOf(user, data, firstNameFields)
	last := firstOf(user, data, lastNameFields)
	if first == "" && last == "" {
		first, last = splitFullName(firstOf(user, data, fullNameFields))
	}
	if first == "" {
		first = "Student"
	}
	if last == "" {
		last = username
	}

	p := &domain.ExternalProfile{
		ExternalID:     username,
		ExternalSystem: system,
		Source:         domain.SourceSIS,
		Username:       username,
		FirstName:      first,
		LastName:       last,
		Email:          strings.ReplaceAll(user.text("email"), ",", "."),
		Phone:          user.text("phone"),
		StudentID:      studentID,
		Program:        user.first(programFields...),
		RolesHint:      []domain.RoleName{domain.RoleStudent},
	}

	for _, f := range yearFields {
		if y, err := strconv.Atoi(data.text(f)); err == nil {
			p.YearOfStudy = y
			break
		}
	}

	if info := data.object("student_program_info"); info != nil {
		if prog := info.object("Program").text("program_description"); prog != "" {
			p.Program = prog
		}
		school := info.object("School").text("school_description")
		campus := info.object("Campus").text("campus_description")
		switch {
		case school != "" && campus != "":
			p.Department = school + " - " + campus
		case school != "":
			p.Department = school
		case campus != "":
			p.Department = campus
		}
	}
	return p
}

// splitFullName handles "SURNAME Firstname" as well as "Firstname Surname".
// A single token is taken as the surname.
func splitFullName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	}
	head, rest := parts[0], strings.Join(parts[1:], " ")
	if isUpper(head) && !isUpper(rest) {
		return rest, head
	}
	return head, rest
}

func isUpper(s string) bool {
	return s == strings.ToUpper(s) && strings.IndexFunc(s, unicode.IsLetter) >= 0
}

func firstOf(primary, secondary node, fields []string) string {
	if v := primary.first(fields...); v != "" {
		return v
	}
	return secondary.first(fields...)
}

func (n node) object(key string) node {
	if n == nil {
		return nil
	}
	m, _ := n[key].(map[string]any)
	return m
}

// text renders scalars as strings; JSON null and the literal "null" are empty.
func (n node) text(key string) string {
	if n == nil {
		return ""
	}
	var s string
	switch v := n[key].(type) {
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	default:
		return ""
	}
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") {
		return ""
	}
	return s
}

func (n node) number(key string) int {
	i, _ := strconv.Atoi(n.text(key))
	return i
}

func (n node) first(keys ...string) string {
	for _, k := range keys {
		if v := n.text(k); v != "" {
			return v
		}
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	}
	return false
}
