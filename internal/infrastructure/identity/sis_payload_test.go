package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unza/counseling-identity/internal/core/domain"
)

func TestParseSISReply_CurrentShape(t *testing.T) {
	body := []byte(`{
		"success": true,
		"data": {
			"user": {
				"student_id": 2021001234,
				"first_name": "Mwila",
				"surname": "Banda",
				"email": "mwila,banda@student,unza.zm",
				"phone": "0977000000",
				"major": "Computer Science"
			},
			"yr_of_study": "3",
			"student_program_info": {
				"Program": {"program_description": "Bachelor of Science"},
				"School": {"school_description": "Natural Sciences"},
				"Campus": {"campus_description": "Great East Road"}
			}
		}
	}`)

	reply, err := parseSISReply(body)
	require.NoError(t, err)
	require.True(t, reply.ok)

	p := reply.profile("login-name", "SIS_UNDERGRADUATE")
	assert.Equal(t, "2021001234", p.Username)
	assert.Equal(t, "2021001234", p.StudentID)
	assert.Equal(t, "Mwila", p.FirstName)
	assert.Equal(t, "Banda", p.LastName)
	assert.Equal(t, "mwila.banda@student.unza.zm", p.Email)
	assert.Equal(t, 3, p.YearOfStudy)
	assert.Equal(t, "Bachelor of Science", p.Program)
	assert.Equal(t, "Natural Sciences - Great East Road", p.Department)
	assert.Equal(t, "SIS_UNDERGRADUATE", p.ExternalSystem)
	assert.Equal(t, domain.SourceSIS, p.Source)
	assert.Equal(t, []domain.RoleName{domain.RoleStudent}, p.RolesHint)
}

func TestParseSISReply_LegacyShape(t *testing.T) {
	body := []byte(`{"response": {"status": 200, "message": "ok", "data": {
		"computer_no": "19001122",
		"full_name": "PHIRI Chanda Grace",
		"program": "Diploma in Education",
		"year": 2
	}}}`)

	reply, err := parseSISReply(body)
	require.NoError(t, err)
	require.True(t, reply.ok)

	p := reply.profile("19001122", "SIS_DISTANCE")
	assert.Equal(t, "19001122", p.Username)
	assert.Equal(t, "Chanda Grace", p.FirstName)
	assert.Equal(t, "PHIRI", p.LastName)
	assert.Equal(t, "Diploma in Education", p.Program)
	assert.Equal(t, 2, p.YearOfStudy)
	assert.Empty(t, p.Email)
}

func TestParseSISReply_Negative(t *testing.T) {
	cases := map[string]struct {
		body string
		msg  string
	}{
		"success false":        {`{"success": false, "message": "Invalid password"}`, "Invalid password"},
		"legacy non-200":       {`{"response": {"status": 401, "message": "Student not found"}}`, "Student not found"},
		"success without data": {`{"success": true}`, "authentication failed"},
		"empty object":         {`{}`, "authentication failed"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			reply, err := parseSISReply([]byte(tc.body))
			require.NoError(t, err)
			assert.False(t, reply.ok)
			assert.Equal(t, tc.msg, reply.message)
		})
	}

	_, err := parseSISReply([]byte(`<html>`))
	assert.Error(t, err)
}

func TestProfile_Defaults(t *testing.T) {
	reply := sisReply{ok: true, user: node{"email": "null"}, data: node{}}
	p := reply.profile("2020999", "SIS_ZOU")

	assert.Equal(t, "2020999", p.Username)
	assert.Equal(t, "Student", p.FirstName)
	assert.Equal(t, "2020999", p.LastName)
	assert.Empty(t, p.Email)
	assert.Empty(t, p.StudentID)
}

func TestSplitFullName(t *testing.T) {
	cases := []struct{ in, first, last string }{
		{"", "", ""},
		{"Banda", "", "Banda"},
		{"Mwila Banda", "Mwila", "Banda"},
		{"BANDA Mwila", "Mwila", "BANDA"},
		{"BANDA MWILA", "BANDA", "MWILA"},
		{"  Chanda   Grace Phiri ", "Chanda", "Grace Phiri"},
	}
	for _, tc := range cases {
		first, last := splitFullName(tc.in)
		assert.Equal(t, tc.first, first, tc.in)
		assert.Equal(t, tc.last, last, tc.in)
	}
}
