package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unza/counseling-identity/internal/core/domain"
)

const testLoginPath = "/api/v1/customers/login"

// sisServer answers logins with status and body, and counts the calls.
func sisServer(t *testing.T, status int, body string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, testLoginPath, r.URL.Path)

		var creds map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.NotEmpty(t, creds["username"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestSIS(name, url string) *SISInstance {
	return NewSISInstance(SISCampus{Name: name, BaseURL: url}, SISOptions{Timeout: time.Second}, http.DefaultClient, zerolog.Nop())
}

const sisSuccessBody = `{"success": true, "data": {"user": {"student_id": "2021001234", "first_name": "Mwila", "last_name": "Banda"}}}`

func TestSISInstance_Authenticate(t *testing.T) {
	srv := sisServer(t, http.StatusOK, sisSuccessBody, nil)
	sis := newTestSIS("distance", srv.URL)

	res, err := sis.Authenticate(context.Background(), "2021001234", "pass")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "SIS_DISTANCE", sis.Name())
	assert.Equal(t, "SIS_DISTANCE", res.Profile.ExternalSystem)
	assert.Equal(t, "Mwila", res.Profile.FirstName)
}

func TestSISInstance_StatusHandling(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		wantErr   bool
		wantMatch bool
	}{
		{"unauthorized is a negative answer", http.StatusUnauthorized, `{"message":"bad password"}`, false, false},
		{"not found is a negative answer", http.StatusNotFound, ``, false, false},
		{"server error is a transport failure", http.StatusBadGateway, `upstream down`, true, false},
		{"unparsable body is a transport failure", http.StatusOK, `<html>`, true, false},
		{"explicit failure payload", http.StatusOK, `{"success": false, "message": "Invalid credentials"}`, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := sisServer(t, tc.status, tc.body, nil)
			res, err := newTestSIS("gsb", srv.URL).Authenticate(context.Background(), "u", "p")
			if tc.wantErr {
				assert.ErrorIs(t, err, domain.ErrExternalTransport)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantMatch, res.Success)
		})
	}
}

func TestSISInstance_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestSIS("zou", url).Authenticate(context.Background(), "u", "p")
	assert.ErrorIs(t, err, domain.ErrExternalTransport)
}

func TestSISInstance_TimesOut(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() { close(block); srv.Close() })

	sis := NewSISInstance(SISCampus{Name: "ecampus", BaseURL: srv.URL}, SISOptions{Timeout: 50 * time.Millisecond}, http.DefaultClient, zerolog.Nop())
	start := time.Now()
	_, err := sis.Authenticate(context.Background(), "u", "p")
	assert.ErrorIs(t, err, domain.ErrExternalTransport)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSISInstance_ProfileExists(t *testing.T) {
	wrongPassword := sisServer(t, http.StatusOK, `{"success": false, "message": "Incorrect password"}`, nil)
	unknown := sisServer(t, http.StatusOK, `{"success": false, "message": "Student not found"}`, nil)
	rejected := sisServer(t, http.StatusNotFound, ``, nil)

	checking := func(name, url string) *SISInstance {
		opts := SISOptions{Timeout: time.Second, CheckProfiles: true}
		return NewSISInstance(SISCampus{Name: name, BaseURL: url}, opts, http.DefaultClient, zerolog.Nop())
	}
	assert.True(t, checking("a", wrongPassword.URL).ProfileExists(context.Background(), "2021001234"))
	assert.False(t, checking("b", unknown.URL).ProfileExists(context.Background(), "2021001234"))
	assert.False(t, checking("c", rejected.URL).ProfileExists(context.Background(), "2021001234"))
}

func TestSISInstance_ProfileCheckDisabledByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := sisServer(t, http.StatusOK, `{"success": false, "message": "Incorrect password"}`, &calls)

	assert.False(t, newTestSIS("a", srv.URL).ProfileExists(context.Background(), "2021001234"))
	assert.Zero(t, calls.Load(), "no login is submitted to the campus")
}

func TestSISInstance_FetchProfileUnsupported(t *testing.T) {
	_, err := newTestSIS("a", "http://127.0.0.1:1").FetchProfile(context.Background(), "x")
	assert.True(t, errors.Is(err, domain.ErrProfileUnavailable))
}
