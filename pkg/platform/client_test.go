package platform

import (
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursemirror/coursemirror/pkg/errors"
)

const goodToken = "good-token"

func newTestServer() *httptest.Server {
	mux := http.NewServeMux()

	authorized := func(r *http.Request) bool {
		return r.Header.Get("Authorization") == "Bearer "+goodToken
	}

	mux.HandleFunc("/api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"userName": "jdoe"}`)
	})

	mux.HandleFunc("/api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("dataSource") != "_21_1" {
			fmt.Fprint(w, `{"results": []}`)
			return
		}
		fmt.Fprint(w, `{"results": [
			{"id": "crs1", "name": "Algorithms"},
			{"id": "crs2", "name": "Databases"}
		]}`)
	})

	mux.HandleFunc("/api/v1/courses/crs1/contents", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"results": [
			{"id": "c1", "courseId": "crs1", "name": "Week 1",
			 "contentHandler": "resource/folder"},
			{"id": "c2", "courseId": "crs1", "name": "syllabus.pdf",
			 "contentHandler": "resource/file",
			 "modified": "2021-03-14T15:09:26Z"}
		]}`)
	})

	mux.HandleFunc("/api/v1/courses/crs1/contents/c2/download",
		func(w http.ResponseWriter, r *http.Request) {
			if !authorized(r) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, "pdf bytes")
		})

	return httptest.NewServer(mux)
}

func TestLogin(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	session, err := Login(server.URL, goodToken)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", session.Username())

	_, err = Login(server.URL, "bad-token")
	assert.Equal(t, errors.ErrInvalidCredential, err)
}

func TestLoginUnreachableServer(t *testing.T) {
	server := newTestServer()
	server.Close()

	_, err := Login(server.URL, goodToken)
	assert.True(t, errors.IsConnectionError(err))
}

func TestFetchCourses(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	session, err := Login(server.URL, goodToken)
	require.NoError(t, err)

	courses, err := session.FetchCourses("_21_1")
	require.NoError(t, err)
	assert.Equal(t, []Course{
		{ID: "crs1", Name: "Algorithms"},
		{ID: "crs2", Name: "Databases"},
	}, courses)

	// An unknown filter isn't an error; the platform just returns nothing.
	courses, err = session.FetchCourses("_99_9")
	require.NoError(t, err)
	assert.Empty(t, courses)
}

func TestFetchChildren(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	session, err := Login(server.URL, goodToken)
	require.NoError(t, err)

	children, err := session.FetchChildren("crs1", "")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "Week 1", children[0].Name)
	assert.Equal(t, "resource/folder", children[0].ContentHandler)
	assert.Nil(t, children[0].Modified)
	require.NotNil(t, children[1].Modified)
	assert.Equal(t, 2021, children[1].Modified.Year())
}

func TestDownloadLeaf(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	session, err := Login(server.URL, goodToken)
	require.NoError(t, err)

	body, err := session.DownloadLeaf("crs1", "c2")
	require.NoError(t, err)
	defer body.Close()

	contents, err := ioutil.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(contents))
}

func TestExpiredSessionClassified(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	session, err := Login(server.URL, goodToken)
	require.NoError(t, err)

	// Simulate the platform revoking the token mid-session.
	session.token = "revoked"

	_, err = session.FetchChildren("crs1", "")
	assert.Equal(t, errors.ErrSessionExpired, errors.RootCause(err))

	_, err = session.FetchCourses("_21_1")
	assert.Equal(t, errors.ErrSessionExpired, errors.RootCause(err))
}
