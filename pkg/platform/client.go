// Package platform implements the client for the learning platform's public
// REST API. It authenticates with an API token and exposes the course list,
// content hierarchies, and file downloads consumed by the download job.
//
// All responses are classified at this boundary: an HTTP 401 becomes
// errors.ErrSessionExpired (or errors.ErrInvalidCredential at login), and
// transport failures become errors.ConnectionError. The sync engine's retry
// and logout decisions are driven entirely by these classifications.
package platform

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coursemirror/coursemirror/pkg/errors"
)

const requestTimeout = 30 * time.Second

// Session is an authenticated handle to the platform. It is safe for
// concurrent use; the credential is never mutated after login.
type Session struct {
	baseURL    string
	token      string
	username   string
	httpClient *http.Client
}

// Login validates the credential against the platform and returns an
// authenticated session. An invalid credential yields
// errors.ErrInvalidCredential.
func Login(server, token string) (*Session, error) {
	s := &Session{
		baseURL:    strings.TrimRight(server, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: requestTimeout},
	}

	var user userResponse
	if err := s.getJSON("/api/v1/users/me", nil, &user); err != nil {
		if errors.RootCause(err) == errors.ErrSessionExpired {
			return nil, errors.ErrInvalidCredential
		}
		return nil, err
	}

	s.username = user.UserName
	return s, nil
}

// Username returns the identity the session was authenticated as.
func (s *Session) Username() string {
	return s.username
}

// FetchCourses lists the top-level courses visible to the session. The
// dataSource filter is passed through to the platform verbatim; CourseMirror
// never interprets it.
func (s *Session) FetchCourses(dataSource string) ([]Course, error) {
	query := url.Values{}
	if dataSource != "" {
		query.Set("dataSource", dataSource)
	}

	var courses courseListResponse
	if err := s.getJSON("/api/v1/courses", query, &courses); err != nil {
		return nil, errors.WithContext(err, "fetch courses")
	}
	return courses.Results, nil
}

// FetchChildren lists the direct children of a content node. An empty
// contentID addresses the course root.
func (s *Session) FetchChildren(courseID, contentID string) ([]Content, error) {
	path := fmt.Sprintf("/api/v1/courses/%s/contents", url.PathEscape(courseID))
	if contentID != "" {
		path = fmt.Sprintf("%s/%s/children", path, url.PathEscape(contentID))
	}

	var contents contentListResponse
	if err := s.getJSON(path, nil, &contents); err != nil {
		return nil, errors.WithContext(err, "fetch children")
	}
	return contents.Results, nil
}

// DownloadLeaf streams the binary contents of a downloadable content node.
// The caller is responsible for closing the stream.
func (s *Session) DownloadLeaf(courseID, contentID string) (io.ReadCloser, error) {
	path := fmt.Sprintf("/api/v1/courses/%s/contents/%s/download",
		url.PathEscape(courseID), url.PathEscape(contentID))
	resp, err := s.get(path, nil)
	if err != nil {
		return nil, errors.WithContext(err, "download")
	}
	return resp.Body, nil
}

func (s *Session) getJSON(path string, query url.Values, out interface{}) error {
	resp, err := s.get(path, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.WithContext(err, "decode response")
	}
	return nil
}

func (s *Session) get(path string, query url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	if len(query) != 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.WithContext(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.ConnectionError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		resp.Body.Close()
		return nil, errors.ErrSessionExpired
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %q for %s", resp.Status, path)
	}
	return resp, nil
}
