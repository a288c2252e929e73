package platform

import "time"

// Course is one top-level course container visible to the session.
type Course struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Content describes one node in a course's content hierarchy. Folders and
// downloadable files are distinguished by their content handler; nodes with a
// handler the client can't process are skipped during traversal.
type Content struct {
	ID             string     `json:"id"`
	CourseID       string     `json:"courseId"`
	Name           string     `json:"name"`
	ContentHandler string     `json:"contentHandler,omitempty"`
	Modified       *time.Time `json:"modified,omitempty"`
}

type userResponse struct {
	UserName string `json:"userName"`
}

type courseListResponse struct {
	Results []Course `json:"results"`
}

type contentListResponse struct {
	Results []Content `json:"results"`
}
