package registry

import (
	"fmt"
	"net/url"
	"strings"
)

// Routes builds backend endpoint URLs for registry submissions.
type Routes struct {
	BaseURL string
}

func (r Routes) join(parts ...string) string {
	base := strings.TrimRight(r.BaseURL, "/")
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return base + "/" + strings.Join(escaped, "/")
}

// PhotoUpload is the target for a new candidate photo.
func (r Routes) PhotoUpload(jobID, slotID string) string {
	return r.join("api", "jobs", jobID, "slots", slotID, "photos")
}

// SlotMetadata is the target for serial-number and measurement updates.
func (r Routes) SlotMetadata(jobID, slotID string) string {
	return r.join("api", "jobs", jobID, "slots", slotID)
}

// Representative is the target announcing the slot's chosen photo.
func (r Routes) Representative(jobID, slotID string) string {
	return r.join("api", "jobs", jobID, "slots", slotID, "representative")
}

// Job is the target for refetching a job's server-side state.
func (r Routes) Job(jobID string) string {
	return r.join("api", "jobs", jobID)
}

func (r Routes) String() string {
	return fmt.Sprintf("Routes(%s)", r.BaseURL)
}
