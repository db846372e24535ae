package source

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"

	"numflow/internal/layout"
)

const (
	SchemeDrive = "gdrive"
	SchemeS3    = "s3"
)

// Ref is a parsed link. ID is stable for a given resource and safe to use
// in file names.
type Ref struct {
	Link   string
	Scheme string
	ID     string
	Bucket string // s3 only
	Key    string // s3 only
}

var drivePath = regexp.MustCompile(`/d/([A-Za-z0-9_-]+)`)

// Parse extracts the stable identifier from a link.
func Parse(link string) (Ref, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return Ref{}, &InvalidLinkError{Link: link, Reason: "empty link"}
	}

	if rest, ok := strings.CutPrefix(link, "s3://"); ok {
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return Ref{}, &InvalidLinkError{Link: link, Reason: "want s3://<bucket>/<key>"}
		}
		return Ref{
			Link:   link,
			Scheme: SchemeS3,
			ID:     fmt.Sprintf("s3-%016x", xxhash.Sum64String(bucket+"/"+key)),
			Bucket: bucket,
			Key:    key,
		}, nil
	}

	if m := drivePath.FindStringSubmatch(link); m != nil {
		return Ref{Link: link, Scheme: SchemeDrive, ID: m[1]}, nil
	}
	if u, err := url.Parse(link); err == nil {
		if id := u.Query().Get("id"); id != "" && layout.ValidID(id) {
			return Ref{Link: link, Scheme: SchemeDrive, ID: id}, nil
		}
	}
	return Ref{}, &InvalidLinkError{Link: link, Reason: "no file id found (want .../d/<id>/... or ?id=<id>)"}
}
