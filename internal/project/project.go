package project

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/project-matcher/internal/listing"
)

// NotAvailable is the marker the fetcher writes for fields it could not read.
const NotAvailable = "N/A"

// ErrMalformedRecord is returned for raw records that cannot become a Project.
var ErrMalformedRecord = errors.New("malformed record")

// createdLayouts are tried in order; the fetcher has used all of them.
var createdLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"02.01.2006 / 15:04",
	"2.1.2006 / 15:04",
	"02.01.2006 15:04",
	"02.01.2006",
	"2006-01-02",
}

type Project struct {
	ID          string
	Link        string
	Title       string
	Company     string
	Description string
	Keywords    string
	// CreatedAt is the source-reported creation time. Zero when unknown.
	CreatedAt     time.Time
	IsFeatured    bool
	IsEndCustomer bool
	IngestedAt    time.Time
}

// IDFromLink derives the stable project identifier from its source link.
func IDFromLink(link string) string {
	sum := sha1.Sum([]byte(strings.TrimSpace(link)))
	return hex.EncodeToString(sum[:])
}

// FromRaw converts a fetcher record into a Project. A record without a link
// has no identity and is rejected; an unreadable creation date only leaves
// CreatedAt unset.
func FromRaw(raw listing.RawRecord, ingestedAt time.Time) (Project, error) {
	link := strings.TrimSpace(raw.Link)
	if IsNotAvailable(link) {
		return Project{}, fmt.Errorf("%w: missing link (title %q)", ErrMalformedRecord, strings.TrimSpace(raw.Title))
	}

	created, _ := ParseCreated(raw.Created)

	return Project{
		ID:            IDFromLink(link),
		Link:          link,
		Title:         strings.TrimSpace(raw.Title),
		Company:       strings.TrimSpace(raw.Company),
		Description:   strings.TrimSpace(raw.Description),
		Keywords:      strings.TrimSpace(raw.Keywords),
		CreatedAt:     created,
		IsFeatured:    raw.TopProject,
		IsEndCustomer: raw.EndCustomer,
		IngestedAt:    ingestedAt.UTC(),
	}, nil
}

// ParseCreated parses a source creation date. Dates without a zone are read as UTC.
func ParseCreated(value string) (time.Time, error) {
	value = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), "eingetragen am:"))
	if IsNotAvailable(value) {
		return time.Time{}, fmt.Errorf("%w: empty creation date", ErrMalformedRecord)
	}

	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: unparseable creation date %q", ErrMalformedRecord, value)
}

// IsNotAvailable reports whether value is empty or the fetcher's N/A marker.
func IsNotAvailable(value string) bool {
	value = strings.TrimSpace(value)
	return value == "" || strings.EqualFold(value, NotAvailable)
}

// HasCreated reports whether the source creation time is known.
func (p Project) HasCreated() bool {
	return !p.CreatedAt.IsZero()
}
