package finder

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ErrConfiguration marks input that cannot start a run.
var ErrConfiguration = errors.New("invalid run configuration")

var dateRestrictPattern = regexp.MustCompile(`^y[1-5]$`)

// Input describes one run. Exactly one of Targets and Target must be set.
type Input struct {
	// Targets are batch rows; blank rows are skipped with a warning.
	Targets []string `json:"targets,omitempty"`
	// Target is a single organization name.
	Target string `json:"target,omitempty"`
	// Periods are appended to the query, one search per period.
	Periods []string `json:"periods"`
	// Keywords sit between the target and the period in the query.
	Keywords string `json:"keywords"`
	// DateRestrict is empty or y1..y5.
	DateRestrict string `json:"date_restrict"`
	// SearchTimeout bounds each search call.
	SearchTimeout time.Duration `json:"search_timeout"`
	// FetchTimeout bounds each payload download.
	FetchTimeout time.Duration `json:"fetch_timeout"`
	// RestrictByName keeps only URLs containing the target name.
	RestrictByName bool `json:"restrict_by_name"`
	// Scope is an optional sub-folder holding payloads and a separate ledger.
	Scope string `json:"scope,omitempty"`
	// RunID tags mirrored rows and notifications.
	RunID string `json:"run_id,omitempty"`
}

// Validate checks the input before any network activity.
func (in Input) Validate() error {
	hasBatch := len(in.Targets) > 0
	hasSingle := strings.TrimSpace(in.Target) != ""
	switch {
	case hasBatch && hasSingle:
		return fmt.Errorf("%w: both a target list and a single target were given", ErrConfiguration)
	case !hasBatch && !hasSingle:
		return fmt.Errorf("%w: no target list and no single target", ErrConfiguration)
	}
	if len(in.Periods) == 0 {
		return fmt.Errorf("%w: at least one period is required", ErrConfiguration)
	}
	for _, p := range in.Periods {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: blank period", ErrConfiguration)
		}
	}
	if in.DateRestrict != "" && !dateRestrictPattern.MatchString(in.DateRestrict) {
		return fmt.Errorf("%w: date restrict %q must be empty or y1..y5", ErrConfiguration, in.DateRestrict)
	}
	if in.SearchTimeout < 0 || in.FetchTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrConfiguration)
	}
	for _, seg := range strings.Split(in.Scope, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: scope %q escapes the root folder", ErrConfiguration, in.Scope)
		}
	}
	return nil
}

func (in Input) targets() []string {
	if len(in.Targets) > 0 {
		return in.Targets
	}
	return []string{strings.TrimSpace(in.Target)}
}

// BuildQuery renders "{target} {keywords} {period} filetype:pdf". Empty parts
// are dropped so no double spaces appear.
func BuildQuery(target, keywords, period string) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{target, keywords, period} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, "filetype:pdf")
	return strings.Join(parts, " ")
}

// EffectiveTarget returns the second-to-last label of the URL host, so
// https://www.example.com/x.pdf yields "example". A single-label host is
// returned as is; an unparsable URL yields fallback.
func EffectiveTarget(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return fallback
	}
	labels := strings.Split(host, ".")
	if len(labels) == 1 {
		return labels[0]
	}
	return labels[len(labels)-2]
}

// pathSegment makes a target usable as one folder name.
func pathSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", `\`, "_").Replace(s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
