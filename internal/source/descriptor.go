package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Location says where a source's canonical data lives.
type Location int

const (
	// Local sources are read straight from the data directory.
	Local Location = iota + 1
	// Web sources are mirrored from another server; the data directory
	// holds the offline copy.
	Web
)

func (l Location) String() string {
	switch l {
	case Local:
		return "local"
	case Web:
		return "web"
	default:
		return "unknown"
	}
}

// ParseLocation maps the descriptor's location field to a Location.
func ParseLocation(s string) (Location, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return Local, nil
	case "web":
		return Web, nil
	case "":
		return 0, errors.New("location is required")
	default:
		return 0, fmt.Errorf("unknown location %q", s)
	}
}

// Descriptor is the decoded form of data/<id>/source.json.
type Descriptor struct {
	ID       string
	Location Location
	// URL is the base address of the upstream server. Set only for Web.
	URL string
}

type descriptorFile struct {
	Location string `json:"location"`
	URL      string `json:"url,omitempty"`
}

// MarshalJSON writes the descriptor in its on-disk shape.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(descriptorFile{Location: d.Location.String(), URL: d.URL})
}

// DecodeDescriptor parses and validates a source.json payload.
func DecodeDescriptor(id string, data []byte) (Descriptor, error) {
	perr := func(err error) error {
		return &ParseError{Source: id, File: descriptorFileName, Raw: string(data), Err: err}
	}

	var raw descriptorFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return Descriptor{}, perr(err)
	}

	loc, err := ParseLocation(raw.Location)
	if err != nil {
		return Descriptor{}, perr(err)
	}

	d := Descriptor{ID: id, Location: loc}
	if loc == Web {
		if err := validateURL(raw.URL); err != nil {
			return Descriptor{}, perr(err)
		}
		d.URL = strings.TrimRight(raw.URL, "/")
	}
	return d, nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url is required for web sources")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("bad url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme %q not supported", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url has no host")
	}
	return nil
}
