// Package band implements one backup attempt's lifecycle: BandId
// parsing/ordering, and the BANDHEAD/BANDTAIL JSON files that record
// when a band was opened and, only on success, when and how it
// finished. It is a direct Go rendering of original_source's
// BandId/Band, which this spec's band component distills; the
// teacher repo has no equivalent (its snapshot/packfile model has no
// notion of an in-progress, resumable write), so this package leans
// on stdlib for the id parser — no dotted-id library appears anywhere
// in the example pack. BANDHEAD additionally carries a BandUUID,
// playing the role the teacher's metadata.IndexID (uuid.UUID) plays
// for its snapshots: a stable identity independent of sequence
// number, useful once archives get copied or merged.
package band

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/archivekit/conserve/conserveerr"
	"github.com/archivekit/conserve/transport"
)

// FormatVersion is this implementation's band format version. Bands
// with a higher major version are refused.
const FormatVersion = "1.0"

const (
	headFile = "BANDHEAD"
	tailFile = "BANDTAIL"
)

// Id is a dotted-decimal band identifier such as "b0000" or
// "b0000-0001". Only single-component ids are produced today;
// multi-component ids are reserved for sub-bands.
type Id struct {
	components []int
}

// ParseId parses a band directory name like "b0000" or "b0000-0001".
func ParseId(s string) (Id, error) {
	if !strings.HasPrefix(s, "b") {
		return Id{}, conserveerr.New(conserveerr.InvalidApath, fmt.Sprintf("band id %q must start with 'b'", s))
	}
	parts := strings.Split(s[1:], "-")
	comps := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Id{}, conserveerr.New(conserveerr.InvalidApath, fmt.Sprintf("band id %q has a non-numeric component", s))
		}
		comps = append(comps, n)
	}
	return Id{components: comps}, nil
}

// NewId constructs a top-level band id with the given sequence
// number.
func NewId(n int) Id { return Id{components: []int{n}} }

// String renders the id back to its dotted-decimal directory name,
// each component zero-padded to 4 digits.
func (id Id) String() string {
	parts := make([]string, len(id.components))
	for i, c := range id.components {
		parts[i] = fmt.Sprintf("%04d", c)
	}
	return "b" + strings.Join(parts, "-")
}

// Compare orders ids component-by-component, numerically.
func (id Id) Compare(other Id) int {
	n := len(id.components)
	if len(other.components) < n {
		n = len(other.components)
	}
	for i := 0; i < n; i++ {
		if id.components[i] != other.components[i] {
			if id.components[i] < other.components[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(id.components) < len(other.components):
		return -1
	case len(id.components) > len(other.components):
		return 1
	default:
		return 0
	}
}

// Less reports whether id sorts strictly before other.
func (id Id) Less(other Id) bool { return id.Compare(other) < 0 }

// Head is the JSON content of BANDHEAD, written when a band is
// opened for write.
type Head struct {
	StartTime         int64  `json:"start_time"`
	BandFormatVersion string `json:"band_format_version"`
	Hostname          string `json:"hostname,omitempty"`
	Source            string `json:"source,omitempty"`
	// BandUUID stably identifies this band independent of its
	// sequence number, the same role metadata.IndexID plays for the
	// teacher's snapshots. It is assigned by Create if left blank.
	BandUUID string `json:"band_uuid,omitempty"`
}

// Tail is the JSON content of BANDTAIL, written only when a band
// completes successfully. Its presence is the sole indicator of
// completeness.
type Tail struct {
	EndTime        int64 `json:"end_time"`
	IndexHunkCount int   `json:"index_hunk_count"`
}

// Band is a handle to one band directory within an archive.
type Band struct {
	Id Id
	tr transport.Transport
}

// Open wraps an existing band directory for reading or appending. It
// requires BANDHEAD to exist but does not require BANDTAIL.
func Open(ctx context.Context, tr transport.Transport, id Id) (*Band, error) {
	exists, err := tr.Exists(ctx, headFile)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, conserveerr.NotFoundf(id.String() + "/" + headFile)
	}
	raw, err := tr.Read(ctx, headFile)
	if err != nil {
		return nil, err
	}
	var head Head
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, conserveerr.Wrap(conserveerr.IndexCorrupt, "parsing BANDHEAD", err)
	}
	if err := checkFormatVersion(head.BandFormatVersion); err != nil {
		return nil, err
	}
	return &Band{Id: id, tr: tr}, nil
}

// Create allocates and opens a new band for writing, immediately
// persisting BANDHEAD.
func Create(ctx context.Context, tr transport.Transport, id Id, head Head) (*Band, error) {
	head.BandFormatVersion = FormatVersion
	if head.BandUUID == "" {
		head.BandUUID = uuid.NewString()
	}
	raw, err := json.Marshal(head)
	if err != nil {
		return nil, conserveerr.Wrap(conserveerr.Io, "encoding BANDHEAD", err)
	}
	if err := tr.CreateDir(ctx, ""); err != nil {
		return nil, err
	}
	if err := tr.Write(ctx, headFile, raw); err != nil {
		return nil, err
	}
	return &Band{Id: id, tr: tr}, nil
}

// Close writes BANDTAIL, marking the band complete.
func (b *Band) Close(ctx context.Context, tail Tail) error {
	raw, err := json.Marshal(tail)
	if err != nil {
		return conserveerr.Wrap(conserveerr.Io, "encoding BANDTAIL", err)
	}
	return b.tr.Write(ctx, tailFile, raw)
}

// IsClosed reports whether BANDTAIL exists.
func (b *Band) IsClosed(ctx context.Context) (bool, error) {
	return b.tr.Exists(ctx, tailFile)
}

// ReadTail reads and parses BANDTAIL. It returns NotFound if the band
// is not yet complete.
func (b *Band) ReadTail(ctx context.Context) (Tail, error) {
	raw, err := b.tr.Read(ctx, tailFile)
	if err != nil {
		return Tail{}, err
	}
	var tail Tail
	if err := json.Unmarshal(raw, &tail); err != nil {
		return Tail{}, conserveerr.Wrap(conserveerr.IndexCorrupt, "parsing BANDTAIL", err)
	}
	return tail, nil
}

// ReadHead reads and parses BANDHEAD.
func (b *Band) ReadHead(ctx context.Context) (Head, error) {
	raw, err := b.tr.Read(ctx, headFile)
	if err != nil {
		return Head{}, err
	}
	var head Head
	if err := json.Unmarshal(raw, &head); err != nil {
		return Head{}, conserveerr.Wrap(conserveerr.IndexCorrupt, "parsing BANDHEAD", err)
	}
	return head, nil
}

// Transport returns the transport rooted at this band's directory,
// for index readers/writers to build hunk paths against.
func (b *Band) Transport() transport.Transport { return b.tr }

func checkFormatVersion(found string) error {
	foundMajor, err := strconv.Atoi(strings.SplitN(found, ".", 2)[0])
	if err != nil {
		return conserveerr.UnsupportedFormatf(found, FormatVersion)
	}
	supportedMajor, err := strconv.Atoi(strings.SplitN(FormatVersion, ".", 2)[0])
	if err != nil {
		return conserveerr.UnsupportedFormatf(found, FormatVersion)
	}
	if foundMajor > supportedMajor {
		return conserveerr.UnsupportedFormatf(found, FormatVersion)
	}
	return nil
}
