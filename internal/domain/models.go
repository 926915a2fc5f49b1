// internal/domain/models.go
package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Required row columns.
const (
	ColumnFilename        = "Filename"
	ColumnTitle           = "Title"
	ColumnResourceType    = "Resource Type"
	ColumnDescription     = "Description"
	ColumnCreators        = "Creators"
	ColumnKeywords        = "Keywords"
	ColumnStagingLocation = "Staging Location"
)

// RequiredColumns lists the columns every input sheet must carry.
var RequiredColumns = []string{
	ColumnFilename,
	ColumnTitle,
	ColumnResourceType,
	ColumnDescription,
	ColumnCreators,
	ColumnKeywords,
}

// listSeparator splits multi-valued cells. Commas are left alone because
// creator names are written as "Last, First".
const listSeparator = ";"

// Row is one data row of the input sheet keyed by column name.
type Row struct {
	Index  int
	Fields map[string]string
}

// Get returns the trimmed value of a column or "" when absent.
func (r Row) Get(column string) string {
	if r.Fields == nil {
		return ""
	}
	return strings.TrimSpace(r.Fields[column])
}

// Set stores a column value, allocating the field map if needed.
func (r *Row) Set(column, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	r.Fields[column] = value
}

// Creator is a single deposition author.
type Creator struct {
	Name string `json:"name"`
}

// Community references a curated collection on the remote service.
type Community struct {
	Identifier string `json:"identifier"`
}

// Metadata is the descriptive document attached to a deposition.
type Metadata struct {
	Title       string      `json:"title"`
	UploadType  string      `json:"upload_type"`
	Description string      `json:"description"`
	Creators    []Creator   `json:"creators"`
	Keywords    []string    `json:"keywords"`
	Communities []Community `json:"communities,omitempty"`
}

// UploadRequest is everything the pipeline needs to publish one row.
type UploadRequest struct {
	RowIndex      int
	LocalFilePath string
	Metadata      Metadata
}

// RemoteDeposit is the state handed back by the create call.
type RemoteDeposit struct {
	DepositionID int64
	BucketURL    string
}

// Outcome records how a single row ended. DepositionID is nil only when the
// create call never succeeded.
type Outcome struct {
	RowIndex     int
	SourceFile   string
	DepositionID *int64
	Title        string
	Keywords     []string
	Stage        Stage
	State        RowState
	Reason       string
	ErrorMessage string
}

// Succeeded reports whether the outcome belongs in the success list.
func (o Outcome) Succeeded() bool {
	return o.ErrorMessage == ""
}

// RunResult aggregates the outcomes of one batch run. Every processed row
// appears in exactly one of the two lists.
type RunResult struct {
	RunID       uuid.UUID
	Mode        Mode
	InputFile   string
	Succeeded   []Outcome
	Failed      []Outcome
	Interrupted bool
}

// Add files an outcome into the list it belongs to.
func (r *RunResult) Add(o Outcome) {
	if o.Succeeded() {
		r.Succeeded = append(r.Succeeded, o)
		return
	}
	r.Failed = append(r.Failed, o)
}

// Total is the number of rows that reached a terminal state.
func (r *RunResult) Total() int {
	return len(r.Succeeded) + len(r.Failed)
}

// MetadataFromRow maps the sheet columns onto the remote metadata document.
// community may be empty, in which case no community is attached.
func MetadataFromRow(row Row, community string) Metadata {
	md := Metadata{
		Title:       row.Get(ColumnTitle),
		UploadType:  row.Get(ColumnResourceType),
		Description: row.Get(ColumnDescription),
		Keywords:    SplitList(row.Get(ColumnKeywords)),
	}

	for _, name := range SplitList(row.Get(ColumnCreators)) {
		md.Creators = append(md.Creators, Creator{Name: name})
	}
	if md.Creators == nil {
		md.Creators = []Creator{}
	}
	if md.Keywords == nil {
		md.Keywords = []string{}
	}

	if community = strings.TrimSpace(community); community != "" {
		md.Communities = []Community{{Identifier: community}}
	}

	return md
}

// SplitList splits a multi-valued cell on ';', trimming and dropping blanks.
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, listSeparator) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
