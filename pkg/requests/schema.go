// Package requests defines the NYC 311 service-request dataset: its remote
// identity on the Socrata open-data platform, the raw column projection
// pulled during ingestion, and the record types that flow through the
// pipeline.
package requests

import "time"

const (
	// Domain is the Socrata domain hosting the dataset.
	Domain = "data.cityofnewyork.us"
	// DatasetID identifies the 311 Service Requests dataset.
	DatasetID = "erm2-nwe9"
	// PagePrefix tags raw page artifacts written by the ingester.
	PagePrefix = "nyc311"
	// CreatedColumn is the timestamp column used for windowing, ordering and
	// partitioning.
	CreatedColumn = "created_date"
	// CivicTimezone is the timezone all derived calendar fields are local to.
	CivicTimezone = "America/New_York"
)

// SelectColumns is the raw column projection requested from the API, in the
// order pages are staged and written.
var SelectColumns = []string{
	"unique_key", "created_date", "closed_date", "resolution_action_updated_date",
	"agency", "complaint_type", "descriptor", "status", "borough", "incident_zip",
	"city", "open_data_channel_type", "latitude", "longitude",
}

// TimestampColumns are raw columns normalized to TIMESTAMP at page-write time.
var TimestampColumns = []string{"created_date", "closed_date", "resolution_action_updated_date"}

// NumericColumns are raw columns normalized to DOUBLE at page-write time.
var NumericColumns = []string{"latitude", "longitude"}

// RequiredColumns is the minimum column set the published clean dataset must
// carry. Publish aborts if the projection ever drops one of these.
var RequiredColumns = []string{
	"unique_key", "created_dt", "borough", "complaint_type", "descriptor",
	"response_hours", "within_sla", "hour", "dow_name", "month_name",
}

// RawRecord is one service request as ingested, after type normalization.
// Pointer fields are NULL in the source when nil.
type RawRecord struct {
	UniqueKey        string
	CreatedDate      *time.Time
	ClosedDate       *time.Time
	ResolutionUpdate *time.Time
	Agency           string
	ComplaintType    string
	Descriptor       string
	Status           string
	Borough          string
	IncidentZip      string
	City             string
	Channel          string
	Latitude         *float64
	Longitude        *float64
}

// CleanRecord is the analytical row derived from a RawRecord.
type CleanRecord struct {
	UniqueKey string

	// CreatedLocal is the creation time expressed as civic-local wall clock.
	CreatedLocal time.Time
	Date         time.Time // CreatedLocal truncated to midnight
	Hour         int       // 0-23
	DayOfWeek    int       // 0=Monday .. 6=Sunday
	DowName      string
	Month        int // 1-12
	MonthName    string
	IsHoliday    bool

	Borough       string
	ComplaintType string
	Descriptor    string
	Agency        string
	Status        string
	Channel       string
	City          string
	IncidentZip   string

	// ResponseHours is nil when the request has neither a closure nor a
	// last-update timestamp; such rows are ineligible for SLA rates.
	ResponseHours *float64
	// WithinSLA is nil exactly when ResponseHours is nil.
	WithinSLA *bool

	Latitude  *float64
	Longitude *float64
}
