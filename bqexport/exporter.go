// Package bqexport publishes detected facility events to a BigQuery
// dataset for downstream analytics.
//
// Rows land in a staging table first and are folded into the target
// with a MERGE keyed on the event identity, so re-exporting a window
// never duplicates rows. Staging tables carry an expiration timestamp
// as a backstop in case cleanup never runs.
package bqexport

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/pkg/errors"
	"github.com/qor5/x/v3/hook"
	"github.com/theplant/appkit/logtracing"
	"google.golang.org/api/googleapi"
	"gorm.io/gorm"

	"github.com/theplant/regsync"
)

const eventsTable = "facility_events"

// Config represents the configuration for creating an exporter.
type Config struct {
	Client    *bigquery.Client
	DatasetID string
	DB        *gorm.DB

	// StagingTableTTL is the expiration set on staging tables
	// (default: 24 hours).
	StagingTableTTL time.Duration
}

type Exporter struct {
	*Config
	createStagingTableHook hook.Hook[CreateStagingTableFunc]
}

// CreateStagingTableInput represents the input for creating the
// staging table.
type CreateStagingTableInput struct {
	*Exporter
	TargetTable  string
	StagingTable string
}

// CreateStagingTableFunc defines the function signature for creating
// the staging table.
type CreateStagingTableFunc func(ctx context.Context, input *CreateStagingTableInput) error

// New creates a new exporter with the given configuration.
func New(conf *Config) (*Exporter, error) {
	if conf == nil {
		return nil, errors.New("config is required")
	}
	if conf.Client == nil {
		return nil, errors.New("client is required")
	}
	if err := validateDatasetID(conf.DatasetID); err != nil {
		return nil, errors.Wrapf(err, "invalid datasetID: %s", conf.DatasetID)
	}
	if conf.DB == nil {
		return nil, errors.New("db is required")
	}
	if conf.StagingTableTTL == 0 {
		conf.StagingTableTTL = 24 * time.Hour
	}
	return &Exporter{Config: conf}, nil
}

// WithCreateStagingTableHook adds a hook around staging table creation.
func (e *Exporter) WithCreateStagingTableHook(hooks ...hook.Hook[CreateStagingTableFunc]) *Exporter {
	e.createStagingTableHook = hook.Prepend(e.createStagingTableHook, hooks...)
	return e
}

// eventRow is the BigQuery shape of one facility event.
type eventRow struct {
	CCN               string    `bigquery:"ccn"`
	EventType         string    `bigquery:"event_type"`
	EventDate         time.Time `bigquery:"event_date"`
	PreviousExtractID int64     `bigquery:"previous_extract_id"`
	CurrentExtractID  int64     `bigquery:"current_extract_id"`
	PreviousValue     *string   `bigquery:"previous_value"`
	NewValue          string    `bigquery:"new_value"`
	ChangeMagnitude   *float64  `bigquery:"change_magnitude"`
	State             *string   `bigquery:"state"`
	CreatedAt         time.Time `bigquery:"created_at"`
}

// Export publishes all events created at or after since. Returns the
// number of rows staged.
func (e *Exporter) Export(ctx context.Context, since time.Time) (exported int, xerr error) {
	ctx, _ = logtracing.StartSpan(ctx, "bqexport.Export")
	spanKVs := make(map[string]any)
	defer func() {
		logtracing.AppendSpanKVs(ctx, spanKVs)
		logtracing.EndSpan(ctx, xerr)
	}()

	var events []*regsync.FacilityEvent
	err := e.DB.WithContext(ctx).
		Where("created_at >= ?", since).Order("id").Find(&events).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to load events for export")
	}

	spanKVs["event_count"] = len(events)
	if len(events) == 0 {
		return 0, nil
	}

	stagingTable := eventsTable + strings.ToLower(fmt.Sprintf("_stg_%s", time.Now().Format("20060102t150405")))
	spanKVs["staging_table"] = stagingTable

	createFunc := e.createStagingTable
	if e.createStagingTableHook != nil {
		createFunc = e.createStagingTableHook(createFunc)
	}
	if err := createFunc(ctx, &CreateStagingTableInput{
		Exporter:     e,
		TargetTable:  eventsTable,
		StagingTable: stagingTable,
	}); err != nil {
		return 0, errors.Wrapf(err, "failed to create staging table %s", stagingTable)
	}

	rows := make([]*eventRow, 0, len(events))
	for _, event := range events {
		rows = append(rows, &eventRow{
			CCN:               event.CCN,
			EventType:         string(event.EventType),
			EventDate:         event.EventDate,
			PreviousExtractID: event.PreviousExtractID,
			CurrentExtractID:  event.CurrentExtractID,
			PreviousValue:     event.PreviousValue,
			NewValue:          event.NewValue,
			ChangeMagnitude:   event.ChangeMagnitude,
			State:             event.State,
			CreatedAt:         event.CreatedAt,
		})
	}

	inserter := e.Client.Dataset(e.DatasetID).Table(stagingTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return 0, errors.Wrapf(err, "failed to insert into staging table %s", stagingTable)
	}

	if err := e.merge(ctx, stagingTable); err != nil {
		// Leave the staging table behind for debugging; its expiration
		// timestamp cleans it up eventually.
		return 0, err
	}

	if err := e.dropStagingTable(ctx, stagingTable); err != nil {
		spanKVs["cleanup_error"] = err.Error()
	}

	return len(rows), nil
}

// createStagingTable creates the staging table as a schema copy of the
// target with an expiration backstop.
func (e *Exporter) createStagingTable(ctx context.Context, input *CreateStagingTableInput) (xerr error) {
	ctx, _ = logtracing.StartSpan(ctx, "bqexport.createStagingTable")
	defer func() { logtracing.EndSpan(ctx, xerr) }()

	if err := validateTableName(input.StagingTable); err != nil {
		return errors.Wrapf(err, "invalid staging table name: %s", input.StagingTable)
	}
	if err := validateTableName(input.TargetTable); err != nil {
		return errors.Wrapf(err, "invalid target table name: %s", input.TargetTable)
	}

	projectID := e.Client.Project()
	createQuery := fmt.Sprintf("CREATE TABLE `%s.%s.%s` LIKE `%s.%s.%s`",
		projectID, e.DatasetID, input.StagingTable, projectID, e.DatasetID, input.TargetTable)
	createQuery += fmt.Sprintf(" OPTIONS(expiration_timestamp=TIMESTAMP_ADD(CURRENT_TIMESTAMP(), INTERVAL %d SECOND))",
		int(e.StagingTableTTL.Seconds()))

	if err := e.runQuery(ctx, createQuery); err != nil {
		if IsAlreadyExistsError(err) {
			return e.runQuery(ctx, fmt.Sprintf("TRUNCATE TABLE `%s.%s.%s`", projectID, e.DatasetID, input.StagingTable))
		}
		return err
	}
	return nil
}

// merge folds staged rows into the target, matching on the event
// identity so a re-export of the same window inserts nothing new.
func (e *Exporter) merge(ctx context.Context, stagingTable string) (xerr error) {
	ctx, _ = logtracing.StartSpan(ctx, "bqexport.merge")
	defer func() { logtracing.EndSpan(ctx, xerr) }()

	projectID := e.Client.Project()
	query := fmt.Sprintf(`MERGE `+"`%s.%s.%s`"+` t
USING `+"`%s.%s.%s`"+` s
ON t.ccn = s.ccn
 AND t.event_type = s.event_type
 AND t.event_date = s.event_date
 AND t.previous_extract_id = s.previous_extract_id
 AND t.current_extract_id = s.current_extract_id
 AND t.new_value = s.new_value
WHEN NOT MATCHED THEN
 INSERT ROW`,
		projectID, e.DatasetID, eventsTable,
		projectID, e.DatasetID, stagingTable)

	return errors.Wrapf(e.runQuery(ctx, query), "failed to merge staging table %s", stagingTable)
}

func (e *Exporter) dropStagingTable(ctx context.Context, stagingTable string) error {
	table := e.Client.Dataset(e.DatasetID).Table(stagingTable)
	if err := table.Delete(ctx); err != nil && !IsNotFound(err) {
		return errors.Wrapf(err, "failed to cleanup staging table %s", stagingTable)
	}
	return nil
}

func (e *Exporter) runQuery(ctx context.Context, query string) error {
	job, err := e.Client.Query(query).Run(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to run query")
	}
	st, err := job.Wait(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to wait for query job")
	}
	if st.Err() != nil {
		return errors.Wrap(st.Err(), "query job failed")
	}
	return nil
}

// IsAlreadyExistsError checks if the error is a BigQuery "Already
// Exists" error (409 Conflict).
func IsAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusConflict
}

// IsNotFound checks if the error is a "not found" error (404).
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusNotFound
}

var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

func validateIdentifier(name, identifierType string) error {
	if len(name) == 0 {
		return errors.Errorf("%s cannot be empty", identifierType)
	}
	if len(name) > 1024 {
		return errors.Errorf("%s exceeds maximum length of 1024 UTF-8 bytes: %d", identifierType, len(name))
	}
	if !identifierRegex.MatchString(name) {
		return errors.Errorf("%s contains invalid characters: %s (only letters, numbers, and underscores are allowed)", identifierType, name)
	}
	return nil
}

func validateTableName(name string) error {
	return validateIdentifier(name, "table name")
}

func validateDatasetID(datasetID string) error {
	return validateIdentifier(datasetID, "dataset ID")
}
