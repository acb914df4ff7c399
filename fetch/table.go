package fetch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/theplant/regsync"
)

// TableSource pages through an existing database table, used to seed a
// baseline extract from a previously materialized current-state table.
// Rows are ordered by orderBy so offsets are stable across pages.
type TableSource struct {
	db      *gorm.DB
	table   string
	orderBy string
}

func NewTableSource(db *gorm.DB, table, orderBy string) *TableSource {
	return &TableSource{db: db, table: table, orderBy: orderBy}
}

func (s *TableSource) Count(ctx context.Context) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Table(s.table).Count(&count).Error
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count rows of %s", s.table)
	}
	return int(count), nil
}

func (s *TableSource) Fetch(ctx context.Context, offset, limit int) ([]regsync.RawRecord, error) {
	var rows []map[string]any
	err := s.db.WithContext(ctx).Table(s.table).
		Order(s.orderBy).Offset(offset).Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s at offset %d", s.table, offset)
	}

	records := make([]regsync.RawRecord, 0, len(rows))
	for _, row := range rows {
		record := make(regsync.RawRecord, len(row))
		for column, value := range row {
			if value == nil {
				continue
			}
			record[column] = stringifyColumn(value)
		}
		records = append(records, record)
	}
	return records, nil
}

func stringifyColumn(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format("2006-01-02")
	default:
		return fmt.Sprint(v)
	}
}
