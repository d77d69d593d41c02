// Package pgcheck reads the live settings of a PostgreSQL server so they can
// be validated like a postgresql.conf file.
package pgcheck

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sardine-ai/go-config-advisor/advisor"
	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/properties"
)

// Origin is the file name recorded on properties read from a live server.
const Origin = "pg_settings"

// Inspector reads settings through a read-only query on pg_settings.
type Inspector struct {
	db *gorm.DB
}

// Open connects with the lib/pq driver. The pool is kept tiny since the
// inspector issues one query per audit.
func Open(dsn string) (*Inspector, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db), nil
}

func New(db *gorm.DB) *Inspector {
	return &Inspector{db: db}
}

func (i *Inspector) Ping(ctx context.Context) error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (i *Inspector) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type setting struct {
	Name    string
	Setting string
	Unit    *string
}

// Settings returns the advised GUCs as postgres.* properties with their
// units folded into the value, e.g. shared_buffers 16384 × 8kB → "128MB".
func (i *Inspector) Settings(ctx context.Context) (*model.PropertySet, error) {
	names := make([]string, 0, len(advisor.PostgresSettings))
	for name := range advisor.PostgresSettings {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows []setting
	err := i.db.WithContext(ctx).
		Raw(`SELECT name, setting, unit FROM pg_settings WHERE name IN ? ORDER BY name`, names).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read pg_settings: %w", err)
	}

	set := model.NewPropertySet()
	for n, row := range rows {
		unit := ""
		if row.Unit != nil {
			unit = *row.Unit
		}
		value, err := normalize(row.Setting, unit)
		if err != nil {
			logrus.WithError(err).WithField("setting", row.Name).Warn("Keeping raw pg_settings value")
			value = row.Setting
		}
		set.Set(properties.PostgresKey(row.Name), value, model.Origin{File: Origin, Line: n + 1})
	}
	logrus.WithField("settings", set.Len()).Debug("Read pg_settings")
	return set, nil
}

var memoryUnits = map[string]uint64{
	"B":   1,
	"kB":  1 << 10,
	"8kB": 8 << 10,
	"MB":  1 << 20,
	"GB":  1 << 30,
}

var timeUnits = map[string]time.Duration{
	"us":  time.Microsecond,
	"ms":  time.Millisecond,
	"s":   time.Second,
	"min": time.Minute,
	"h":   time.Hour,
	"d":   24 * time.Hour,
}

// normalize folds pg_settings' unit column into the value.
func normalize(value, unit string) (string, error) {
	value = strings.TrimSpace(value)
	if unit == "" || strings.HasPrefix(value, "-") {
		return value, nil
	}
	if mult, ok := memoryUnits[unit]; ok {
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %s %s", properties.ErrInvalidValue, value, unit)
		}
		return properties.FormatPGMemory(n * mult), nil
	}
	if mult, ok := timeUnits[unit]; ok {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %s %s", properties.ErrInvalidValue, value, unit)
		}
		return properties.FormatPGDuration(time.Duration(n) * mult), nil
	}
	return value, nil
}
