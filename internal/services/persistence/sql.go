package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
)

var ErrNotFound = errors.New("not found")

type SQLConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	LogQueries      bool          `yaml:"log_queries"`
}

// OpenSQL connects to sqlite, postgres or mysql depending on cfg.Driver.
func OpenSQL(cfg SQLConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	level := logger.Silent
	if cfg.LogQueries {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// SQLStore keeps alerts, actuator logs and settings.
type SQLStore struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSQLStore(db *gorm.DB, log *zap.Logger) (*SQLStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&entities.Alert{}, &entities.ActuatorActionLog{}, &entities.Settings{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLStore{db: db, log: log}, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ---- alerts ----

func (s *SQLStore) SaveAlert(ctx context.Context, a *entities.Alert) error {
	return s.db.WithContext(ctx).Create(a).Error
}

type AlertFilter struct {
	Limit        int
	Severity     entities.Severity
	Acknowledged *bool
	Start, End   *time.Time
}

func (s *SQLStore) ListAlerts(ctx context.Context, f AlertFilter) ([]entities.Alert, error) {
	q := s.db.WithContext(ctx).Model(&entities.Alert{})
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.Acknowledged != nil {
		q = q.Where("acknowledged = ?", *f.Acknowledged)
	}
	q = timeWindow(q, f.Start, f.End)

	out := []entities.Alert{}
	err := q.Order("timestamp DESC").Limit(limitOr(f.Limit, 50)).Find(&out).Error
	return out, err
}

// LatestUnacknowledged returns the newest alert not yet acknowledged.
func (s *SQLStore) LatestUnacknowledged(ctx context.Context) (entities.Alert, error) {
	var a entities.Alert
	err := s.db.WithContext(ctx).Where("acknowledged = ?", false).Order("timestamp DESC").First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return a, ErrNotFound
	}
	return a, err
}

func (s *SQLStore) AcknowledgeAlert(ctx context.Context, id string) (entities.Alert, error) {
	var a entities.Alert
	db := s.db.WithContext(ctx)
	if err := db.First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return a, ErrNotFound
		}
		return a, err
	}
	if err := db.Model(&a).Update("acknowledged", true).Error; err != nil {
		return a, err
	}
	a.Acknowledged = true
	return a, nil
}

// AcknowledgeAll flags every pending alert and returns how many changed.
func (s *SQLStore) AcknowledgeAll(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&entities.Alert{}).
		Where("acknowledged = ?", false).
		Update("acknowledged", true)
	return res.RowsAffected, res.Error
}

type AlertStat struct {
	Type              entities.Severity   `json:"type"`
	SensorType        entities.SensorType `json:"sensorType"`
	Count             int64               `json:"count"`
	AcknowledgedCount int64               `json:"acknowledgedCount"`
}

func (s *SQLStore) AlertStats(ctx context.Context, since time.Time) ([]AlertStat, error) {
	out := []AlertStat{}
	err := s.db.WithContext(ctx).Model(&entities.Alert{}).
		Select("severity AS type, sensor_type, COUNT(*) AS count, "+
			"SUM(CASE WHEN acknowledged = ? THEN 1 ELSE 0 END) AS acknowledged_count", true).
		Where("timestamp >= ?", since).
		Group("severity, sensor_type").
		Order("severity, sensor_type").
		Scan(&out).Error
	return out, err
}

// ---- actuator logs ----

func (s *SQLStore) SaveActionLog(ctx context.Context, l *entities.ActuatorActionLog) error {
	return s.db.WithContext(ctx).Create(l).Error
}

type LogFilter struct {
	Limit        int
	ActuatorType string
	Start, End   *time.Time
}

func (s *SQLStore) ListActionLogs(ctx context.Context, f LogFilter) ([]entities.ActuatorActionLog, error) {
	q := s.db.WithContext(ctx).Model(&entities.ActuatorActionLog{})
	if f.ActuatorType != "" {
		q = q.Where("actuator_type = ?", f.ActuatorType)
	}
	q = timeWindow(q, f.Start, f.End)

	out := []entities.ActuatorActionLog{}
	err := q.Order("timestamp DESC").Limit(limitOr(f.Limit, 50)).Find(&out).Error
	return out, err
}

type ActionLogStat struct {
	ActuatorType   string `json:"actuatorType"`
	Action         string `json:"action"`
	Count          int64  `json:"count"`
	AutomaticCount int64  `json:"automaticCount"`
	ManualCount    int64  `json:"manualCount"`
}

func (s *SQLStore) ActionLogStats(ctx context.Context, since time.Time) ([]ActionLogStat, error) {
	out := []ActionLogStat{}
	err := s.db.WithContext(ctx).Model(&entities.ActuatorActionLog{}).
		Select("actuator_type, action, COUNT(*) AS count, "+
			"SUM(CASE WHEN trigger_source = ? THEN 1 ELSE 0 END) AS automatic_count, "+
			"SUM(CASE WHEN trigger_source = ? THEN 1 ELSE 0 END) AS manual_count",
			entities.TriggerAutomatic, entities.TriggerManual).
		Where("timestamp >= ?", since).
		Group("actuator_type, action").
		Order("actuator_type, action").
		Scan(&out).Error
	return out, err
}

// ---- settings ----

const settingsID = 1

// Settings returns the stored settings, creating the default row on first use.
func (s *SQLStore) Settings(ctx context.Context) (entities.Settings, error) {
	var st entities.Settings
	err := s.db.WithContext(ctx).First(&st, settingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		st = entities.DefaultSettings()
		st.UpdatedAt = time.Now().UTC()
		if err := s.saveSettings(ctx, &st); err != nil {
			return st, err
		}
		return st, nil
	}
	return st, err
}

// LoadThresholds reports the persisted thresholds, if any were ever saved.
func (s *SQLStore) LoadThresholds(ctx context.Context) (entities.ThresholdSet, bool, error) {
	var st entities.Settings
	err := s.db.WithContext(ctx).First(&st, settingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entities.ThresholdSet{}, false, nil
	}
	if err != nil {
		return entities.ThresholdSet{}, false, err
	}
	return st.Thresholds, true, nil
}

func (s *SQLStore) SaveThresholds(ctx context.Context, t entities.ThresholdSet) error {
	return s.updateSettings(ctx, func(st *entities.Settings) { st.Thresholds = t })
}

func (s *SQLStore) SetGSMNumber(ctx context.Context, number *string) (entities.Settings, error) {
	var out entities.Settings
	err := s.updateSettings(ctx, func(st *entities.Settings) {
		st.GSMNumber = number
		out = *st
	})
	return out, err
}

func (s *SQLStore) SetNotifications(ctx context.Context, enabled bool) (entities.Settings, error) {
	var out entities.Settings
	err := s.updateSettings(ctx, func(st *entities.Settings) {
		st.NotificationsEnabled = enabled
		out = *st
	})
	return out, err
}

func (s *SQLStore) updateSettings(ctx context.Context, mutate func(*entities.Settings)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var st entities.Settings
		err := tx.First(&st, settingsID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			st = entities.DefaultSettings()
		} else if err != nil {
			return err
		}
		st.UpdatedAt = time.Now().UTC()
		mutate(&st)
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&st).Error
	})
}

func (s *SQLStore) saveSettings(ctx context.Context, st *entities.Settings) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(st).Error
}

// ---- retention ----

// PurgeExpired deletes action logs and acknowledged alerts older than their cutoffs.
func (s *SQLStore) PurgeExpired(ctx context.Context, logsBefore, ackAlertsBefore time.Time) (logs, alerts int64, err error) {
	db := s.db.WithContext(ctx)
	res := db.Where("timestamp < ?", logsBefore).Delete(&entities.ActuatorActionLog{})
	if res.Error != nil {
		return 0, 0, fmt.Errorf("purge action logs: %w", res.Error)
	}
	logs = res.RowsAffected

	res = db.Where("acknowledged = ? AND timestamp < ?", true, ackAlertsBefore).Delete(&entities.Alert{})
	if res.Error != nil {
		return logs, 0, fmt.Errorf("purge alerts: %w", res.Error)
	}
	return logs, res.RowsAffected, nil
}

func timeWindow(q *gorm.DB, start, end *time.Time) *gorm.DB {
	if start != nil {
		q = q.Where("timestamp >= ?", start.UTC())
	}
	if end != nil {
		q = q.Where("timestamp <= ?", end.UTC())
	}
	return q
}

func limitOr(n, def int) int {
	if n <= 0 {
		return def
	}
	if n > 1000 {
		return 1000
	}
	return n
}
