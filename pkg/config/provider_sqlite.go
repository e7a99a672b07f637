package config

import (
	"database/sql"
	"embed"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chrissnell/globalbedo/pkg/migrate"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations returns the schema migrations of the configuration database.
func Migrations() *migrate.FSProvider {
	return migrate.NewFSProvider(migrationFS, "migrations", "schema_migrations")
}

const defaultConfigName = "default"

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider opens (creating if needed) a SQLite configuration
// database and brings its schema up to date.
func NewSQLiteProvider(dbPath string, logger *zap.SugaredLogger) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	migrator := migrate.NewMigrator(db, Migrations(), logger)
	if err := migrator.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate configuration database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// setting binds one key of the settings table to a ConfigData field
type setting struct {
	section string
	key     string
	get     func(c *ConfigData) string
	set     func(c *ConfigData, v string) error
}

func floatSetting(section, key string, field func(c *ConfigData) *float64) setting {
	return setting{
		section: section,
		key:     key,
		get:     func(c *ConfigData) string { return strconv.FormatFloat(*field(c), 'g', -1, 64) },
		set: func(c *ConfigData, v string) (err error) {
			*field(c), err = strconv.ParseFloat(v, 64)
			return err
		},
	}
}

func intSetting(section, key string, field func(c *ConfigData) *int) setting {
	return setting{
		section: section,
		key:     key,
		get:     func(c *ConfigData) string { return strconv.Itoa(*field(c)) },
		set: func(c *ConfigData, v string) (err error) {
			*field(c), err = strconv.Atoi(v)
			return err
		},
	}
}

func boolSetting(section, key string, field func(c *ConfigData) *bool) setting {
	return setting{
		section: section,
		key:     key,
		get:     func(c *ConfigData) string { return strconv.FormatBool(*field(c)) },
		set: func(c *ConfigData, v string) (err error) {
			*field(c), err = strconv.ParseBool(v)
			return err
		},
	}
}

func stringSetting(section, key string, field func(c *ConfigData) *string) setting {
	return setting{
		section: section,
		key:     key,
		get:     func(c *ConfigData) string { return *field(c) },
		set: func(c *ConfigData, v string) error {
			*field(c) = v
			return nil
		},
	}
}

var settings = []setting{
	floatSetting("inversion", "half_life", func(c *ConfigData) *float64 { return &c.Inversion.HalfLife }),
	intSetting("inversion", "wings", func(c *ConfigData) *int { return &c.Inversion.Wings }),
	floatSetting("inversion", "prior_scale_factor", func(c *ConfigData) *float64 { return &c.Inversion.PriorScaleFactor }),
	floatSetting("inversion", "prior_weight", func(c *ConfigData) *float64 { return &c.Inversion.PriorWeight }),
	boolSetting("inversion", "use_prior", func(c *ConfigData) *bool { return &c.Inversion.UsePrior }),
	boolSetting("inversion", "compute_snow", func(c *ConfigData) *bool { return &c.Inversion.ComputeSnow }),
	boolSetting("inversion", "strict_input_checks", func(c *ConfigData) *bool { return &c.Inversion.StrictInputChecks }),
	boolSetting("inversion", "merge_snow", func(c *ConfigData) *bool { return &c.Inversion.MergeSnow }),
	boolSetting("inversion", "precise_zenith", func(c *ConfigData) *bool { return &c.Inversion.PreciseZenith }),

	stringSetting("storage", "accumulator_root", func(c *ConfigData) *string { return &c.Storage.AccumulatorRoot }),
	stringSetting("storage", "output_root", func(c *ConfigData) *string { return &c.Storage.OutputRoot }),
	stringSetting("storage", "prior_root", func(c *ConfigData) *string { return &c.Storage.PriorRoot }),
	boolSetting("storage", "compress", func(c *ConfigData) *bool { return &c.Storage.Compress }),
	stringSetting("storage", "catalog_path", func(c *ConfigData) *string { return &c.Storage.CatalogPath }),

	stringSetting("run", "tile", func(c *ConfigData) *string { return &c.Run.Tile }),
	intSetting("run", "year", func(c *ConfigData) *int { return &c.Run.Year }),
	intSetting("run", "doy", func(c *ConfigData) *int { return &c.Run.DoY }),
	intSetting("run", "width", func(c *ConfigData) *int { return &c.Run.Width }),
	intSetting("run", "height", func(c *ConfigData) *int { return &c.Run.Height }),
	intSetting("run", "workers", func(c *ConfigData) *int { return &c.Run.Workers }),
	floatSetting("run", "north_latitude", func(c *ConfigData) *float64 { return &c.Run.NorthLatitude }),
	floatSetting("run", "south_latitude", func(c *ConfigData) *float64 { return &c.Run.SouthLatitude }),
	floatSetting("run", "longitude", func(c *ConfigData) *float64 { return &c.Run.Longitude }),

	stringSetting("logging", "file", func(c *ConfigData) *string { return &c.Logging.File }),
	intSetting("logging", "max_size_mb", func(c *ConfigData) *int { return &c.Logging.MaxSizeMB }),
	intSetting("logging", "max_backups", func(c *ConfigData) *int { return &c.Logging.MaxBackups }),
}

func lookupSetting(section, key string) *setting {
	for i := range settings {
		if settings[i].section == section && settings[i].key == key {
			return &settings[i]
		}
	}
	return nil
}

// LoadConfig loads the complete configuration from SQLite database. Settings
// absent from the database keep the values of DefaultConfig.
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := DefaultConfig()

	rows, err := s.db.Query(`
		SELECT section, key, value
		FROM settings
		WHERE config_id = (SELECT id FROM configs WHERE name = ?)
	`, defaultConfigName)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var section, key, value string
		if err := rows.Scan(&section, &key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting row: %w", err)
		}
		st := lookupSetting(section, key)
		if st == nil {
			return nil, fmt.Errorf("%w: unknown setting %s.%s", ErrInvalid, section, key)
		}
		if err := st.set(config, value); err != nil {
			return nil, fmt.Errorf("%w: setting %s.%s=%q: %v", ErrInvalid, section, key, value, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	sensors, err := s.GetSensors()
	if err != nil {
		return nil, err
	}
	if len(sensors) > 0 {
		config.Sensors = sensors
	}

	return config, nil
}

// GetSensors returns the configured sensor names in their stored order
func (s *SQLiteProvider) GetSensors() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT name FROM sensors
		WHERE config_id = (SELECT id FROM configs WHERE name = ?)
		ORDER BY position
	`, defaultConfigName)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	var sensors []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan sensor row: %w", err)
		}
		sensors = append(sensors, name)
	}
	return sensors, rows.Err()
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	configID, err := s.upsertConfig(tx, defaultConfigName)
	if err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}

	for _, query := range []string{
		"DELETE FROM settings WHERE config_id = ?",
		"DELETE FROM sensors WHERE config_id = ?",
	} {
		if _, err := tx.Exec(query, configID); err != nil {
			return fmt.Errorf("failed to clear existing config: %w", err)
		}
	}

	for _, st := range settings {
		if _, err := tx.Exec(`INSERT INTO settings (config_id, section, key, value) VALUES (?, ?, ?, ?)`,
			configID, st.section, st.key, st.get(configData)); err != nil {
			return fmt.Errorf("failed to insert setting %s.%s: %w", st.section, st.key, err)
		}
	}

	for i, name := range configData.Sensors {
		if _, err := tx.Exec(`INSERT INTO sensors (config_id, position, name) VALUES (?, ?, ?)`, configID, i, name); err != nil {
			return fmt.Errorf("failed to insert sensor %s: %w", name, err)
		}
	}

	return tx.Commit()
}

// SetSetting updates a single setting, e.g. ("run", "doy", "129")
func (s *SQLiteProvider) SetSetting(section, key, value string) error {
	st := lookupSetting(section, key)
	if st == nil {
		return fmt.Errorf("%w: unknown setting %s.%s", ErrInvalid, section, key)
	}
	if err := st.set(DefaultConfig(), value); err != nil {
		return fmt.Errorf("%w: setting %s.%s=%q: %v", ErrInvalid, section, key, value, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	configID, err := s.upsertConfig(tx, defaultConfigName)
	if err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO settings (config_id, section, key, value) VALUES (?, ?, ?, ?)
		ON CONFLICT (config_id, section, key) DO UPDATE SET value = excluded.value
	`, configID, section, key, value); err != nil {
		return fmt.Errorf("failed to update setting %s.%s: %w", section, key, err)
	}

	return tx.Commit()
}

func (s *SQLiteProvider) upsertConfig(tx *sql.Tx, name string) (int64, error) {
	_, err := tx.Exec(`
		INSERT INTO configs (name, created_at, updated_at) VALUES (?, datetime('now'), datetime('now'))
		ON CONFLICT (name) DO UPDATE SET updated_at = datetime('now')
	`, name)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := tx.QueryRow("SELECT id FROM configs WHERE name = ?", name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
