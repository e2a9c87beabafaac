package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

type Config struct {
	Driver           string // postgres | sqlite
	SQLitePath       string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresName     string
}

func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresName,
	)
}

type Service struct {
	db     *gorm.DB
	driver string
	log    *logger.Logger
}

func NewService(cfg Config, logg *logger.Logger) (*Service, error) {
	serviceLog := logg.With("service", "DBService")

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case "", "postgres":
		driver = "postgres"
		db, err = gorm.Open(postgres.Open(cfg.PostgresDSN()), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			Logger:                                   gormLog,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
	case "sqlite":
		db, err = OpenSQLite(cfg.SQLitePath, gormLog)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	serviceLog.Info("Database connected", "driver", driver)
	return &Service{db: db, driver: driver, log: serviceLog}, nil
}

// OpenSQLite opens a file-backed SQLite database. SQLite allows a single writer,
// so the pool is pinned to one connection and callers must not hold a
// transaction while issuing queries outside of it.
func OpenSQLite(path string, gormLog gormLogger.Interface) (*gorm.DB, error) {
	if strings.TrimSpace(path) == "" {
		path = "riskwatch.db"
	}
	if gormLog == nil {
		gormLog = gormLogger.Default.LogMode(gormLogger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_foreign_keys=off"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Driver() string { return s.driver }

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
