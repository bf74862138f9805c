package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

const (
	pingTimeout         = 5 * time.Second
	defaultMaxOpenConns = 20
	defaultMaxIdleConns = 10
	defaultConnLifetime = 30 * time.Minute
	defaultConnIdleTime = 5 * time.Minute
)

// ErrStoreClosed возвращается при обращении к неинициализированному или закрытому хранилищу.
var ErrStoreClosed = errors.New("postgres mirror store is not initialized")

// Store держит пул подключений к зеркалу заказов в PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *log.Entry
}

type storeOptions struct {
	maxOpenConns int
	maxIdleConns int
	logger       *log.Entry
}

// Option настраивает Store.
type Option func(*storeOptions)

// WithPoolSize задаёт размер пула; неположительные значения игнорируются.
func WithPoolSize(maxOpen, maxIdle int) Option {
	return func(o *storeOptions) {
		if maxOpen > 0 {
			o.maxOpenConns = maxOpen
		}
		if maxIdle > 0 {
			o.maxIdleConns = maxIdle
		}
	}
}

func WithLogger(logger *log.Entry) Option {
	return func(o *storeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open подключается к PostgreSQL через pgx и сразу проверяет соединение.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	o := storeOptions{
		maxOpenConns: defaultMaxOpenConns,
		maxIdleConns: defaultMaxIdleConns,
		logger:       log.WithField("component", "postgres-mirror"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxIdleConns > o.maxOpenConns {
		o.maxIdleConns = o.maxOpenConns
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open order mirror: %w", err)
	}
	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(o.maxIdleConns)
	db.SetConnMaxLifetime(defaultConnLifetime)
	db.SetConnMaxIdleTime(defaultConnIdleTime)

	s := &Store{db: db, logger: o.logger}
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping order mirror: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"max_open_conns": o.maxOpenConns,
		"max_idle_conns": o.maxIdleConns,
	}).Debug("postgres mirror connected")
	return s, nil
}

// DB отдаёт пул репозиториям пакета.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping используется health-чекером готовности.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close order mirror: %w", err)
	}
	s.log().Debug("postgres mirror closed")
	return nil
}

func (s *Store) log() *log.Entry {
	if s == nil || s.logger == nil {
		return log.WithField("component", "postgres-mirror")
	}
	return s.logger
}
