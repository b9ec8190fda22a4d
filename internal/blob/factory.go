package blob

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"blobstore/internal/blob/core"
	infraS3 "blobstore/internal/infra/blob/s3"
)

// DefaultDriver is used when no driver is configured: an ephemeral sqlite database.
const DefaultDriver = DriverSQL

// Config selects and parameterizes exactly one backend.
type Config struct {
	Driver Driver
	// FSRoot is the parent of the managed blobstore folder when Driver is fs.
	FSRoot string
	SQL    SQLConfig
	S3     S3Config
}

// Open constructs the configured backend.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (Store, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DefaultDriver
	}
	log = log.With(slog.String("driver", string(driver)))
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot, log)
	case DriverSQL:
		return NewSQL(ctx, cfg.SQL, log)
	case DriverS3:
		return NewS3(ctx, cfg.S3, log)
	case DriverMemory:
		return NewMemory(log), nil
	default:
		return nil, core.E(core.KindInit, "init", "unknown blob driver "+string(driver), nil)
	}
}

// ApplyEnv overlays process environment onto cfg.
//
//	BLOBSTORE_BLOB_DRIVER: fs|sql|s3|memory (default sql)
//	BLOBSTORE_BLOB_FS_ROOT: parent directory when driver=fs (default os.TempDir())
//	BLOBSTORE_SQL_DIALECT, _ROOT, _FILE, _DSN, _USERNAME, _PASSWORD: driver=sql
//	(S3 specific variables documented in internal/infra/blob/s3)
func ApplyEnv(cfg Config) (Config, error) {
	setString(&cfg.FSRoot, "BLOBSTORE_BLOB_FS_ROOT")
	if v := os.Getenv("BLOBSTORE_BLOB_DRIVER"); v != "" {
		cfg.Driver = Driver(strings.ToLower(v))
	}
	if v := os.Getenv("BLOBSTORE_SQL_DIALECT"); v != "" {
		cfg.SQL.Dialect = SQLDialect(strings.ToLower(v))
	}
	setString(&cfg.SQL.Root, "BLOBSTORE_SQL_ROOT")
	setString(&cfg.SQL.File, "BLOBSTORE_SQL_FILE")
	setString(&cfg.SQL.DSN, "BLOBSTORE_SQL_DSN")
	setString(&cfg.SQL.Username, "BLOBSTORE_SQL_USERNAME")
	setString(&cfg.SQL.Password, "BLOBSTORE_SQL_PASSWORD")
	if os.Getenv("BLOBSTORE_BLOB_S3_BUCKET") != "" {
		s3cfg, err := infraS3.ConfigFromEnv()
		if err != nil {
			return cfg, err
		}
		cfg.S3.Bucket = s3cfg.Bucket
		cfg.S3.PathStyle = cfg.S3.PathStyle || s3cfg.PathStyle
		for dst, src := range map[*string]string{
			&cfg.S3.Region:   s3cfg.Region,
			&cfg.S3.Prefix:   s3cfg.Prefix,
			&cfg.S3.Endpoint: s3cfg.Endpoint,
		} {
			if src != "" {
				*dst = src
			}
		}
	}
	return cfg, nil
}

// OpenFromEnv constructs a backend purely from environment variables.
func OpenFromEnv(ctx context.Context, log *slog.Logger) (Store, error) {
	cfg, err := ApplyEnv(Config{})
	if err != nil {
		return nil, err
	}
	return Open(ctx, cfg, log)
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
