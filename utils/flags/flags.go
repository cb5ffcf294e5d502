package flags

import (
	"github.com/urfave/cli/v2"
)

// GetCliFlags returns the slice of cli.Flag's that cachefsd accepts.
func GetCliFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config_file",
			Value:   "",
			Usage:   "Path to a YAML configuration file. If this flag is specified then all other flags are ignored.",
			EnvVars: []string{"CACHEFS_CONFIG_FILE"},
		},
		&cli.StringFlag{
			Name:    "cache_root",
			Value:   "",
			Usage:   "Directory path where to store cached blocks and metadata. This flag is required.",
			EnvVars: []string{"CACHEFS_CACHE_ROOT"},
		},
		&cli.Int64Flag{
			Name:    "block_size",
			Value:   262144,
			Usage:   "The fixed block size, in bytes, that the block data cache reads and stores.",
			EnvVars: []string{"CACHEFS_BLOCK_SIZE"},
		},
		&cli.Int64Flag{
			Name:    "max_cache_size",
			Value:   0,
			Usage:   "The maximum size, in bytes, of the on-disk block cache. 0 means unbounded.",
			EnvVars: []string{"CACHEFS_MAX_CACHE_SIZE"},
		},
		&cli.DurationFlag{
			Name:    "meta_ttl",
			Value:   60_000_000_000, // 60s, expressed in nanoseconds for cli.Duration's default
			Usage:   "How long a cached metadata record is considered fresh before it is revalidated against the backend.",
			EnvVars: []string{"CACHEFS_META_TTL"},
		},
		&cli.DurationFlag{
			Name:    "dir_ttl",
			Value:   30_000_000_000,
			Usage:   "How long a cached directory listing is considered fresh before it is revalidated against the backend.",
			EnvVars: []string{"CACHEFS_DIR_TTL"},
		},
		&cli.DurationFlag{
			Name:    "negative_ttl",
			Value:   2_000_000_000,
			Usage:   "How long a negative (not-found) metadata entry is cached before the backend is consulted again.",
			EnvVars: []string{"CACHEFS_NEGATIVE_TTL"},
		},
		&cli.BoolFlag{
			Name:    "debug",
			Value:   false,
			Usage:   "Whether to log verbose per-request cache activity.",
			EnvVars: []string{"CACHEFS_DEBUG"},
		},
		&cli.StringFlag{
			Name:    "http_backend.url",
			Value:   "",
			Usage:   "The base URL to use for an HTTP backend adapter. Mutually exclusive with s3_backend.bucket.",
			EnvVars: []string{"CACHEFS_HTTP_BACKEND_URL"},
		},
		&cli.StringFlag{
			Name:    "s3_backend.endpoint",
			Value:   "",
			Usage:   "The S3/minio endpoint to use for an S3 backend adapter.",
			EnvVars: []string{"CACHEFS_S3_BACKEND_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "s3_backend.bucket",
			Value:   "",
			Usage:   "The S3/minio bucket to use for an S3 backend adapter. Mutually exclusive with http_backend.url.",
			EnvVars: []string{"CACHEFS_S3_BACKEND_BUCKET"},
		},
		&cli.StringFlag{
			Name:    "s3_backend.prefix",
			Value:   "",
			Usage:   "The S3/minio object prefix to use for an S3 backend adapter.",
			EnvVars: []string{"CACHEFS_S3_BACKEND_PREFIX"},
		},
		&cli.StringFlag{
			Name:    "s3_backend.access_key_id",
			Value:   "",
			Usage:   "The S3/minio access key to use for an S3 backend adapter.",
			EnvVars: []string{"CACHEFS_S3_BACKEND_ACCESS_KEY_ID"},
		},
		&cli.StringFlag{
			Name:    "s3_backend.secret_access_key",
			Value:   "",
			Usage:   "The S3/minio secret access key to use for an S3 backend adapter.",
			EnvVars: []string{"CACHEFS_S3_BACKEND_SECRET_ACCESS_KEY"},
		},
		&cli.StringFlag{
			Name:    "s3_backend.region",
			Value:   "",
			Usage:   "The AWS region. Required when not using IAM role credentials.",
			EnvVars: []string{"CACHEFS_S3_BACKEND_REGION"},
		},
		&cli.BoolFlag{
			Name:        "s3_backend.disable_ssl",
			Usage:       "Whether to disable TLS/SSL when using the S3 backend adapter.",
			DefaultText: "false, ie enable TLS/SSL",
			EnvVars:     []string{"CACHEFS_S3_BACKEND_DISABLE_SSL"},
		},
		&cli.StringFlag{
			Name:    "s3_backend.iam_role_endpoint",
			Value:   "",
			Usage:   "Endpoint for using IAM security credentials, instead of static access keys.",
			EnvVars: []string{"CACHEFS_S3_BACKEND_IAM_ROLE_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "status_address",
			Value:   "127.0.0.1:8085",
			Usage:   "Address the debug status HTTP server (/metrics, /status) listens on.",
			EnvVars: []string{"CACHEFS_STATUS_ADDRESS"},
		},
		&cli.StringFlag{
			Name:    "htpasswd_file",
			Value:   "",
			Usage:   "Path to a .htpasswd file protecting the debug status server. Optional.",
			EnvVars: []string{"CACHEFS_HTPASSWD_FILE"},
		},
		&cli.StringFlag{
			Name:        "access_log_level",
			Usage:       "The access logger verbosity level. If supplied, must be one of \"none\" or \"all\".",
			Value:       "all",
			DefaultText: "all, ie enable full access logging",
			EnvVars:     []string{"CACHEFS_ACCESS_LOG_LEVEL"},
		},
	}
}
