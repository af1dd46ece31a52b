package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"` // sqlite|postgres
	DBDSN    string `env:"DB_DSN"`

	BlobBasePath string `env:"BLOB_BASE_PATH" envDefault:"./data"`

	AdminUser     string        `env:"ADMIN_USER" envDefault:"admin"`
	AdminPassHash string        `env:"ADMIN_PASS_HASH"` // bcrypt; empty skips seeding the admin account
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"12h"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:3010"`

	// external math renderer; empty MathCommand disables rendering
	MathCommand string        `env:"MATH_COMMAND" envDefault:"tex2svg"`
	MathTimeout time.Duration `env:"MATH_TIMEOUT" envDefault:"20s"`
	MathDir     string        `env:"MATH_DIR" envDefault:"./data/math"`

	StrictMarkup bool   `env:"STRICT_MARKUP" envDefault:"false"`
	MaxUpload    int64  `env:"MAX_UPLOAD_BYTES" envDefault:"33554432"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

func FromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
