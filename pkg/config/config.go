package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Referral     ReferralConfig
	Tax          TaxConfig
	Compensation CompensationConfig
	Payouts      PayoutsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Referral.validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Compensation.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FARMLINK_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"FARMLINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FARMLINK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FARMLINK_SERVICE_KIND" default:"cron-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"FARMLINK_DB_DSN"`
	Driver string `envconfig:"FARMLINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FARMLINK_DB_HOST"`
	LegacyPort     int    `envconfig:"FARMLINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FARMLINK_DB_USER"`
	LegacyPassword string `envconfig:"FARMLINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"FARMLINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"FARMLINK_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"FARMLINK_SQLITE_PATH" default:"farmlink.db"`

	MaxOpenConns    int           `envconfig:"FARMLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FARMLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FARMLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FARMLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FARMLINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FARMLINK_REDIS_ADDR"`
	Password     string        `envconfig:"FARMLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"FARMLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FARMLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FARMLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FARMLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FARMLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FARMLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FARMLINK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FARMLINK_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey   string `envconfig:"FARMLINK_STRIPE_API_KEY"`
	Env      string `envconfig:"FARMLINK_STRIPE_ENV" default:"test"`
	Currency string `envconfig:"FARMLINK_STRIPE_CURRENCY" default:"cad"`
	Country  string `envconfig:"FARMLINK_STRIPE_CONNECT_COUNTRY" default:"CA"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// ReferralConfig holds the per-referral grants and lifetime caps.
type ReferralConfig struct {
	FreeDeliveriesPerReferral int             `envconfig:"FARMLINK_REFERRAL_FREE_DELIVERIES" default:"3"`
	MaxLifetimeFreeDeliveries int             `envconfig:"FARMLINK_REFERRAL_MAX_FREE_DELIVERIES" default:"30"`
	CashbackPerFarmerReferral decimal.Decimal `envconfig:"FARMLINK_REFERRAL_FARMER_CASHBACK" default:"50.00"`
	MaxLifetimeCashback       decimal.Decimal `envconfig:"FARMLINK_REFERRAL_MAX_CASHBACK" default:"500.00"`
}

func (r ReferralConfig) validate() error {
	if r.FreeDeliveriesPerReferral < 0 || r.MaxLifetimeFreeDeliveries < 0 {
		return fmt.Errorf("referral free delivery settings must not be negative")
	}
	if r.CashbackPerFarmerReferral.IsNegative() || r.MaxLifetimeCashback.IsNegative() {
		return fmt.Errorf("referral cashback settings must not be negative")
	}
	return nil
}

type TaxConfig struct {
	DefaultJurisdiction string `envconfig:"FARMLINK_TAX_DEFAULT_JURISDICTION" default:"BC"`
}

type CompensationConfig struct {
	Timezone string   `envconfig:"FARMLINK_COMPENSATION_TIMEZONE" default:"America/Vancouver"`
	Holidays []string `envconfig:"FARMLINK_COMPENSATION_HOLIDAYS"`
}

// Location resolves the timezone used to classify weekend and after-hours work.
func (c CompensationConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading compensation timezone %q: %w", name, err)
	}
	return loc, nil
}

// HolidayDates parses the configured YYYY-MM-DD holiday list.
func (c CompensationConfig) HolidayDates() ([]time.Time, error) {
	dates := make([]time.Time, 0, len(c.Holidays))
	for _, raw := range c.Holidays {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		day, err := time.Parse(time.DateOnly, trimmed)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", trimmed, err)
		}
		dates = append(dates, day)
	}
	return dates, nil
}

// PayoutsConfig schedules the payout jobs. Schedules are standard five-field
// cron specs evaluated in the compensation timezone.
type PayoutsConfig struct {
	FarmerSchedule   string        `envconfig:"FARMLINK_PAYOUTS_FARMER_SCHEDULE" default:"0 6 * * MON"`
	EarningsSchedule string        `envconfig:"FARMLINK_PAYOUTS_EARNINGS_SCHEDULE" default:"0 4 * * MON"`
	AutoSubmit       bool          `envconfig:"FARMLINK_PAYOUTS_AUTO_SUBMIT" default:"false"`
	LockTTL          time.Duration `envconfig:"FARMLINK_PAYOUTS_LOCK_TTL" default:"2h"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
