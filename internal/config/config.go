package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const DefaultBaseUrl = "https://academicaffairs.ucsd.edu"

type CookieService struct {
	Url   string `json:"url" validate:"omitempty,url"`
	Token string `json:"token"`
}

type Proxy struct {
	Url      string `json:"url" validate:"omitempty,url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Layout holds the question offsets of the report page variants. The values
// were found empirically on sample reports, they are not derived from anything
// on the page itself.
type Layout struct {
	LongHoursFirst      int `json:"long_hours_first" validate:"min=0"`
	LongHoursLast       int `json:"long_hours_last" validate:"gtefield=LongHoursFirst"`
	LongScalesStart     int `json:"long_scales_start" validate:"min=0"`
	ShortHoursIndex     int `json:"short_hours_index" validate:"min=0"`
	ShortMaterialsIndex int `json:"short_materials_index" validate:"min=0"`
	ShortScalesStart    int `json:"short_scales_start" validate:"min=0"`
}

type Schedule struct {
	Sids   string `json:"sids"`
	Evals  string `json:"evals"`
	Reauth string `json:"reauth"`
}

type Notify struct {
	SmtpHost string   `json:"smtp_host"`
	SmtpPort int      `json:"smtp_port" validate:"omitempty,min=1,max=65535"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	From     string   `json:"from" validate:"omitempty,email"`
	To       []string `json:"to" validate:"dive,email"`
}

type Config struct {
	BaseUrl               string        `json:"base_url" validate:"required,url"`
	Database              string        `json:"database" validate:"required"`
	CookiesFile           string        `json:"cookies_file" validate:"required"`
	CookieService         CookieService `json:"cookie_service"`
	Proxy                 Proxy         `json:"proxy"`
	UserAgent             string        `json:"user_agent"`
	RequestTimeoutSeconds int           `json:"request_timeout_seconds" validate:"min=1"`
	RequestsPerSecond     float64       `json:"requests_per_second" validate:"min=0"`
	CrawlConcurrency      int           `json:"crawl_concurrency" validate:"min=1,max=64"`
	IngestConcurrency     int           `json:"ingest_concurrency" validate:"min=1,max=64"`
	ReportRetries         int           `json:"report_retries" validate:"min=0,max=10"`
	PageCacheDir          string        `json:"page_cache_dir"`
	Layout                Layout        `json:"layout"`
	AutoReauth            bool          `json:"auto_reauth"`
	MaxReauthAttempts     int           `json:"max_reauth_attempts" validate:"min=0"`
	Schedule              Schedule      `json:"schedule"`
	Notify                Notify        `json:"notify"`
}

func Default() Config {
	return Config{
		BaseUrl:               DefaultBaseUrl,
		Database:              "evals.db",
		CookiesFile:           "cookies.txt",
		UserAgent:             "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.3",
		RequestTimeoutSeconds: 30,
		CrawlConcurrency:      20,
		IngestConcurrency:     4,
		ReportRetries:         3,
		MaxReauthAttempts:     3,
		Layout: Layout{
			LongHoursFirst:      14,
			LongHoursLast:       20,
			LongScalesStart:     0,
			ShortHoursIndex:     2,
			ShortMaterialsIndex: 1,
			ShortScalesStart:    4,
		},
		Schedule: Schedule{
			Sids:   "0 3 * * 0",
			Evals:  "0 4 * * *",
			Reauth: "30 2 * * *",
		},
	}
}

var envOverrides = map[string]func(c *Config, v string){
	"STUDENTEVALS_DATABASE":       func(c *Config, v string) { c.Database = v },
	"STUDENTEVALS_COOKIES_TOKEN":  func(c *Config, v string) { c.CookieService.Token = v },
	"STUDENTEVALS_PROXY_PASSWORD": func(c *Config, v string) { c.Proxy.Password = v },
	"STUDENTEVALS_SMTP_PASSWORD":  func(c *Config, v string) { c.Notify.Password = v },
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load decodes the config file at path (plus its .local override) over the
// defaults, applies environment overrides (including those in a .env file next
// to it) and validates the result.
func Load(path string) (Config, error) {
	out := Default()

	var err error
	if filepath.IsAbs(path) || filepath.Dir(path) != "." {
		err = ReadFileInto(path, &out)
	} else {
		err = ReadRecursivelyInto(path, &out)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	err = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	for key, apply := range envOverrides {
		value, ok := os.LookupEnv(key)
		if ok && value != "" {
			apply(&out, value)
		}
	}

	err = Validate(out)
	if err != nil {
		return Config{}, err
	}
	return out, nil
}

func Validate(c Config) error {
	err := validate.Struct(c)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
