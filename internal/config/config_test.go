package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t testing.TB, path, contents string) {
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		t.Fatal(err)
	}
}

func TestReadFileMergesLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{
		// comments are allowed
		base_url: "https://example.com",
		crawl_concurrency: 8,
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{crawl_concurrency: 4}`)

	cfg, err := ReadFile[Config](filepath.Join(dir, "config.json5"))
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "https://example.com", cfg.BaseUrl)
	require.Equal(t, 4, cfg.CrawlConcurrency)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile[Config](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	writeFile(t, path, `{database: "file.db", ingest_concurrency: 2}`)
	writeFile(t, filepath.Join(dir, ".env"), "STUDENTEVALS_COOKIES_TOKEN=secret\n")
	t.Setenv("STUDENTEVALS_COOKIES_TOKEN", "")
	os.Unsetenv("STUDENTEVALS_COOKIES_TOKEN")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "file.db", cfg.Database)
	require.Equal(t, 2, cfg.IngestConcurrency)
	require.Equal(t, 20, cfg.CrawlConcurrency)
	require.Equal(t, DefaultBaseUrl, cfg.BaseUrl)
	require.Equal(t, "secret", cfg.CookieService.Token)
	require.Equal(t, 14, cfg.Layout.LongHoursFirst)
}

func TestLoadZeroValuesOverrideDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	writeFile(t, path, `{
		report_retries: 0,
		max_reauth_attempts: 0,
		crawl_concurrency: 8,
		schedule: {sids: "", reauth: ""},
		layout: {short_scales_start: 0},
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{
		crawl_concurrency: 2,
		schedule: {evals: ""},
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 0, cfg.ReportRetries)
	require.Equal(t, 0, cfg.MaxReauthAttempts)
	require.Equal(t, 2, cfg.CrawlConcurrency)
	require.Equal(t, Schedule{}, cfg.Schedule)
	require.Equal(t, 0, cfg.Layout.ShortScalesStart)

	defaults := Default()
	require.Equal(t, defaults.Layout.ShortHoursIndex, cfg.Layout.ShortHoursIndex)
	require.Equal(t, defaults.Layout.LongHoursFirst, cfg.Layout.LongHoursFirst)
	require.Equal(t, defaults.IngestConcurrency, cfg.IngestConcurrency)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(c *Config)
		valid  bool
	}{
		{name: "defaults", modify: func(c *Config) {}, valid: true},
		{name: "bad base url", modify: func(c *Config) { c.BaseUrl = "not a url" }, valid: false},
		{name: "zero concurrency", modify: func(c *Config) { c.CrawlConcurrency = 0 }, valid: false},
		{name: "inverted offsets", modify: func(c *Config) { c.Layout.LongHoursLast = 1 }, valid: false},
		{name: "bad recipient", modify: func(c *Config) { c.Notify.To = []string{"nobody"} }, valid: false},
	}

	for _, test := range cases {
		cfg := Default()
		test.modify(&cfg)
		err := Validate(cfg)
		if test.valid {
			require.NoError(t, err, test.name)
		} else {
			require.Error(t, err, test.name)
		}
	}
}
