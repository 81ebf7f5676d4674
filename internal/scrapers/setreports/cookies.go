package setreports

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"studentevals-backend/internal/assert"
	"studentevals-backend/internal/components/telemetry"
	"studentevals-backend/internal/config"

	"github.com/go-resty/resty/v2"
)

const report_cookies_fetch = "cookies.fetch"

type cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CookieService fetches a fresh session from the service that logs into the
// report site on our behalf.
type CookieService struct {
	http  *resty.Client
	token string
	file  string
	tel   telemetry.API
}

func NewCookieService(cfg config.Config, tel telemetry.API) CookieService {
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("cookie_service", tel)

	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimSuffix(cfg.CookieService.Url, "/"))
	httpClient.SetTimeout(time.Duration(cfg.RequestTimeoutSeconds) * time.Second)
	telemetry.InstrumentResty(httpClient, tel)

	return CookieService{
		http:  httpClient,
		token: cfg.CookieService.Token,
		file:  cfg.CookiesFile,
		tel:   tel,
	}
}

var ErrNoCookieService = errors.New("no cookie service configured")

// Refresh fetches new cookies and writes them to the cookies file as
// "name=value;" pairs.
func (s CookieService) Refresh(ctx context.Context) error {
	if s.http.BaseURL == "" {
		return ErrNoCookieService
	}

	var cookies []cookie
	res, err := s.http.R().
		SetContext(ctx).
		SetHeader("Authorization", s.token).
		SetResult(&cookies).
		ForceContentType("application/json").
		Post("/cookies")
	if err != nil {
		err = &FetchError{URL: s.http.BaseURL + "/cookies", Err: err}
		s.tel.ReportBroken(report_cookies_fetch, err)
		return err
	}
	err = checkStatus(res, s.http.BaseURL+"/cookies")
	if err != nil {
		s.tel.ReportBroken(report_cookies_fetch, err)
		return err
	}
	if len(cookies) == 0 {
		err = fmt.Errorf("cookie service returned no cookies")
		s.tel.ReportBroken(report_cookies_fetch, err)
		return err
	}

	err = os.WriteFile(s.file, []byte(formatCookies(cookies)), 0600)
	if err != nil {
		s.tel.ReportBroken(report_cookies_fetch, fmt.Errorf("write cookies file: %w", err))
		return err
	}
	s.tel.ReportDebug("refreshed cookies", len(cookies))
	return nil
}

func formatCookies(cookies []cookie) string {
	var b strings.Builder
	for _, c := range cookies {
		b.WriteString(c.Name)
		b.WriteString("=")
		b.WriteString(c.Value)
		b.WriteString(";")
	}
	return b.String()
}
