package setreports

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"studentevals-backend/internal/assert"
	"studentevals-backend/internal/components/telemetry"
	"studentevals-backend/internal/config"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_new            = "client.new"
	report_client_reload_cookies = "client.reload-cookies"
	report_client_search_course  = "client.search-course"
	report_client_fetch_report   = "client.fetch-report"
	report_client_get_units      = "client.get-units"
	report_client_get_courses    = "client.get-courses"
	report_client_page_cache     = "client.page-cache"
)

const (
	searchPath  = "/Modules/Evals/SET/Reports/Search.aspx"
	summaryPath = "/Modules/Evals/SET/Reports/SETSummary.aspx"
	unitsPath   = searchPath + "/GetUnits"
	coursesPath = searchPath + "/GetCourses"
)

// Client talks to the evaluation report site. It is safe for concurrent use,
// the cookie header only changes through ReloadCookies.
type Client struct {
	http        *resty.Client
	baseUrl     *url.URL
	cookiesFile string
	cookie      *atomic.Pointer[string]

	retries       int
	retryInterval time.Duration

	parser Parser
	cache  *PageCache
	tel    telemetry.API
}

// NewClient creates a client from cfg, cache may be nil.
func NewClient(cfg config.Config, cache *PageCache, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	assert.NotEmptyStr(cfg.BaseUrl)

	tel = telemetry.NewScopedAPI("setreports", tel)

	baseUrl, err := url.Parse(cfg.BaseUrl)
	if err != nil {
		tel.ReportBroken(report_client_new, fmt.Errorf("parse base url: %w", err))
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimSuffix(cfg.BaseUrl, "/"))
	httpClient.SetTimeout(time.Duration(cfg.RequestTimeoutSeconds) * time.Second)
	if cfg.UserAgent != "" {
		httpClient.SetHeader("user-agent", cfg.UserAgent)
	}

	// the proxy must be set while the transport is still an *http.Transport
	if cfg.Proxy.Url != "" {
		proxyUrl, err := url.Parse(cfg.Proxy.Url)
		if err != nil {
			tel.ReportBroken(report_client_new, fmt.Errorf("parse proxy url: %w", err))
			return nil, err
		}
		if cfg.Proxy.Username != "" {
			proxyUrl.User = url.UserPassword(cfg.Proxy.Username, cfg.Proxy.Password)
		}
		httpClient.SetProxy(proxyUrl.String())
	}
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	httpClient.SetRedirectPolicy(authRedirectPolicy(baseUrl.Hostname()))

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	rateLimiter := rate.NewLimiter(limit, burst)

	c := &Client{
		http:          httpClient,
		baseUrl:       baseUrl,
		cookiesFile:   cfg.CookiesFile,
		cookie:        &atomic.Pointer[string]{},
		retries:       cfg.ReportRetries,
		retryInterval: 500 * time.Millisecond,
		parser:        NewParser(cfg.Layout),
		cache:         cache,
		tel:           tel,
	}
	empty := ""
	c.cookie.Store(&empty)

	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		cookie := *c.cookie.Load()
		if cookie != "" {
			req.SetHeader("Cookie", cookie)
		}
		return rateLimiter.Wait(req.Context())
	})
	telemetry.InstrumentResty(httpClient, tel)

	err = c.ReloadCookies()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return c, nil
}

// authRedirectPolicy fails redirects that leave the report site or land on a
// login page, that is how an expired session shows up.
func authRedirectPolicy(host string) resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		if req.URL.Hostname() != host {
			return fmt.Errorf("%w: redirected to %s", ErrAuthExpired, req.URL.Hostname())
		}
		if strings.Contains(strings.ToLower(req.URL.Path), "login") {
			return fmt.Errorf("%w: redirected to %s", ErrAuthExpired, req.URL.Path)
		}
		return nil
	})
}

// ReloadCookies reads the cookies file again. Callers must not reload while a
// batch is in flight.
func (c *Client) ReloadCookies() error {
	if c.cookiesFile == "" {
		return nil
	}
	contents, err := os.ReadFile(c.cookiesFile)
	if errors.Is(err, os.ErrNotExist) {
		c.tel.ReportWarning(report_client_reload_cookies, fmt.Errorf("cookies file %s does not exist", c.cookiesFile))
		return err
	}
	if err != nil {
		c.tel.ReportBroken(report_client_reload_cookies, err)
		return err
	}
	cookie := strings.TrimSpace(string(contents))
	c.cookie.Store(&cookie)
	return nil
}

func (c *Client) Parser() Parser {
	return c.parser
}

func (c *Client) requestUrl(res *resty.Response, fallback string) string {
	if res != nil && res.Request != nil && res.Request.URL != "" {
		return res.Request.URL
	}
	return fallback
}

// checkStatus turns a non 2xx response into a FetchError.
func checkStatus(res *resty.Response, reqUrl string) error {
	status := res.StatusCode()
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &FetchError{URL: reqUrl, Status: status, Err: ErrAuthExpired}
	case status < 200 || status >= 300:
		return &FetchError{URL: reqUrl, Status: status, Err: errors.New("unexpected status")}
	}
	return nil
}

// readPage parses an html response, a login form in place of the expected
// page means the session expired.
func readPage(body []byte, reqUrl string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		return nil, &FetchError{URL: reqUrl, Err: fmt.Errorf("read html: %w", err)}
	}
	if isLoginPage(doc) {
		return nil, &FetchError{URL: reqUrl, Err: ErrAuthExpired}
	}
	return doc, nil
}

func isLoginPage(doc *goquery.Document) bool {
	return doc.Find(`input[type="password"]`).Length() > 0
}
