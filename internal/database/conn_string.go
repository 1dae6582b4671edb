package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/econcal/internal/config"
)

const defaultAppName = "econcal"

// BuildConnString renders cfg as a postgres:// URL. Credentials are
// percent-encoded; sslmode defaults to prefer.
func BuildConnString(cfg config.DBConfig) string {
	q := url.Values{}
	q.Set("sslmode", cfg.SSLMode)
	if cfg.SSLMode == "" {
		q.Set("sslmode", "prefer")
	}
	q.Set("application_name", cfg.AppName)
	if cfg.AppName == "" {
		q.Set("application_name", defaultAppName)
	}
	if secs := int(cfg.ConnectTimeout.Seconds()); secs > 0 {
		q.Set("connect_timeout", strconv.Itoa(secs))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
