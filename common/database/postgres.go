package database

import (
	"fmt"
	"net/url"
)

// PostgresURL builds a postgres:// connection string usable by both pgx and
// golang-migrate. Credentials are escaped.
func PostgresURL(host string, port int, dbName, user, password, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     fmt.Sprintf("%s:%d", host, port),
		Path:     "/" + dbName,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}
