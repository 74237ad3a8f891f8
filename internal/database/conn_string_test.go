package database

import (
	"strings"
	"testing"
)

func TestConnString(t *testing.T) {
	cfg := Config{
		Host:     "db.example.com",
		Port:     5432,
		Name:     "factionsim",
		User:     "sim",
		Password: "p@ss/word",
		SSLMode:  "require",
	}

	got := ConnString(cfg)

	if !strings.HasPrefix(got, "postgres://") {
		t.Errorf("missing scheme: %s", got)
	}
	if !strings.Contains(got, "db.example.com:5432") {
		t.Errorf("missing host: %s", got)
	}
	if !strings.Contains(got, "/factionsim") {
		t.Errorf("missing database name: %s", got)
	}
	if !strings.Contains(got, "sslmode=require") {
		t.Errorf("missing sslmode: %s", got)
	}
	// Special characters in the password must be escaped.
	if strings.Contains(got, "p@ss/word") {
		t.Errorf("password not escaped: %s", got)
	}
}

func TestConnString_NoCredentials(t *testing.T) {
	got := ConnString(Config{Host: "localhost", Port: 5432, Name: "sim"})
	if strings.Contains(got, "@localhost") && strings.Contains(got, "//@") == false {
		// url.URL omits the userinfo section entirely when User is nil.
		t.Errorf("unexpected credentials in %s", got)
	}
}
