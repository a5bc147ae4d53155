package utils

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2/google"
)

// OAuth scopes for Google APIs
const (
	ScopeSheets    = "https://www.googleapis.com/auth/spreadsheets"
	ScopeGmailSend = "https://www.googleapis.com/auth/gmail.send"
)

// GoogleHTTPClient builds an authorised client from a service account key file.
// subject is the mailbox to impersonate (domain-wide delegation); empty for none.
func GoogleHTTPClient(ctx context.Context, credentialsFile, subject string, scopes ...string) (*http.Client, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("no google credentials file configured")
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read google credentials: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse google credentials: %w", err)
	}
	jwtConfig.Subject = subject

	return jwtConfig.Client(ctx), nil
}
