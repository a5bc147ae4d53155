package gmailclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/jakechorley/shelter-shifts/pkg/utils"
)

// Client wraps the Gmail API client
type Client struct {
	service      *gmail.Service
	sender       string
	lastSendTime time.Time
	sendMutex    sync.Mutex
}

// NewClient creates a Gmail client that sends as sender.
// The service account must have domain-wide delegation for the sender's mailbox.
func NewClient(ctx context.Context, credentialsFile, sender string) (*Client, error) {
	httpClient, err := utils.GoogleHTTPClient(ctx, credentialsFile, sender, utils.ScopeGmailSend)
	if err != nil {
		return nil, err
	}

	service, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &Client{service: service, sender: sender}, nil
}
