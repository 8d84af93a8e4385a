package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultMinikitURL is the wallet notification endpoint.
const DefaultMinikitURL = "https://developer.worldcoin.org/api/v2/minikit/send-notification"

// MinikitNotifier pushes a wallet notification to each participant.
type MinikitNotifier struct {
	URL     string
	APIKey  string
	AppID   string
	AppPath string
	Client  *http.Client
}

// NewMinikitNotifier returns a notifier for app id, authenticated by apiKey.
func NewMinikitNotifier(apiKey, appID, url string) (*MinikitNotifier, error) {
	if apiKey == "" || appID == "" {
		return nil, ErrNotConfigured
	}
	if url == "" {
		url = DefaultMinikitURL
	}
	return &MinikitNotifier{
		URL:     url,
		APIKey:  apiKey,
		AppID:   appID,
		AppPath: "/play/eye-fighter",
		Client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type minikitRequest struct {
	AppID           string   `json:"app_id"`
	WalletAddresses []string `json:"wallet_addresses"`
	Title           string   `json:"title"`
	Message         string   `json:"message"`
	MiniAppPath     string   `json:"mini_app_path"`
}

// notificationText returns the title and message for result.
func notificationText(result string, elapsed float64) (string, string) {
	switch result {
	case "win":
		return "You Won!", fmt.Sprintf("You stared down your opponent for %.1fs and won!", elapsed)
	case "lose":
		return "You Blinked!", fmt.Sprintf("You blinked at %.1fs. Try again!", elapsed)
	}
	return "Draw!", fmt.Sprintf("Both held for %.1fs. Your stake has been returned.", elapsed)
}

func (m *MinikitNotifier) Notify(ctx context.Context, o Outcome) error {
	var firstErr error
	for _, p := range o.Players {
		title, message := notificationText(o.Result(p.Slot), o.Elapsed)
		err := m.send(ctx, minikitRequest{
			AppID:           m.AppID,
			WalletAddresses: []string{p.Wallet},
			Title:           title,
			Message:         message,
			MiniAppPath:     m.AppPath,
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MinikitNotifier) send(ctx context.Context, body minikitRequest) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("send notification: unexpected status %d", resp.StatusCode)
	}
	return nil
}
