package telemetry

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

// HTTPSender posts batches to the ingest endpoint.
type HTTPSender struct {
	Client *http.Client
	URL    string
}

func NewHTTPSender(url string) *HTTPSender {
	return &HTTPSender{
		Client: &http.Client{Timeout: 10 * time.Second},
		URL:    url,
	}
}

func (s *HTTPSender) Send(payload []byte) error {
	resp, err := s.Client.Post(s.URL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ingest endpoint returned %s", resp.Status)
	}
	return nil
}
