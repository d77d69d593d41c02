package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

// WebRepository fetches a YAML document over HTTP(S).
type WebRepository struct {
	document
	Name   string       // Name of the configuration source
	URL    *url.URL     // Remote endpoint serving the document
	APIKey string       // Optional value for the X-API-Key header
	Client *http.Client // Defaults to http.DefaultClient
}

func (w *WebRepository) GetName() string {
	return w.Name
}

func (w *WebRepository) Refresh(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, w.URL.String(), nil)
	if err != nil {
		logrus.Debug("error creating request")
		return err
	}
	if w.APIKey != "" {
		request.Header.Set("X-API-Key", w.APIKey)
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(request)
	if err != nil {
		logrus.Debug("error doing request")
		return err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logrus.WithError(err).Debug("error closing response body")
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s from %s", w.Name, resp.Status, w.URL.Redacted())
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		logrus.Debug("error reading response")
		return err
	}
	return w.swap(w.Name, data)
}
