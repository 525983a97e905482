package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Load reads the catalog from source, which is either a local file path or
// an http(s) URL. Remote sources are fetched once with timeout.
func Load(ctx context.Context, source string, timeout time.Duration, opts ...Option) (*Catalog, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("catalog source is empty")
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return loadRemote(ctx, source, timeout, opts...)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return NewFromReader(f, opts...)
}

func loadRemote(ctx context.Context, url string, timeout time.Duration, opts ...Option) (*Catalog, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().SetTimeout(timeout)

	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch catalog: unexpected status %d", resp.StatusCode())
	}

	var recs []record
	if err := json.Unmarshal(resp.Body(), &recs); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return fromRecords(recs, opts...)
}
