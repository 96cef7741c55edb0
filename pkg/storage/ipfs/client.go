package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/perkmint/perkmint-backend/pkg/config"
	"github.com/perkmint/perkmint-backend/pkg/logger"
)

const uriScheme = "ipfs://"

var errAPIURLRequired = errors.New("ipfs api url is required")

// Client pins voucher metadata documents to IPFS. The returned
// content-addressed URI is a mint precondition: no document, no mint.
type Client struct {
	sh *shell.Shell
}

// VoucherMetadata is the document pinned for one voucher before minting.
// Decimals travel as strings so the document is stable across readers.
type VoucherMetadata struct {
	MerchantRef     string     `json:"merchant_ref"`
	DiscountType    string     `json:"discount_type"`
	DiscountValue   string     `json:"discount_value"`
	MinimumPurchase string     `json:"minimum_purchase"`
	MaxQuantity     int        `json:"max_quantity"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	IssuedAt        time.Time  `json:"issued_at"`
}

// NewClient builds a shell against the configured IPFS API endpoint. The
// add timeout bounds every request through the underlying HTTP client.
func NewClient(ctx context.Context, cfg config.IPFSConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, errAPIURLRequired
	}

	httpClient := &http.Client{Timeout: cfg.AddTimeout}
	c := &Client{sh: shell.NewShellWithClient(cfg.APIURL, httpClient)}

	if logg != nil {
		logg.Info(ctx, "ipfs client initialized")
	}

	return c, nil
}

// AddVoucherMetadata pins the metadata document and returns its ipfs:// URI.
func (c *Client) AddVoucherMetadata(ctx context.Context, meta VoucherMetadata) (string, error) {
	if c == nil || c.sh == nil {
		return "", errors.New("ipfs client not initialized")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	doc, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshaling voucher metadata: %w", err)
	}

	cid, err := c.sh.Add(bytes.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("adding voucher metadata: %w", err)
	}

	return uriScheme + cid, nil
}

// Ping verifies the IPFS node answers.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.sh == nil {
		return errors.New("ipfs client not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := c.sh.Version(); err != nil {
		return fmt.Errorf("pinging ipfs node: %w", err)
	}
	return nil
}

// CID extracts the bare content id from an ipfs:// URI.
func CID(uri string) string {
	return strings.TrimPrefix(uri, uriScheme)
}
