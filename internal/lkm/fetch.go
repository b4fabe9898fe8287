// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package lkm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ContentType is the kind of document expected from a Fetch request.
type ContentType string

const (
	// ContentTypeKeySet is a JSON Web Key Set with the issuer public keys.
	ContentTypeKeySet ContentType = "application/jwks"

	// ContentTypeToken is a signed license key.
	ContentTypeToken ContentType = "application/jwt"

	// ContentTypePublicKey is an Ed25519 public key in PEM format.
	ContentTypePublicKey ContentType = "application/x-pem-file"

	// ContentTypeRevocationSet is a RevocationKeySet JSON document.
	ContentTypeRevocationSet ContentType = "application/json"
)

// maxFetchSize limits the size of fetched documents.
const maxFetchSize = 1 << 20

type document struct {
	accept string
	check  func(body []byte) bool
}

func isJSON(body []byte) bool { return json.Valid(body) }

var documents = map[ContentType]document{
	ContentTypeKeySet: {
		accept: "application/json, application/jwks",
		check:  isJSON,
	},
	ContentTypeRevocationSet: {
		accept: "application/json",
		check:  isJSON,
	},
	ContentTypeToken: {
		accept: "application/jose, application/jwt",
		check: func(body []byte) bool {
			return bytes.Count(body, []byte(".")) == 2
		},
	},
	ContentTypePublicKey: {
		accept: "text/plain, application/x-pem-file",
		check: func(body []byte) bool {
			block, _ := pem.Decode(body)
			return block != nil && block.Type == pemTypePublicKey
		},
	},
}

type fetchOptions struct {
	retries            int
	retryWaitMin       time.Duration
	allowLocalhost     bool
	userAgent          string
	insecureSkipVerify bool
	contentType        ContentType
}

// FetchOption configures a Fetch operation.
type FetchOption func(*fetchOptions)

// FetchOpt contains options for the Fetch function.
var FetchOpt fetchOptionBuilder

type fetchOptionBuilder struct{}

// WithContentType sets the expected document type.
// The response body is rejected when it does not look like one.
func (fetchOptionBuilder) WithContentType(contentType ContentType) FetchOption {
	return func(opts *fetchOptions) {
		opts.contentType = contentType
	}
}

// WithRetries sets the number of retries and the minimum wait between them.
func (fetchOptionBuilder) WithRetries(retries int, waitMin time.Duration) FetchOption {
	return func(opts *fetchOptions) {
		opts.retries = retries
		opts.retryWaitMin = waitMin
	}
}

// WithLocalhost allows plain HTTP connections to localhost.
func (fetchOptionBuilder) WithLocalhost(allow bool) FetchOption {
	return func(opts *fetchOptions) {
		opts.allowLocalhost = allow
	}
}

func (fetchOptionBuilder) WithUserAgent(userAgent string) FetchOption {
	return func(opts *fetchOptions) {
		opts.userAgent = userAgent
	}
}

// WithInsecureSkipVerify skips TLS certificate verification.
func (fetchOptionBuilder) WithInsecureSkipVerify(skip bool) FetchOption {
	return func(opts *fetchOptions) {
		opts.insecureSkipVerify = skip
	}
}

func (o *fetchOptions) checkURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if strings.EqualFold(u.Scheme, "https") {
		return nil
	}
	switch strings.ToLower(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		if o.allowLocalhost {
			return nil
		}
	}
	return fmt.Errorf("refusing to fetch %s over %s, HTTPS is required", u.Redacted(), u.Scheme)
}

func (o *fetchOptions) client() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = o.retries
	c.RetryWaitMin = o.retryWaitMin
	c.RetryWaitMax = max(o.retryWaitMin, 5*time.Second)
	c.Logger = nil
	if o.insecureSkipVerify {
		c.HTTPClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return c
}

// Fetch downloads a public key, key set, license key or revocation set
// and returns the trimmed response body.
// Plain HTTP is only accepted for localhost.
func Fetch(ctx context.Context, rawURL string, opts ...FetchOption) ([]byte, error) {
	o := &fetchOptions{
		retries:        2,
		retryWaitMin:   2 * time.Second,
		userAgent:      "aegis-lkm/1.0",
		allowLocalhost: true,
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := o.checkURL(rawURL); err != nil {
		return nil, err
	}
	doc, typed := documents[o.contentType]

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", o.userAgent)
	if typed {
		req.Header.Set("Accept", doc.accept)
	}

	resp, err := o.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", rawURL, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response from %s", rawURL)
	}
	if typed && !doc.check(body) {
		return nil, fmt.Errorf("response from %s is not a valid %s document", rawURL, o.contentType)
	}

	return body, nil
}
