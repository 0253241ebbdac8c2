// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package migrate

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const cosmosApiVersion = "2018-12-31"

// CosmosClient talks to the Cosmos DB SQL data plane with master key
// authentication. The Azure CLI has no document level commands, so the
// wizard signs its own requests.
type CosmosClient struct {
	endpoint string
	key      []byte
	http     *http.Client
}

// NewCosmosClient parses an AccountEndpoint/AccountKey connection string.
func NewCosmosClient(connectionString string) (*CosmosClient, error) {
	var endpoint, rawKey string
	for _, part := range strings.Split(connectionString, ";") {
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch name {
		case "AccountEndpoint":
			endpoint = value
		case "AccountKey":
			rawKey = value
		}
	}

	if endpoint == "" || rawKey == "" {
		return nil, fmt.Errorf("connection string is missing AccountEndpoint or AccountKey")
	}

	key, err := base64.StdEncoding.DecodeString(rawKey)
	if err != nil {
		return nil, fmt.Errorf("account key is not valid base64: %w", err)
	}

	return &CosmosClient{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		key:      key,
		http:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Record is one document or blob payload in transit.
type Record map[string]any

// Id returns the record's identifier, empty when absent.
func (r Record) Id() string {
	id, _ := r["id"].(string)
	return id
}

// ListDocuments reads every document of the container, following
// continuation tokens.
func (c *CosmosClient) ListDocuments(ctx context.Context, database string, container string) ([]Record, error) {
	link := fmt.Sprintf("dbs/%s/colls/%s", database, container)

	var documents []Record
	continuation := ""
	for {
		req, err := c.newRequest(ctx, http.MethodGet, "docs", link, link+"/docs", nil)
		if err != nil {
			return nil, err
		}
		if continuation != "" {
			req.Header.Set("x-ms-continuation", continuation)
		}

		res, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed listing documents in %s: %w", link, err)
		}

		body, err := io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			return nil, err
		}

		if res.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("listing documents in %s returned %s: %s", link, res.Status, body)
		}

		var page struct {
			Documents []Record `json:"Documents"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("could not unmarshal document page: %w", err)
		}
		documents = append(documents, page.Documents...)

		continuation = res.Header.Get("x-ms-continuation")
		if continuation == "" {
			return documents, nil
		}
	}
}

// UpsertDocument writes one document, replacing any existing one with the
// same id and partition key.
func (c *CosmosClient) UpsertDocument(
	ctx context.Context,
	database string,
	container string,
	partitionKey string,
	document Record,
) error {
	link := fmt.Sprintf("dbs/%s/colls/%s", database, container)

	payload, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("could not marshal document %s: %w", document.Id(), err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "docs", link, link+"/docs", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("x-ms-documentdb-is-upsert", "true")

	keyValue, err := json.Marshal([]any{document[partitionKey]})
	if err != nil {
		return err
	}
	req.Header.Set("x-ms-documentdb-partitionkey", string(keyValue))

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed upserting document %s: %w", document.Id(), err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("upserting document %s returned %s: %s", document.Id(), res.Status, body)
	}

	return nil
}

// CountDocuments returns the number of documents in the container.
func (c *CosmosClient) CountDocuments(ctx context.Context, database string, container string) (int, error) {
	documents, err := c.ListDocuments(ctx, database, container)
	if err != nil {
		return 0, err
	}

	return len(documents), nil
}

func (c *CosmosClient) newRequest(
	ctx context.Context,
	method string,
	resourceType string,
	resourceLink string,
	path string,
	body io.Reader,
) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+"/"+path, body)
	if err != nil {
		return nil, err
	}

	date := strings.ToLower(time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-version", cosmosApiVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.authToken(method, resourceType, resourceLink, date))

	return req, nil
}

// authToken builds the master key token the data plane expects: an HMAC over
// the lowercased verb, resource type, resource link and date.
func (c *CosmosClient) authToken(method string, resourceType string, resourceLink string, date string) string {
	stringToSign := strings.ToLower(method) + "\n" +
		resourceType + "\n" +
		resourceLink + "\n" +
		date + "\n" +
		"\n"

	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return url.QueryEscape("type=master&ver=1.0&sig=" + signature)
}
