// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package migrate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString([]byte("master-key-material"))
}

func connectionStringFor(endpoint string) string {
	return fmt.Sprintf("AccountEndpoint=%s;AccountKey=%s;", endpoint, testKey())
}

func Test_NewCosmosClient(t *testing.T) {
	client, err := NewCosmosClient(connectionStringFor("https://acct.documents.azure.com:443/"))
	require.NoError(t, err)
	require.Equal(t, "https://acct.documents.azure.com:443", client.endpoint)

	_, err = NewCosmosClient("AccountEndpoint=https://acct.documents.azure.com:443/")
	require.Error(t, err)

	_, err = NewCosmosClient("AccountEndpoint=https://x;AccountKey=!!!not-base64!!!")
	require.Error(t, err)
}

func Test_ListDocuments_FollowsContinuation(t *testing.T) {
	var requests []*http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Clone(context.Background()))

		if r.Header.Get("x-ms-continuation") == "" {
			w.Header().Set("x-ms-continuation", "page-2")
			fmt.Fprint(w, `{"Documents": [{"id": "a"}, {"id": "b"}]}`)
			return
		}

		fmt.Fprint(w, `{"Documents": [{"id": "c"}]}`)
	}))
	defer server.Close()

	client, err := NewCosmosClient(connectionStringFor(server.URL))
	require.NoError(t, err)

	documents, err := client.ListDocuments(context.Background(), "appdb", "profiles")
	require.NoError(t, err)
	require.Len(t, documents, 3)
	require.Equal(t, "c", documents[2].Id())

	require.Len(t, requests, 2)
	first := requests[0]
	require.Equal(t, "/dbs/appdb/colls/profiles/docs", first.URL.Path)
	require.NotEmpty(t, first.Header.Get("Authorization"))
	require.Contains(t, first.Header.Get("Authorization"), "type%3Dmaster")
	require.NotEmpty(t, first.Header.Get("x-ms-date"))
}

func Test_UpsertDocument(t *testing.T) {
	var captured *http.Request
	var body Record
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client, err := NewCosmosClient(connectionStringFor(server.URL))
	require.NoError(t, err)

	err = client.UpsertDocument(context.Background(), "appdb", "profiles", "id",
		Record{"id": "a", "name": "Avery"})
	require.NoError(t, err)

	require.Equal(t, http.MethodPost, captured.Method)
	require.Equal(t, "/dbs/appdb/colls/profiles/docs", captured.URL.Path)
	require.Equal(t, "true", captured.Header.Get("x-ms-documentdb-is-upsert"))
	require.JSONEq(t, `["a"]`, captured.Header.Get("x-ms-documentdb-partitionkey"))
	require.Equal(t, "Avery", body["name"])
}

func Test_UpsertDocument_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code": "Forbidden"}`, http.StatusForbidden)
	}))
	defer server.Close()

	client, err := NewCosmosClient(connectionStringFor(server.URL))
	require.NoError(t, err)

	err = client.UpsertDocument(context.Background(), "appdb", "profiles", "id", Record{"id": "a"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Forbidden")
}
