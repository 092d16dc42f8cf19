package internal

import (
	"fmt"
	"io"
	"livechat/storage"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInspectHandler_Renders_Entries(t *testing.T) {
	req := require.New(t)

	// Given a lister returning one message and one broken value
	var askedPrefix string
	list := func(prefix string, limit int) ([]storage.Entry, error) {
		askedPrefix = prefix
		return []storage.Entry{
			{
				Path:  "messages",
				Key:   "0000001714564800000-abc",
				At:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
				Value: map[string]any{"text": "hello", "author": "Alice"},
			},
			{Path: "messages", Key: "broken", Err: fmt.Errorf("bad cbor")},
		}, nil
	}
	stats := func() map[string]any { return map[string]any{"peers": 2} }
	server := httptest.NewServer(NewInspectHandler(list, stats, "messages/"))
	defer server.Close()

	// When the page is requested without prefix
	resp, err := server.Client().Get(server.URL)
	req.NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	req.NoError(err)

	// Then the default prefix is scanned and every row is rendered
	req.Equal("messages/", askedPrefix)
	page := string(body)
	req.Contains(page, "author=Alice text=hello")
	req.Contains(page, "2024-05-01 12:00:00.000")
	req.Contains(page, "undecodable: bad cbor")
	req.Contains(page, "peers: 2")
}

func TestCharacterRune(t *testing.T) {
	req := require.New(t)

	r, err := CharacterRune("*")
	req.NoError(err)
	req.Equal('*', r)

	_, err = CharacterRune("**")
	req.Error(err)
}
