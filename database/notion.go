package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jomei/notionapi"
)

// NotionClient wraps the Notion API client together with the database
// (collection) that holds one page per usability session.
type NotionClient struct {
	Client     *notionapi.Client
	DatabaseID notionapi.DatabaseID
}

// NewNotionDB validates the Notion credentials from the environment and
// verifies the configured database is reachable before the server
// starts taking traffic.
func NewNotionDB() (*NotionClient, error) {
	token := os.Getenv("NOTION_TOKEN")
	databaseID := os.Getenv("NOTION_DATABASE_ID")

	if token == "" || databaseID == "" {
		return nil, fmt.Errorf("NOTION_TOKEN or NOTION_DATABASE_ID environment variables are not set")
	}

	// Integration tokens are always issued with this prefix; anything
	// else is a pasted OAuth token or a typo.
	if !strings.HasPrefix(token, "secret_") {
		return nil, fmt.Errorf("NOTION_TOKEN must start with 'secret_' - check your integration token (got %s...)", token[:min(len(token), 10)])
	}

	client := notionapi.NewClient(notionapi.Token(token))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := client.Database.Get(ctx, notionapi.DatabaseID(databaseID))
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve Notion database %s: %w", databaseID, err)
	}

	title := "Untitled"
	if len(db.Title) > 0 && db.Title[0].PlainText != "" {
		title = db.Title[0].PlainText
	}
	log.Printf("Successfully connected to Notion database %q!", title)

	return &NotionClient{
		Client:     client,
		DatabaseID: notionapi.DatabaseID(databaseID),
	}, nil
}
