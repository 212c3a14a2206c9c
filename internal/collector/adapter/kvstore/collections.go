package kvstore

import (
	"encoding/xml"
	"fmt"
)

// atomFeed is the subset of the store's Atom listing we read. Tags carry no
// namespace so entries match with or without the Atom xmlns.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title string `xml:"title"`
}

// parseCollectionFeed returns the entry titles in feed order.
func parseCollectionFeed(content []byte) ([]string, error) {
	var feed atomFeed
	if err := xml.Unmarshal(content, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse collection listing: %w", err)
	}
	names := make([]string, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		names = append(names, e.Title)
	}
	return names, nil
}
