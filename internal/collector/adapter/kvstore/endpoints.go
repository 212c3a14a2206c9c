package kvstore

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	configTemplate = "%s/servicesNS/%s/%s/storage/collections/config"
	dataTemplate   = "%s/servicesNS/%s/%s/storage/collections/data"
	lookupTemplate = "%s/servicesNS/%s/%s/data/transforms/lookups"

	// wildcard replaces an empty app or owner in a URI.
	wildcard = "-"
)

func (c *Client) configEndpoint(app, owner, collection string) string {
	return buildEndpoint(configTemplate, c.host, app, owner, collection, "")
}

func (c *Client) dataEndpoint(app, owner, collection, key string) string {
	return buildEndpoint(dataTemplate, c.host, app, owner, collection, key)
}

func (c *Client) lookupEndpoint(app, owner, lookup string) string {
	return buildEndpoint(lookupTemplate, c.host, app, owner, lookup, "")
}

// buildEndpoint fills the template and appends the optional collection and
// key segments. The key is only appended when a collection is present.
func buildEndpoint(template, host, app, owner, collection, key string) string {
	if app == "" {
		app = wildcard
	}
	if owner == "" {
		owner = wildcard
	}
	uri := fmt.Sprintf(template, strings.TrimRight(host, "/"), url.PathEscape(owner), url.PathEscape(app))
	if collection != "" {
		uri += "/" + url.PathEscape(collection)
		if key != "" {
			uri += "/" + url.PathEscape(key)
		}
	}
	return uri
}
