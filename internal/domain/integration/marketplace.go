package integration

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ---------------------------------------------------------------------------
// Marketplace
// ---------------------------------------------------------------------------

// Marketplace identifies an external commerce platform. Marketplaces are not a
// closed set: any identifier present in the marketplace configuration map is valid.
type Marketplace string

// Well-known marketplaces shipped with default adapters.
const (
	MarketplaceTaobao  Marketplace = "taobao"
	MarketplaceDouyin  Marketplace = "douyin"
	MarketplaceShopify Marketplace = "shopify"
	MarketplaceAmazon  Marketplace = "amazon"
)

var marketplacePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// ParseMarketplace normalizes and validates a marketplace identifier
func ParseMarketplace(s string) (Marketplace, error) {
	m := Marketplace(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", ErrInvalidMarketplace
	}
	return m, nil
}

// IsValid returns true if the identifier is a well-formed slug
func (m Marketplace) IsValid() bool {
	return marketplacePattern.MatchString(string(m))
}

// String returns the string representation of Marketplace
func (m Marketplace) String() string {
	return string(m)
}

// DisplayName returns a human-readable name for the marketplace
func (m Marketplace) DisplayName() string {
	switch m {
	case MarketplaceTaobao:
		return "Taobao/Tmall"
	case MarketplaceDouyin:
		return "Douyin Shop"
	default:
		words := strings.NewReplacer("_", " ", "-", " ").Replace(string(m))
		return cases.Title(language.English).String(words)
	}
}

// ---------------------------------------------------------------------------
// AuthType
// ---------------------------------------------------------------------------

// AuthType is how a marketplace authenticates the tenant
type AuthType string

const (
	// AuthTypeOAuth uses the OAuth2 authorization-code grant
	AuthTypeOAuth AuthType = "oauth"
	// AuthTypeAPIKey uses static key material supplied by the tenant
	AuthTypeAPIKey AuthType = "apikey"
)

// IsValid returns true if the auth type is supported
func (a AuthType) IsValid() bool {
	return a == AuthTypeOAuth || a == AuthTypeAPIKey
}

// String returns the string representation of AuthType
func (a AuthType) String() string {
	return string(a)
}
