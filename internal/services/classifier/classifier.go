package classifier

import (
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mssola/useragent"
)

// Verdict cache sizing; crawlers repeat the same handful of agents
const (
	cacheSize = 4096
	cacheTTL  = time.Hour
)

// DefaultPatterns are the crawler signatures used when none are configured
var DefaultPatterns = []string{
	"slurp",
	"googlebot",
	"yandex",
	"msnbot",
	"baiduspider",
}

// Classifier decides whether a request may receive a lazy user.
// Its patterns are fixed once constructed and it is safe for concurrent use.
type Classifier struct {
	patterns []string
	compiled []*regexp.Regexp
	verdicts *expirable.LRU[string, bool]
}

// Agent describes a user agent
type Agent struct {
	Blacklisted bool
	// Bot is the parser's own crawler detection, independent of the patterns
	Bot     bool
	Mobile  bool
	Browser string
	Version string
	OS      string
}

// New compiles each pattern as a case-insensitive regular expression.
// An empty pattern list falls back to DefaultPatterns; a non-empty list
// replaces them.
func New(patterns []string) (*Classifier, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	c := &Classifier{
		patterns: slices.Clone(patterns),
		compiled: make([]*regexp.Regexp, 0, len(patterns)),
		verdicts: expirable.NewLRU[string, bool](cacheSize, nil, cacheTTL),
	}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid blacklist pattern %q: %w", p, err)
		}
		c.compiled = append(c.compiled, re)
	}
	return c, nil
}

// NewDefault returns a Classifier using DefaultPatterns
func NewDefault() *Classifier {
	c, err := New(nil)
	if err != nil {
		panic(err) // DefaultPatterns are literals
	}
	return c
}

// IsBlacklisted reports whether userAgent matches any pattern.
// A missing user agent is never blacklisted.
func (c *Classifier) IsBlacklisted(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	if v, ok := c.verdicts.Get(userAgent); ok {
		return v
	}
	v := c.match(userAgent)
	c.verdicts.Add(userAgent, v)
	return v
}

func (c *Classifier) match(userAgent string) bool {
	for _, re := range c.compiled {
		if re.MatchString(userAgent) {
			return true
		}
	}
	return false
}

// Describe parses userAgent alongside the blacklist verdict
func (c *Classifier) Describe(userAgent string) Agent {
	ua := useragent.New(userAgent)
	name, version := ua.Browser()
	return Agent{
		Blacklisted: c.IsBlacklisted(userAgent),
		Bot:         ua.Bot(),
		Mobile:      ua.Mobile(),
		Browser:     name,
		Version:     version,
		OS:          ua.OS(),
	}
}

// FromRequest classifies the request's User-Agent header
func (c *Classifier) FromRequest(r *http.Request) bool {
	return c.IsBlacklisted(r.UserAgent())
}

// Patterns returns the source patterns
func (c *Classifier) Patterns() []string {
	return slices.Clone(c.patterns)
}
