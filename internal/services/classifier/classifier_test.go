package classifier

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBlacklist(t *testing.T) {
	c := NewDefault()

	tests := []struct {
		name      string
		userAgent string
		want      bool
	}{
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", true},
		{"yahoo slurp", "Mozilla/5.0 (compatible; Yahoo! Slurp; http://help.yahoo.com/help/us/ysearch/slurp)", true},
		{"yandex", "Mozilla/5.0 (compatible; YandexBot/3.0)", true},
		{"msnbot", "msnbot/2.0b (+http://search.msn.com/msnbot.htm)", true},
		{"baidu", "Mozilla/5.0 (compatible; Baiduspider/2.0)", true},
		{"desktop browser", "Mozilla/5.0 (Windows NT 10.0)", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsBlacklisted(tt.userAgent))
		})
	}
}

func TestCustomPatternsReplaceDefaults(t *testing.T) {
	c, err := New([]string{"evilbot"})
	require.NoError(t, err)

	assert.True(t, c.IsBlacklisted("myEvilBot/1.0"))
	assert.False(t, c.IsBlacklisted("Googlebot/2.1"))
	assert.Equal(t, []string{"evilbot"}, c.Patterns())
}

func TestPatternsAreRegularExpressions(t *testing.T) {
	c, err := New([]string{`^curl/\d+`})
	require.NoError(t, err)

	assert.True(t, c.IsBlacklisted("curl/8.4.0"))
	assert.False(t, c.IsBlacklisted("not curl/8.4.0"))
}

func TestInvalidPatternFails(t *testing.T) {
	_, err := New([]string{"("})
	assert.ErrorContains(t, err, "invalid blacklist pattern")
}

func TestEmptyPatternsUseDefaults(t *testing.T) {
	c, err := New([]string{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPatterns, c.Patterns())
}

func TestPatternsReturnsCopy(t *testing.T) {
	c := NewDefault()
	p := c.Patterns()
	p[0] = "changed"

	assert.Equal(t, "slurp", c.Patterns()[0])
}

func TestFromRequest(t *testing.T) {
	c := NewDefault()

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("User-Agent", "Googlebot/2.1")
	assert.True(t, c.FromRequest(r))

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Del("User-Agent")
	assert.False(t, c.FromRequest(r))
}

func TestRepeatedLookupsAgree(t *testing.T) {
	c := NewDefault()
	ua := "Mozilla/5.0 (compatible; YandexBot/3.0)"

	for range 3 {
		assert.True(t, c.IsBlacklisted(ua))
		assert.False(t, c.IsBlacklisted("Mozilla/5.0 (Windows NT 10.0)"))
	}
}

func TestDescribe(t *testing.T) {
	c := NewDefault()

	browser := c.Describe("Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
	assert.False(t, browser.Blacklisted)
	assert.False(t, browser.Bot)
	assert.False(t, browser.Mobile)
	assert.Equal(t, "Firefox", browser.Browser)
	assert.Equal(t, "121.0", browser.Version)
	assert.Contains(t, browser.OS, "Linux")

	crawler := c.Describe("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	assert.True(t, crawler.Blacklisted)
	assert.True(t, crawler.Bot)
}

func TestDescribeDetectsBotsOutsideBlacklist(t *testing.T) {
	c, err := New([]string{"evilbot"})
	require.NoError(t, err)

	agent := c.Describe("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	assert.False(t, agent.Blacklisted)
	assert.True(t, agent.Bot)
}
