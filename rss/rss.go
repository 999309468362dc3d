// Package rss renders the aggregated records as an RSS 2.0 document.
package rss

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quay/vulnfeed"
)

// Channel metadata defaults, independent of the item list.
const (
	DefaultTitle       = `Zero-Day Intelligence Feed`
	DefaultDescription = `Real-time zero-day and critical vulnerability intelligence from CISA KEV, NVD, and GitHub Security Advisories with EPSS exploitation probability scoring`
	DefaultGenerator   = `ZeroDay Intelligence RSS Feed v2.0`
	DefaultContact     = `security@example.com (Security Team)`
	DefaultTTL         = 30
)

var defaultCategories = []string{"Security", "Vulnerabilities", "Zero-Day", "Threat Intelligence"}

// Feed holds the channel-level metadata for rendered documents.
type Feed struct {
	Title          string
	Description    string
	BaseURL        string
	Generator      string
	WebMaster      string
	ManagingEditor string
	TTL            int
	Categories     []string
}

// New returns a Feed with the default channel metadata, rooted at the
// provided base URL.
func New(baseURL string) *Feed {
	return &Feed{
		Title:          DefaultTitle,
		Description:    DefaultDescription,
		BaseURL:        strings.TrimSuffix(baseURL, "/"),
		Generator:      DefaultGenerator,
		WebMaster:      DefaultContact,
		ManagingEditor: DefaultContact,
		TTL:            DefaultTTL,
		Categories:     defaultCategories,
	}
}

// cdata wraps free text in a CDATA section. A literal "]]>" in the
// text is split across two sections so the document stays well-formed.
func cdata(s string) string {
	return "<![CDATA[" + strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>") + "]]>"
}

// escape entity-escapes text destined for a non-CDATA slot.
func escape(s string) string {
	var b strings.Builder
	// Builder writes never fail.
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// Render produces the feed document for the provided records. The
// document is well-formed for any input, including none.
func (f *Feed) Render(now time.Time, vulns []vulnfeed.Vulnerability) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<rss version=\"2.0\" xmlns:atom=\"http://www.w3.org/2005/Atom\" xmlns:dc=\"http://purl.org/dc/elements/1.1/\">\n")
	b.WriteString("  <channel>\n")
	fmt.Fprintf(&b, "    <title>%s</title>\n", escape(f.Title))
	fmt.Fprintf(&b, "    <description>%s</description>\n", escape(f.Description))
	fmt.Fprintf(&b, "    <link>%s</link>\n", escape(f.BaseURL))
	fmt.Fprintf(&b, "    <atom:link href=\"%s/rss\" rel=\"self\" type=\"application/rss+xml\" />\n", escape(f.BaseURL))
	b.WriteString("    <language>en-us</language>\n")
	fmt.Fprintf(&b, "    <lastBuildDate>%s</lastBuildDate>\n", now.UTC().Format(http.TimeFormat))
	fmt.Fprintf(&b, "    <pubDate>%s</pubDate>\n", now.UTC().Format(http.TimeFormat))
	fmt.Fprintf(&b, "    <ttl>%d</ttl>\n", f.TTL)
	fmt.Fprintf(&b, "    <generator>%s</generator>\n", escape(f.Generator))
	fmt.Fprintf(&b, "    <webMaster>%s</webMaster>\n", escape(f.WebMaster))
	fmt.Fprintf(&b, "    <managingEditor>%s</managingEditor>\n", escape(f.ManagingEditor))
	for _, c := range f.Categories {
		fmt.Fprintf(&b, "    <category>%s</category>\n", escape(c))
	}
	b.WriteString("    <image>\n")
	fmt.Fprintf(&b, "      <url>%s/security-icon.png</url>\n", escape(f.BaseURL))
	fmt.Fprintf(&b, "      <title>%s</title>\n", escape(f.Title))
	fmt.Fprintf(&b, "      <link>%s</link>\n", escape(f.BaseURL))
	b.WriteString("      <width>144</width>\n")
	b.WriteString("      <height>144</height>\n")
	b.WriteString("    </image>\n")
	for i := range vulns {
		writeItem(&b, &vulns[i])
	}
	b.WriteString("  </channel>\n")
	b.WriteString("</rss>\n")
	return b.String()
}

func writeItem(b *strings.Builder, v *vulnfeed.Vulnerability) {
	b.WriteString("    <item>\n")
	fmt.Fprintf(b, "      <title>%s</title>\n", cdata(v.Title))
	fmt.Fprintf(b, "      <description>%s</description>\n", cdata(itemBody(v)))
	fmt.Fprintf(b, "      <link>%s</link>\n", escape(v.Link))
	fmt.Fprintf(b, "      <guid isPermaLink=\"false\">%s</guid>\n", escape(v.ID))
	fmt.Fprintf(b, "      <pubDate>%s</pubDate>\n", v.Published.UTC().Format(http.TimeFormat))
	fmt.Fprintf(b, "      <category>%s</category>\n", v.Severity)
	if v.ExploitAvailable {
		b.WriteString("      <category>Actively Exploited</category>\n")
	}
	if v.CVE != "" {
		fmt.Fprintf(b, "      <category>%s</category>\n", escape(v.CVE))
	}
	fmt.Fprintf(b, "      <source url=\"%s\">%s</source>\n", escape(v.Link), escape(v.Source))
	b.WriteString("    </item>\n")
}

// itemBody builds the HTML fragment carried inside the description
// CDATA section.
func itemBody(v *vulnfeed.Vulnerability) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p><strong>Severity:</strong> %s</p>", v.Severity)
	fmt.Fprintf(&b, "<p><strong>Source:</strong> %s</p>", v.Source)
	if v.CVSSScore != nil {
		fmt.Fprintf(&b, "<p><strong>CVSS Score:</strong> %s</p>", strconv.FormatFloat(*v.CVSSScore, 'f', -1, 64))
	}
	if v.EPSSScore != nil {
		fmt.Fprintf(&b, "<p><strong>EPSS Score:</strong> %.1f%% (probability of exploitation)</p>", *v.EPSSScore*100)
	}
	if v.ExploitAvailable {
		b.WriteString("<p><strong>⚠️ ACTIVELY EXPLOITED:</strong> This vulnerability is being actively exploited in the wild</p>")
	}
	b.WriteString("<p><strong>Description:</strong></p>")
	fmt.Fprintf(&b, "<p>%s</p>", v.Description)
	fmt.Fprintf(&b, `<p><a href="%s" target="_blank">View Full Details</a></p>`, v.Link)
	return b.String()
}

// ErrorFeed is the minimal static document served when feed generation
// fails. It must always render, so it takes no inputs that can fail.
func (f *Feed) ErrorFeed(now time.Time) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString("<rss version=\"2.0\">\n")
	b.WriteString("  <channel>\n")
	fmt.Fprintf(&b, "    <title>%s - Error</title>\n", escape(f.Title))
	b.WriteString("    <description>Error occurred while fetching vulnerability data</description>\n")
	fmt.Fprintf(&b, "    <link>%s</link>\n", escape(f.BaseURL))
	b.WriteString("    <item>\n")
	b.WriteString("      <title>RSS Feed Error</title>\n")
	b.WriteString("      <description>Unable to fetch vulnerability data at this time. Please try again later.</description>\n")
	fmt.Fprintf(&b, "      <pubDate>%s</pubDate>\n", now.UTC().Format(http.TimeFormat))
	b.WriteString("    </item>\n")
	b.WriteString("  </channel>\n")
	b.WriteString("</rss>\n")
	return b.String()
}
