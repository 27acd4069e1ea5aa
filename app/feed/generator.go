package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/adwatch/adwatch/app/cfg"
	"github.com/adwatch/adwatch/app/database"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Run renders the recently seen ads as an RSS 2.0 document. The item
// guid is the stable ad id, so a reader keys items on the listing, not
// on a particular scrape.
func (g *Generator) Run(ads []database.Ad, serverBinding string) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	selfLink := fmt.Sprintf("http://%s/rss", serverBinding)

	g.writeElement(&buf, "title", "Marketplace Ad Feed", 4)
	g.writeElement(&buf, "link", selfLink, 4)
	g.writeElement(&buf, "description", "An RSS feed of newly seen marketplace ads", 4)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))
	g.writeElement(&buf, "lastBuildDate", time.Now().In(time.Local).Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("adwatch/%s", cfg.Get().Version), 4)

	for _, ad := range ads {
		g.writeItem(&buf, ad)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, ad database.Ad) {
	buf.WriteString("    <item>\n")

	buf.WriteString(`      <guid isPermaLink="false">`)
	xml.EscapeText(buf, []byte(ad.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", fmt.Sprintf("%s - %s", ad.Title, ad.Price), 6)
	g.writeElement(buf, "link", ad.URL, 6)
	g.writeElement(buf, "description", fmt.Sprintf("Price: %s | Title: %s", ad.Price, ad.Title), 6)
	g.writeElement(buf, "pubDate", ad.LastChecked.In(time.Local).Format(time.RFC1123Z), 6)

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, value string, indent int) {
	buf.WriteString(strings.Repeat(" ", indent))
	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(value))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
