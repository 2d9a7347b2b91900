package imageprovider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/k3a/html2text"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

const (
	wikiProviderName = "wikimedia"

	// WikipediaAPIURL is the MediaWiki API endpoint queried for page
	// images and their metadata.
	WikipediaAPIURL = "https://en.wikipedia.org/w/api.php"

	// https://foundation.wikimedia.org/wiki/Policy:Wikimedia_Foundation_User-Agent_Policy
	userAgentName    = "BirdNET-Pi"
	userAgentContact = "https://github.com/mverteuil/BirdNET-Pi-sub000"
)

// Shared so tests can intercept with httpmock.
var httpClient = &http.Client{Timeout: 20 * time.Second}

// WikimediaProvider fetches bird images from Wikipedia page images and
// their Commons attribution metadata. Requests are rate limited to
// respect the Wikimedia robot policy.
type WikimediaProvider struct {
	limiter   *rate.Limiter
	userAgent string
}

// NewWikimediaProvider creates a provider capped at two requests per
// second.
func NewWikimediaProvider(appVersion string) *WikimediaProvider {
	if appVersion == "" {
		appVersion = "unknown"
	}
	return &WikimediaProvider{
		limiter:   rate.NewLimiter(rate.Limit(2), 2),
		userAgent: fmt.Sprintf("%s/%s (%s) Go-HTTP-Client/%s", userAgentName, appVersion, userAgentContact, runtime.Version()),
	}
}

// Fetch queries Wikipedia for the species thumbnail and its author and
// license metadata. Species without a page or without a free image
// return ErrImageNotFound.
func (p *WikimediaProvider) Fetch(ctx context.Context, scientificName string) (BirdImage, error) {
	page, err := p.query(ctx, map[string]string{
		"action":        "query",
		"format":        "json",
		"formatversion": "2",
		"prop":          "pageimages",
		"piprop":        "thumbnail|name",
		"pilicense":     "free",
		"titles":        scientificName,
		"pithumbsize":   "400",
		"redirects":     "",
	})
	if err != nil {
		return BirdImage{}, err
	}

	thumbnailURL, err := page.GetString("thumbnail", "source")
	if err != nil {
		return BirdImage{}, ErrImageNotFound
	}
	fileName, err := page.GetString("pageimage")
	if err != nil {
		return BirdImage{}, ErrImageNotFound
	}

	author := p.queryAuthor(ctx, fileName)

	return BirdImage{
		URL:            thumbnailURL,
		ScientificName: scientificName,
		AuthorName:     author.name,
		AuthorURL:      author.url,
		LicenseName:    author.licenseName,
		LicenseURL:     author.licenseURL,
		SourceProvider: wikiProviderName,
	}, nil
}

type wikiAuthor struct {
	name        string
	url         string
	licenseName string
	licenseURL  string
}

// queryAuthor resolves the attribution for an image file. Attribution
// failures degrade to "Unknown" rather than failing the fetch.
func (p *WikimediaProvider) queryAuthor(ctx context.Context, fileName string) wikiAuthor {
	author := wikiAuthor{name: "Unknown", licenseName: "Unknown"}

	page, err := p.query(ctx, map[string]string{
		"action":        "query",
		"format":        "json",
		"formatversion": "2",
		"prop":          "imageinfo",
		"iiprop":        "extmetadata",
		"titles":        "File:" + fileName,
		"redirects":     "",
	})
	if err != nil {
		return author
	}

	imageInfo, err := page.GetObjectArray("imageinfo")
	if err != nil || len(imageInfo) == 0 {
		return author
	}
	metadata, err := imageInfo[0].GetObject("extmetadata")
	if err != nil {
		return author
	}

	if licenseName, err := metadata.GetString("LicenseShortName", "value"); err == nil && licenseName != "" {
		author.licenseName = licenseName
	}
	if licenseURL, err := metadata.GetString("LicenseUrl", "value"); err == nil {
		author.licenseURL = licenseURL
	}

	if artistHTML, err := metadata.GetString("Artist", "value"); err == nil && artistHTML != "" {
		href, text, err := extractArtistInfo(artistHTML)
		if err != nil {
			text = html2text.HTML2Text(artistHTML)
		}
		if text != "" {
			author.name = text
			author.url = href
		}
	}
	return author
}

// query calls the MediaWiki API and returns the first page object of
// the response. A response without pages maps to ErrImageNotFound.
func (p *WikimediaProvider) query(ctx context.Context, params map[string]string) (*jason.Object, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	values := url.Values{}
	for key, value := range params {
		values.Set(key, value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, WikipediaAPIURL+"?"+values.Encode(), http.NoBody)
	if err != nil {
		return nil, errors.New(err).
			Component("imageprovider").
			Category(errors.CategoryNetwork).
			Context("provider", wikiProviderName).
			Build()
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("imageprovider").
			Category(errors.CategoryNetwork).
			Context("provider", wikiProviderName).
			Context("titles", params["titles"]).
			Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("wikipedia API returned status %d", resp.StatusCode).
			Component("imageprovider").
			Category(errors.CategoryNetwork).
			Context("provider", wikiProviderName).
			Context("status_code", resp.StatusCode).
			Build()
	}

	root, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return nil, errors.New(err).
			Component("imageprovider").
			Category(errors.CategoryNetwork).
			Context("provider", wikiProviderName).
			Context("operation", "parse_response").
			Build()
	}

	query, err := root.GetObject("query")
	if err != nil {
		return nil, ErrImageNotFound
	}
	pages, err := query.GetObjectArray("pages")
	if err != nil || len(pages) == 0 {
		return nil, ErrImageNotFound
	}
	return pages[0], nil
}

// extractArtistInfo pulls the author link out of the attribution HTML.
// Wikipedia user links are preferred, then any link, then plain text.
func extractArtistInfo(htmlStr string) (href, text string, err error) {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return "", "", err
	}

	links := findLinks(doc)
	for _, link := range links {
		if strings.Contains(extractHref(link), "/wiki/User:") {
			return extractHref(link), extractText(link), nil
		}
	}
	if len(links) > 0 {
		return extractHref(links[0]), extractText(links[0]), nil
	}
	return "", html2text.HTML2Text(htmlStr), nil
}

func findLinks(doc *html.Node) []*html.Node {
	var links []*html.Node
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "a" {
			links = append(links, node)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			traverse(child)
		}
	}
	traverse(doc)
	return links
}

func extractHref(link *html.Node) string {
	for _, attr := range link.Attr {
		if attr.Key == "href" {
			return attr.Val
		}
	}
	return ""
}

func extractText(link *html.Node) string {
	if link.FirstChild == nil {
		return ""
	}
	var b bytes.Buffer
	if err := html.Render(&b, link.FirstChild); err != nil {
		return ""
	}
	return html2text.HTML2Text(b.String())
}
