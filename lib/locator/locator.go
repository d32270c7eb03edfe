package locator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"mapsentiment-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/locator")

var (
	// ErrNotALocation is returned when the resolved url does not look
	// like a maps place page.
	ErrNotALocation = errors.New("url does not resolve to a maps location")
	// ErrUnreachable is returned when the url (or its short-link
	// redirect chain) could not be fetched at all.
	ErrUnreachable = errors.New("location url is unreachable")
)

// Location is the canonical identity of a business place, stable across
// equivalent input urls (shortener redirects, tracking parameters).
type Location struct {
	RawURL    string
	FinalURL  string
	Canonical string
}

// CacheKey returns the deterministic hash used to index stored analysis
// results for this location.
func (l Location) CacheKey() string {
	sum := sha256.Sum256([]byte(l.Canonical))
	return hex.EncodeToString(sum[:])
}

type Options struct {
	// Timeout bounds the whole redirect resolution, zero means 15s.
	Timeout time.Duration
	// MaxRedirects bounds short-link expansion, zero means 10.
	MaxRedirects int
	// AntiBotHeaders wraps the transport so requests carry the header
	// set of a regular browser. Leave off in tests.
	AntiBotHeaders bool
}

type Resolver struct {
	http *resty.Client
}

func NewResolver(opts Options) *Resolver {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 15
	}
	maxRedirects := opts.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = 10
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects))
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	if opts.AntiBotHeaders {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	telemetry.InstrumentResty(client, "lib/locator/http")

	return &Resolver{http: client}
}

// Resolve follows short-link redirects on rawUrl and reduces the final url
// to a canonical location identity.
func (r *Resolver) Resolve(ctx context.Context, rawUrl string) (Location, error) {
	ctx, span := tracer.Start(ctx, "Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("url", rawUrl))

	parsed, err := url.Parse(rawUrl)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		err = fmt.Errorf("%w: %q", ErrNotALocation, rawUrl)
		span.SetStatus(codes.Error, err.Error())
		return Location{}, err
	}

	res, err := r.http.R().SetContext(ctx).Get(rawUrl)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			span.SetStatus(codes.Error, err.Error())
			return Location{}, err
		}
		err = fmt.Errorf("%w: %v", ErrUnreachable, err)
		span.SetStatus(codes.Error, err.Error())
		return Location{}, err
	}

	finalUrl := res.RawResponse.Request.URL
	canonical, err := Canonicalize(finalUrl)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Location{}, err
	}

	loc := Location{
		RawURL:    rawUrl,
		FinalURL:  finalUrl.String(),
		Canonical: canonical,
	}
	span.SetAttributes(attribute.String("canonical", canonical))
	return loc, nil
}

// query parameters that identify a place and therefore survive
// canonicalization, everything else is treated as tracking noise
var identityParams = map[string]bool{
	"place_id": true,
	"ftid":     true,
	"cid":      true,
}

// Canonicalize reduces a maps place url to the identifier portion that is
// stable across cosmetic url variations. Accepted shapes:
//
//	.../maps/place/<name>/...
//	...?q=place_id:<id>
//	...?place_id=<id> | ?ftid=<id> | ?cid=<id>
func Canonicalize(u *url.URL) (string, error) {
	query := u.Query()

	if q := query.Get("q"); strings.HasPrefix(q, "place_id:") {
		return q, nil
	}
	for param := range identityParams {
		if v := query.Get(param); v != "" {
			return fmt.Sprintf("%s:%s", param, v), nil
		}
	}

	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	for i, segment := range segments {
		if segment == "maps" && i+2 < len(segments) && segments[i+1] == "place" {
			return fmt.Sprintf("place/%s", strings.ToLower(segments[i+2])), nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrNotALocation, u.String())
}
