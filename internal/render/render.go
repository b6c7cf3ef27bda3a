// Package render writes hop results to the inbound HTTP response.
package render

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/net/html/charset"

	"hopchain/internal/model"
	"hopchain/internal/service"
)

// ErrInvalidJSON is returned when a body labelled as JSON does not parse.
var ErrInvalidJSON = errors.New("response body is not valid JSON")

// BodyKind is how a buffered body is embedded in the metadata document.
type BodyKind int

const (
	// KindJSON embeds the body as a JSON value.
	KindJSON BodyKind = iota
	// KindText embeds the body as a string.
	KindText
	// KindBinary embeds the body as lowercase hex.
	KindBinary
)

// KindOf picks the BodyKind for a Content-Type header value.
func KindOf(contentType string) BodyKind {
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		return KindJSON
	case strings.HasPrefix(contentType, "text/"):
		return KindText
	default:
		return KindBinary
	}
}

// Encode turns body into the JSON value stored under "data". Text bodies
// must already be UTF-8 (see TextOf). An empty JSON body encodes as null.
func (k BodyKind) Encode(body []byte) (json.RawMessage, error) {
	switch k {
	case KindJSON:
		if len(bytes.TrimSpace(body)) == 0 {
			return json.RawMessage("null"), nil
		}
		if !json.Valid(body) {
			return nil, ErrInvalidJSON
		}
		return json.RawMessage(body), nil
	case KindText:
		return marshalString(string(body))
	default:
		return marshalString(hex.EncodeToString(body))
	}
}

// TextOf converts a text body to UTF-8 using the charset parameter of
// contentType. Bodies without a charset, or with one that is not
// recognised, are returned unchanged.
func TextOf(contentType string, body []byte) []byte {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["charset"] == "" {
		return body
	}
	r, err := charset.NewReaderLabel(params["charset"], bytes.NewReader(body))
	if err != nil {
		return body
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return out
}

// marshalString encodes s as a JSON string without HTML escaping.
func marshalString(s string) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Hop-by-hop headers removed at each boundary. Streamed bodies have already
// been decoded, so their encoding headers no longer apply.
var (
	streamStrip = map[string]bool{
		"Content-Encoding":  true,
		"Transfer-Encoding": true,
		"Content-Length":    true,
		"Connection":        true,
	}
	bufferedStrip = map[string]bool{
		"Content-Length":    true,
		"Transfer-Encoding": true,
	}
)

// Metadata describes a final hop response.
type Metadata struct {
	StatusCode  int               `json:"status_code"`
	URL         string            `json:"url"`
	Elapsed     float64           `json:"elapsed"`
	Headers     map[string]string `json:"headers"`
	Cookies     map[string]string `json:"cookies"`
	Impersonate string            `json:"impersonate"`
	Data        json.RawMessage   `json:"data,omitempty"`
}

// NewMetadata builds the metadata document for res.
func NewMetadata(res *service.Result) *Metadata {
	resp := res.Response
	headers := make(map[string]string, len(resp.Header))
	for k, vals := range resp.Header {
		headers[k] = strings.Join(vals, ", ")
	}
	cookies := resp.Cookies
	if cookies == nil {
		cookies = map[string]string{}
	}
	return &Metadata{
		StatusCode:  resp.StatusCode,
		URL:         resp.URL,
		Elapsed:     resp.Elapsed.Seconds(),
		Headers:     headers,
		Cookies:     cookies,
		Impersonate: res.Fingerprint,
	}
}

// Direct writes the response of a hop this relay performed itself.
func Direct(c echo.Context, res *service.Result) error {
	resp := res.Response
	defer func() { _ = resp.Body.Close() }()

	meta := NewMetadata(res)
	if !res.ReturnData {
		return writeJSON(c, resp.StatusCode, meta)
	}
	if res.Stream {
		return stream(c, resp)
	}

	body, err := resp.Body.Bytes()
	if err != nil {
		return fmt.Errorf("%w: read body: %w", service.ErrTransport, err)
	}
	// HEAD answers and 204/304 carry no body to embed.
	if len(body) == 0 || !bodyAllowed(resp.StatusCode) {
		return writeJSON(c, resp.StatusCode, meta)
	}

	ct := resp.Header.Get(echo.HeaderContentType)
	kind := KindOf(ct)
	if kind == KindText {
		body = TextOf(ct, body)
	}
	data, err := kind.Encode(body)
	if err != nil {
		return fmt.Errorf("%w: %w", service.ErrTransport, err)
	}
	meta.Data = data
	return writeJSON(c, resp.StatusCode, meta)
}

// Forward relays the next relay's response.
func Forward(c echo.Context, res *service.Result) error {
	resp := res.Response
	defer func() { _ = resp.Body.Close() }()

	if res.Stream {
		return stream(c, resp)
	}

	body, err := resp.Body.Bytes()
	if err != nil {
		return fmt.Errorf("%w: read body: %w", service.ErrTransport, err)
	}

	w := c.Response()
	copyHeaders(w.Header(), resp.Header, bufferedStrip)
	if resp.Header.Get(echo.HeaderContentType) == "" {
		// no sniffing: the upstream sent no media type
		w.Header()[echo.HeaderContentType] = nil
	}
	w.WriteHeader(resp.StatusCode)
	if !bodyAllowed(resp.StatusCode) {
		return nil
	}
	_, err = w.Write(body)
	return err
}

// stream copies the body chunk by chunk, flushing after each one.
func stream(c echo.Context, resp *model.HopResponse) error {
	w := c.Response()
	copyHeaders(w.Header(), resp.Header, streamStrip)
	w.Header().Set(echo.HeaderContentType, echo.MIMEOctetStream)
	w.WriteHeader(resp.StatusCode)
	if !bodyAllowed(resp.StatusCode) {
		return nil
	}

	for chunk, err := range resp.Body.Chunks() {
		if err != nil {
			return fmt.Errorf("%w: stream body: %w", service.ErrTransport, err)
		}
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("write chunk: %w", err)
		}
		w.Flush()
	}
	return nil
}

func writeJSON(c echo.Context, status int, v any) error {
	if !bodyAllowed(status) {
		return c.NoContent(status)
	}
	return c.JSON(status, v)
}

// copyHeaders replaces dst values with src values for every key not in strip.
func copyHeaders(dst, src http.Header, strip map[string]bool) {
	for k, vals := range src {
		k = http.CanonicalHeaderKey(k)
		if strip[k] {
			continue
		}
		dst[k] = append([]string(nil), vals...)
	}
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
