package fingerprint

import (
	"fmt"
	"strings"

	utls "github.com/refraction-networking/utls"
)

type chromiumFlavor int

const (
	desktopChrome chromiumFlavor = iota
	androidChrome
	desktopEdge
)

type safariFlavor int

const (
	macSafari safariFlavor = iota
	iosSafari
)

const acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"

func chromium(id string, hello utls.ClientHelloID, major string, flavor chromiumFlavor) *Profile {
	var ua, platform, mobile, brand string
	switch flavor {
	case androidChrome:
		ua = fmt.Sprintf("Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s.0.0.0 Mobile Safari/537.36", major)
		platform, mobile, brand = `"Android"`, "?1", "Google Chrome"
	case desktopEdge:
		ua = fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s.0.0.0 Safari/537.36 Edg/%s.0.0.0", major, major)
		platform, mobile, brand = `"Windows"`, "?0", "Microsoft Edge"
	default:
		ua = fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s.0.0.0 Safari/537.36", major)
		platform, mobile, brand = `"Windows"`, "?0", "Google Chrome"
	}

	return &Profile{
		ID:      id,
		HelloID: hello,
		Headers: []Header{
			{Name: "Sec-Ch-Ua", Value: fmt.Sprintf(`"Chromium";v="%s", "%s";v="%s", "Not.A/Brand";v="99"`, major, brand, major)},
			{Name: "Sec-Ch-Ua-Mobile", Value: mobile},
			{Name: "Sec-Ch-Ua-Platform", Value: platform},
			{Name: "Upgrade-Insecure-Requests", Value: "1"},
			{Name: "User-Agent", Value: ua},
			{Name: "Accept", Value: acceptHTML},
			{Name: "Sec-Fetch-Site", Value: "none"},
			{Name: "Sec-Fetch-Mode", Value: "navigate"},
			{Name: "Sec-Fetch-User", Value: "?1"},
			{Name: "Sec-Fetch-Dest", Value: "document"},
			{Name: "Accept-Encoding", Value: "gzip, deflate, br, zstd"},
			{Name: "Accept-Language", Value: "en-US,en;q=0.9"},
		},
	}
}

func safari(id string, hello utls.ClientHelloID, version string, flavor safariFlavor) *Profile {
	major, _, _ := strings.Cut(version, ".")
	ua := fmt.Sprintf("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/%s Safari/605.1.15", version)
	if flavor == iosSafari {
		ua = fmt.Sprintf("Mozilla/5.0 (iPhone; CPU iPhone OS %s_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/%s Mobile/15E148 Safari/604.1", major, version)
	}

	return &Profile{
		ID:      id,
		HelloID: hello,
		Headers: []Header{
			{Name: "Accept", Value: "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
			{Name: "Sec-Fetch-Site", Value: "none"},
			{Name: "Accept-Encoding", Value: "gzip, deflate, br"},
			{Name: "Sec-Fetch-Mode", Value: "navigate"},
			{Name: "User-Agent", Value: ua},
			{Name: "Accept-Language", Value: "en-US,en;q=0.9"},
			{Name: "Sec-Fetch-Dest", Value: "document"},
		},
	}
}

func firefox(id string, hello utls.ClientHelloID, major string) *Profile {
	return &Profile{
		ID:      id,
		HelloID: hello,
		Headers: []Header{
			{Name: "User-Agent", Value: fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:%s.0) Gecko/20100101 Firefox/%s.0", major, major)},
			{Name: "Accept", Value: "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
			{Name: "Accept-Language", Value: "en-US,en;q=0.5"},
			{Name: "Accept-Encoding", Value: "gzip, deflate, br, zstd"},
			{Name: "Upgrade-Insecure-Requests", Value: "1"},
			{Name: "Sec-Fetch-Dest", Value: "document"},
			{Name: "Sec-Fetch-Mode", Value: "navigate"},
			{Name: "Sec-Fetch-Site", Value: "none"},
			{Name: "Sec-Fetch-User", Value: "?1"},
		},
	}
}
