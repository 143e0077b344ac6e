// Package resolve finds the live HLS master playlist behind the source page and
// lists the qualities it offers, named the way the extractor names them.
package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/snapetech/pbtv/internal/httpclient"
)

var (
	ErrNoStream       = errors.New("no stream offered")
	ErrUnknownQuality = errors.New("quality not offered")
)

// Stream is one playable variant.
type Stream struct {
	Name       string
	URL        string
	Bandwidth  uint32
	Resolution string
	FrameRate  float64
	height     int
}

// Result is a resolved master playlist. Streams are ordered worst to best.
type Result struct {
	MasterURL string
	Streams   []Stream
}

// Names lists the offered quality names, worst to best, followed by "worst" and "best".
func (r *Result) Names() []string {
	names := make([]string, 0, len(r.Streams)+2)
	for _, s := range r.Streams {
		names = append(names, s.Name)
	}
	if len(r.Streams) > 0 {
		names = append(names, "worst", "best")
	}
	return names
}

// Pick returns the stream for quality. Like the extractor it accepts a
// comma-separated fallback list ("720p,best") and uses the first match.
func (r *Result) Pick(quality string) (Stream, error) {
	if len(r.Streams) == 0 {
		return Stream{}, ErrNoStream
	}
	for _, q := range strings.Split(quality, ",") {
		q = strings.ToLower(strings.TrimSpace(q))
		switch q {
		case "":
			continue
		case "best":
			return r.Streams[len(r.Streams)-1], nil
		case "worst":
			return r.Streams[0], nil
		}
		for _, s := range r.Streams {
			if s.Name == q {
				return s, nil
			}
		}
	}
	return Stream{}, fmt.Errorf("%w: %q (available: %s)", ErrUnknownQuality, quality, strings.Join(r.Names(), ", "))
}

// Resolver reads the player media document at MediaURL.
type Resolver struct {
	MediaURL string
	Client   *http.Client // nil = httpclient.New(0)
	Debug    bool
}

type mediaDoc struct {
	Title    string `json:"title"`
	Playlist []struct {
		Title   string `json:"title"`
		Sources []struct {
			File string `json:"file"`
			Type string `json:"type"`
		} `json:"sources"`
	} `json:"playlist"`
}

// MasterURL returns playlist[0].sources[0].file, which must be an .m3u8 URL.
func (r *Resolver) MasterURL(ctx context.Context) (string, error) {
	body, err := r.get(ctx, r.MediaURL)
	if err != nil {
		return "", err
	}
	var doc mediaDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("media document %s: %w", r.MediaURL, err)
	}
	if len(doc.Playlist) == 0 || len(doc.Playlist[0].Sources) == 0 {
		return "", fmt.Errorf("%w: media document has no sources", ErrNoStream)
	}
	file := strings.TrimSpace(doc.Playlist[0].Sources[0].File)
	u, err := url.Parse(file)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: invalid source URL %q", ErrNoStream, file)
	}
	if !strings.HasSuffix(u.Path, ".m3u8") {
		return "", fmt.Errorf("%w: source %q is not an HLS playlist", ErrNoStream, file)
	}
	return file, nil
}

// Resolve fetches the master playlist and names its variants.
func (r *Resolver) Resolve(ctx context.Context) (*Result, error) {
	master, err := r.MasterURL(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("resolve: master=%s", master)
	body, err := r.get(ctx, master)
	if err != nil {
		return nil, err
	}
	streams, err := ParseVariants(master, body)
	if err != nil {
		return nil, err
	}
	return &Result{MasterURL: master, Streams: streams}, nil
}

func (r *Resolver) get(ctx context.Context, rawURL string) ([]byte, error) {
	client := r.Client
	if client == nil {
		client = httpclient.New(0)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpclient.DoWithRetry(ctx, client, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: %s", rawURL, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if r.Debug {
		log.Printf("resolve: %s bytes=%d", rawURL, len(body))
	}
	return body, nil
}

// ParseVariants decodes an HLS playlist. A master playlist yields one stream per
// variant ("720p", "720p60" or "<kbps>k" without a resolution; repeats get "_alt",
// "_alt2", ...); a media playlist yields a single "live" stream.
func ParseVariants(playlistURL string, body []byte) ([]Stream, error) {
	pl, kind, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, fmt.Errorf("parse playlist %s: %w", playlistURL, err)
	}
	if kind == m3u8.MEDIA {
		return []Stream{{Name: "live", URL: playlistURL}}, nil
	}
	master, ok := pl.(*m3u8.MasterPlaylist)
	if !ok {
		return nil, fmt.Errorf("parse playlist %s: unexpected type %T", playlistURL, pl)
	}
	base, err := url.Parse(playlistURL)
	if err != nil {
		return nil, err
	}
	var streams []Stream
	for _, v := range master.Variants {
		if v == nil || v.Iframe || v.URI == "" {
			continue
		}
		ref, err := url.Parse(v.URI)
		if err != nil {
			continue
		}
		s := Stream{
			URL:        base.ResolveReference(ref).String(),
			Bandwidth:  v.Bandwidth,
			Resolution: v.Resolution,
			FrameRate:  v.FrameRate,
			height:     height(v.Resolution),
		}
		s.Name = qualityName(s)
		streams = append(streams, s)
	}
	if len(streams) == 0 {
		return nil, fmt.Errorf("%w: %s has no variants", ErrNoStream, playlistURL)
	}
	sort.SliceStable(streams, func(i, j int) bool {
		if streams[i].height != streams[j].height {
			return streams[i].height < streams[j].height
		}
		return streams[i].Bandwidth < streams[j].Bandwidth
	})
	seen := map[string]int{}
	for i := range streams {
		n := streams[i].Name
		seen[n]++
		switch c := seen[n]; {
		case c == 2:
			streams[i].Name = n + "_alt"
		case c > 2:
			streams[i].Name = n + "_alt" + strconv.Itoa(c-1)
		}
	}
	return streams, nil
}

func qualityName(s Stream) string {
	if s.height > 0 {
		name := strconv.Itoa(s.height) + "p"
		if s.FrameRate > 30 {
			name += strconv.Itoa(int(s.FrameRate + 0.5))
		}
		return name
	}
	return strconv.FormatUint(uint64(s.Bandwidth/1000), 10) + "k"
}

// height parses the vertical size from "1280x720".
func height(res string) int {
	_, h, ok := strings.Cut(strings.ToLower(res), "x")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
