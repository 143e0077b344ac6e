// Integration test against the live player API. Opt in with PBTV_INTEGRATION=1:
// PBTV_INTEGRATION=1 go test -v -run Integration ./cmd/pbtv
package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/snapetech/pbtv/internal/config"
	"github.com/snapetech/pbtv/internal/httpclient"
	"github.com/snapetech/pbtv/internal/resolve"
)

func TestIntegration_resolveLive(t *testing.T) {
	for _, p := range []string{".env", "../.env", "../../.env"} {
		_ = config.LoadEnvFile(p)
	}
	if os.Getenv("PBTV_INTEGRATION") == "" {
		t.Skip("set PBTV_INTEGRATION=1 to resolve the live stream")
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	r := &resolve.Resolver{MediaURL: cfg.MediaAPIURL, Client: httpclient.New(20 * time.Second)}
	res, err := r.Resolve(ctx)
	if err != nil {
		t.Skipf("stream not resolvable right now: %v", err)
	}
	best, err := res.Pick("best")
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("master=%s qualities=%v best=%s", res.MasterURL, res.Names(), best.URL)
}
