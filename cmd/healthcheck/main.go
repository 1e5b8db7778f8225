// コンテナのHEALTHCHECK用プローブ。
// 同じコンテナ内のAPIの GET /health を呼び出し、healthyなら0、それ以外は1で終了する。
// シェルやcurlを持たないイメージでも動作する。
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nao1215/dhakacart/pkg/httpclient"
)

// probeTimeout はプローブ全体のタイムアウト。
const probeTimeout = 3 * time.Second

func main() {
	if err := probe(baseURL()); err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck: %v\n", err)
		os.Exit(1)
	}
}

// baseURL はプローブ先のベースURLを返す。
func baseURL() string {
	if url := strings.TrimSpace(os.Getenv("HEALTHCHECK_URL")); url != "" {
		return strings.TrimSuffix(url, "/")
	}
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "5000"
	}
	return "http://127.0.0.1:" + port
}

// probe はbaseURLの /health を呼び出し、healthyでなければエラーを返す。
func probe(baseURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	var resp struct {
		Status string `json:"status"`
	}
	client := httpclient.New(baseURL, httpclient.WithTimeout(probeTimeout))
	if err := client.GetJSON(httpclient.WithRequestID(ctx, "healthcheck"), "/health", &resp); err != nil {
		return err
	}
	if resp.Status != "healthy" {
		return fmt.Errorf("unexpected status %q", resp.Status)
	}
	return nil
}
