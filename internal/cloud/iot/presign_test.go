package iot

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/auth"
)

func TestPresignURL(t *testing.T) {
	creds := auth.Credentials{AccessKeyID: "AKIDEXAMPLE", SecretKey: "secret", SessionToken: "tok/en+"}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	raw, err := PresignURL(context.Background(), "broker.example.com", "ap-northeast-1", creds, now)
	if err != nil {
		t.Fatalf("PresignURL() error: %v", err)
	}
	if !strings.HasPrefix(raw, "wss://broker.example.com/mqtt?") {
		t.Fatalf("PresignURL() = %q, want wss://broker.example.com/mqtt?...", raw)
	}
	if !strings.HasSuffix(raw, "&X-Amz-Security-Token="+url.QueryEscape("tok/en+")) {
		t.Errorf("session token must be appended after the signature: %q", raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parsing presigned url: %v", err)
	}
	q := u.Query()
	if q.Get("X-Amz-Signature") == "" {
		t.Error("missing X-Amz-Signature")
	}
	wantScope := "AKIDEXAMPLE/20260102/ap-northeast-1/iotdevicegateway/aws4_request"
	if got := q.Get("X-Amz-Credential"); got != wantScope {
		t.Errorf("X-Amz-Credential = %q, want %q", got, wantScope)
	}
	if got := q.Get("X-Amz-Date"); got != "20260102T030405Z" {
		t.Errorf("X-Amz-Date = %q", got)
	}
}

func TestPresignURL_NoSessionToken(t *testing.T) {
	raw, err := PresignURL(context.Background(), "broker.example.com", "ap-northeast-1",
		auth.Credentials{AccessKeyID: "A", SecretKey: "S"}, time.Now())
	if err != nil {
		t.Fatalf("PresignURL() error: %v", err)
	}
	if strings.Contains(raw, "X-Amz-Security-Token") {
		t.Errorf("unexpected security token in %q", raw)
	}
}

func TestClientID(t *testing.T) {
	a := ClientID("ap-northeast-1:abc")
	b := ClientID("ap-northeast-1:abc")

	if !strings.HasPrefix(a, "ap-northeast-1:abc_") || len(a) != len("ap-northeast-1:abc_")+16 {
		t.Errorf("ClientID() = %q", a)
	}
	if a == b {
		t.Error("ClientID() should be random per call")
	}
}
