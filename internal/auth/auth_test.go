package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/danmuck/rconbridge/internal/testutil/testlog"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	testlog.Start(t)
	cases := map[string]struct {
		token string
		ok    bool
	}{
		"Bearer abc":   {"abc", true},
		"bearer  abc ": {"abc", true},
		"Basic abc":    {"", false},
		"Bearer":       {"", false},
		"Bearer    ":   {"", false},
		"":             {"", false},
	}
	for header, tc := range cases {
		token, ok := BearerToken(header)
		if token != tc.token || ok != tc.ok {
			t.Fatalf("BearerToken(%q) = (%q, %v), want (%q, %v)", header, token, ok, tc.token, tc.ok)
		}
	}
}

func TestMiddleware(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(StaticToken{Token: "s3cret"}, "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/config", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(path, header string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := do("/health", ""); code != http.StatusOK {
		t.Fatalf("open path: got %d", code)
	}
	if code := do("/config", ""); code != http.StatusUnauthorized {
		t.Fatalf("missing token: got %d", code)
	}
	if code := do("/config", "Bearer wrong"); code != http.StatusUnauthorized {
		t.Fatalf("wrong token: got %d", code)
	}
	if code := do("/config", "Bearer s3cret"); code != http.StatusOK {
		t.Fatalf("valid token: got %d", code)
	}
}
