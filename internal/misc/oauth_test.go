package misc

import "testing"

func TestGenerateRandomState(t *testing.T) {
	a, err := GenerateRandomState()
	if err != nil {
		t.Fatalf("GenerateRandomState: %v", err)
	}
	b, err := GenerateRandomState()
	if err != nil {
		t.Fatalf("GenerateRandomState: %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("len(state) = %d, want 32 hex chars", len(a))
	}
	if a == b {
		t.Fatalf("two states are equal: %q", a)
	}
	short, _ := GenerateRandomStateN(4)
	if len(short) != 32 {
		t.Fatalf("short state len = %d, want floor of 32", len(short))
	}
}

func TestParseOAuthCallback(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCode  string
		wantState string
		wantErr   string
		wantFail  bool
		wantNil   bool
	}{
		{name: "full url", input: "http://localhost:3000/callback?code=abc&state=xyz", wantCode: "abc", wantState: "xyz"},
		{name: "bare query", input: "code=abc&state=xyz", wantCode: "abc", wantState: "xyz"},
		{name: "leading question mark", input: "?code=abc&state=xyz", wantCode: "abc", wantState: "xyz"},
		{name: "fragment", input: "http://localhost/callback#code=abc&state=xyz", wantCode: "abc", wantState: "xyz"},
		{name: "provider error", input: "http://localhost/callback?error=access_denied&state=xyz", wantErr: "access_denied", wantState: "xyz"},
		{name: "description only", input: "http://localhost/callback?error_description=denied", wantErr: "denied"},
		{name: "missing code", input: "http://localhost/callback?state=xyz", wantFail: true},
		{name: "garbage", input: "nonsense", wantFail: true},
		{name: "empty", input: "   ", wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOAuthCallback(tt.input)
			if tt.wantFail {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOAuthCallback: %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Fatalf("expected nil, got %+v", got)
				}
				return
			}
			if got.Code != tt.wantCode || got.State != tt.wantState || got.Error != tt.wantErr {
				t.Fatalf("got %+v", got)
			}
		})
	}
}
