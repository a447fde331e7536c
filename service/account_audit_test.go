package service

import (
	"net/http"
	"testing"
)

func TestShouldDisableAccount(t *testing.T) {
	cases := []struct {
		name       string
		statusCode int
		message    string
		want       bool
	}{
		{"401 无条件停用", http.StatusUnauthorized, "", true},
		{"凭证失效关键字", http.StatusBadRequest, `{"error": "invalid_grant"}`, true},
		{"大小写不敏感", http.StatusForbidden, "Your Account_Deactivated by admin", true},
		{"封禁文案", http.StatusForbidden, "this user is banned from the platform", true},
		{"普通业务错误", http.StatusBadRequest, "prompt too long", false},
		{"限流不算凭证失败", http.StatusTooManyRequests, "rate limit exceeded", false},
		{"空消息", http.StatusInternalServerError, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldDisableAccount(tc.statusCode, tc.message); got != tc.want {
				t.Errorf("ShouldDisableAccount(%d, %q) = %v, want %v", tc.statusCode, tc.message, got, tc.want)
			}
		})
	}
}

func TestIsRateLimitError(t *testing.T) {
	cases := []struct {
		name       string
		statusCode int
		message    string
		want       bool
	}{
		{"429 无条件限流", http.StatusTooManyRequests, "", true},
		{"限流文案", http.StatusBadRequest, "Rate Limit exceeded, slow down", true},
		{"稍后再试", http.StatusServiceUnavailable, "please try again later", true},
		{"凭证失败不算限流", http.StatusUnauthorized, "invalid_grant", false},
		{"普通错误", http.StatusBadRequest, "bad prompt", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRateLimitError(tc.statusCode, tc.message); got != tc.want {
				t.Errorf("IsRateLimitError(%d, %q) = %v, want %v", tc.statusCode, tc.message, got, tc.want)
			}
		})
	}
}

func TestAcSearch(t *testing.T) {
	t.Run("多关键字全部命中", func(t *testing.T) {
		hit, words := AcSearch("Token_Expired and account_inactive", accountFatalKeywords, false)
		if !hit {
			t.Fatal("expected a hit")
		}
		if len(words) != 2 {
			t.Errorf("expected both keywords, got %v", words)
		}
	})
	t.Run("提前返回只给第一个", func(t *testing.T) {
		hit, words := AcSearch("token_expired and account_inactive", accountFatalKeywords, true)
		if !hit || len(words) != 1 {
			t.Errorf("expected exactly one keyword, got %v", words)
		}
	})
	t.Run("空输入", func(t *testing.T) {
		if hit, _ := AcSearch("", accountFatalKeywords, true); hit {
			t.Error("empty content must not hit")
		}
		if hit, _ := AcSearch("whatever", nil, true); hit {
			t.Error("empty dict must not hit")
		}
	})
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("hello", 10); got != "hello" {
		t.Errorf("within limit must pass through, got %q", got)
	}
	if got := TruncateString("hello world", 5); got != "hello..." {
		t.Errorf("expected truncation with ellipsis, got %q", got)
	}
	if got := TruncateString("hello", 0); got != "hello" {
		t.Errorf("non-positive limit disables truncation, got %q", got)
	}
}
