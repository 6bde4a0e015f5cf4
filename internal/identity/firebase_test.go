package identity

import "testing"

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]interface{}
		want   bool
	}{
		{"admin flag", map[string]interface{}{"admin": true}, true},
		{"admin role", map[string]interface{}{"role": "admin"}, true},
		{"brand role", map[string]interface{}{"role": "brand"}, false},
		{"admin false", map[string]interface{}{"admin": false}, false},
		{"no claims", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAdmin(tt.claims); got != tt.want {
				t.Fatalf("got=%v want=%v", got, tt.want)
			}
		})
	}
}
