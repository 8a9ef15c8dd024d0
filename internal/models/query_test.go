package models

import (
	"errors"
	"testing"
)

func TestAskRequest_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		req      AskRequest
		wantTopK int
		wantErr  error
	}{
		{"default top_k", AskRequest{Query: " hello "}, 3, nil},
		{"explicit top_k", AskRequest{Query: "hello", TopK: 7}, 7, nil},
		{"blank query", AskRequest{Query: "   "}, 0, ErrEmptyQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Normalize(3)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && tt.req.TopK != tt.wantTopK {
				t.Errorf("TopK = %d, want %d", tt.req.TopK, tt.wantTopK)
			}
			if err == nil && tt.req.Query != "hello" {
				t.Errorf("Query = %q, want trimmed", tt.req.Query)
			}
		})
	}
}
