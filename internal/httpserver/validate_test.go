package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// testNodeRequest mirrors pkg/scope's createNodeRequest shape, the
// heaviest real user of Decode/Validate in the handlers.
type testNodeRequest struct {
	NodeID   string  `json:"node_id" validate:"required"`
	ParentID *string `json:"parent_id"`
	NodeType string  `json:"node_type" validate:"required,oneof=org unit team"`
	Name     string  `json:"name" validate:"required"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid JSON",
			body:    `{"node_id":"team-alpha","node_type":"team","name":"Team Alpha"}`,
			wantErr: false,
		},
		{
			name:    "empty body",
			body:    "",
			wantErr: true,
			errMsg:  "request body is empty",
		},
		{
			name:    "invalid JSON",
			body:    `{invalid}`,
			wantErr: true,
			errMsg:  "invalid JSON",
		},
		{
			name:    "unknown field",
			body:    `{"node_id":"team-alpha","node_type":"team","name":"x","unexpected":true}`,
			wantErr: true,
			errMsg:  "invalid JSON",
		},
		{
			name:    "trailing data",
			body:    `{"node_id":"team-alpha","node_type":"team","name":"x"}{"extra":true}`,
			wantErr: true,
			errMsg:  "request body must contain a single JSON object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p testNodeRequest
			err := Decode(r, &p)
			if (err != nil) != tt.wantErr {
				t.Errorf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && err != nil && tt.errMsg != "" {
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %q, want to contain %q", err.Error(), tt.errMsg)
				}
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		payload   testNodeRequest
		wantCount int
	}{
		{
			name:      "valid payload",
			payload:   testNodeRequest{NodeID: "team-alpha", NodeType: "team", Name: "Team Alpha"},
			wantCount: 0,
		},
		{
			name:      "missing required fields",
			payload:   testNodeRequest{},
			wantCount: 3, // node_id, node_type, name
		},
		{
			name:      "invalid node type",
			payload:   testNodeRequest{NodeID: "team-alpha", NodeType: "department", Name: "x"},
			wantCount: 1,
		},
		{
			name:      "missing name only",
			payload:   testNodeRequest{NodeID: "team-alpha", NodeType: "unit"},
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.payload)
			if len(errs) != tt.wantCount {
				t.Errorf("Validate() returned %d errors, want %d: %+v", len(errs), tt.wantCount, errs)
			}
		})
	}
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantOK     bool
		wantStatus int
	}{
		{
			name:   "valid request",
			body:   `{"node_id":"team-alpha","node_type":"team","name":"Team Alpha"}`,
			wantOK: true,
		},
		{
			name:       "invalid JSON",
			body:       `{bad}`,
			wantOK:     false,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing required fields",
			body:       `{"node_id":"team-alpha"}`,
			wantOK:     false,
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			var p testNodeRequest
			ok := DecodeAndValidate(w, r, &p)
			if ok != tt.wantOK {
				t.Errorf("DecodeAndValidate() = %v, want %v", ok, tt.wantOK)
			}
			if !ok && w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"NodeID", "node_i_d"},
		{"NodeType", "node_type"},
		{"ParentID", "parent_i_d"},
		{"Name", "name"},
		{"lowercase", "lowercase"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := toSnakeCase(tt.in)
			if got != tt.want {
				t.Errorf("toSnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
