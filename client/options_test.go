package client

import (
	"testing"

	"github.com/lmmcdev/compliance-frontend-sub001/apierror"
)

func TestDecodeJSON_Object(t *testing.T) {
	type license struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	resp := &Response{Body: []byte(`{"id":"lic-1","name":"SOC2"}`)}

	got, err := DecodeJSON[license](resp)
	if err != nil {
		t.Fatalf("Expected decode to succeed, got %v", err)
	}
	if got.ID != "lic-1" || got.Name != "SOC2" {
		t.Errorf("Expected decoded license, got %+v", got)
	}
}

func TestDecodeJSON_Array(t *testing.T) {
	resp := &Response{Body: []byte(`["a","b"]`)}

	got, err := DecodeJSON[[]string](resp)
	if err != nil {
		t.Fatalf("Expected decode to succeed, got %v", err)
	}
	if len(got) != 2 || got[0] != "a" {
		t.Errorf("Expected decoded slice, got %v", got)
	}
}

func TestDecodeJSON_ShapeMismatches(t *testing.T) {
	type license struct {
		ID string `json:"id"`
	}

	tests := []struct {
		name string
		body string
	}{
		{"null body", `null`},
		{"array into struct", `[{"id":"lic-1"}]`},
		{"scalar into struct", `"lic-1"`},
		{"invalid json", `{"id":`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &Response{Body: []byte(tt.body)}
			_, err := DecodeJSON[license](resp)
			if !apierror.IsKind(err, apierror.KindValidation) {
				t.Errorf("Expected ValidationError, got %v", err)
			}
		})
	}
}

func TestDecodeJSON_ObjectIntoSlice(t *testing.T) {
	resp := &Response{Body: []byte(`{"items":[]}`)}

	_, err := DecodeJSON[[]string](resp)
	if !apierror.IsKind(err, apierror.KindValidation) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}

func TestDecodeJSON_FieldTypeMismatch(t *testing.T) {
	type license struct {
		Count int `json:"count"`
	}

	resp := &Response{Body: []byte(`{"count":"twelve"}`)}

	_, err := DecodeJSON[license](resp)
	if !apierror.IsKind(err, apierror.KindValidation) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}
