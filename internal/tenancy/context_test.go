package tenancy

import (
	"context"
	"testing"
)

func TestPatientIDRoundTrip(t *testing.T) {
	ctx := WithPatientID(context.Background(), "patient-123")

	got, ok := PatientIDFromContext(ctx)
	if !ok {
		t.Fatalf("expected patient id to be present")
	}
	if got != "patient-123" {
		t.Fatalf("expected patient-123, got %s", got)
	}
}

func TestProviderIDRoundTrip(t *testing.T) {
	ctx := WithProviderID(context.Background(), "provider-9")

	got, ok := ProviderIDFromContext(ctx)
	if !ok {
		t.Fatalf("expected provider id to be present")
	}
	if got != "provider-9" {
		t.Fatalf("expected provider-9, got %s", got)
	}
}

func TestEmptyOrMissingIdentities(t *testing.T) {
	ctx := context.Background()
	if _, ok := PatientIDFromContext(ctx); ok {
		t.Fatalf("expected missing patient id to return false")
	}
	if _, ok := ProviderIDFromContext(ctx); ok {
		t.Fatalf("expected missing provider id to return false")
	}

	ctx = WithPatientID(ctx, "")
	if _, ok := PatientIDFromContext(ctx); ok {
		t.Fatalf("expected empty patient id to return false")
	}
}
