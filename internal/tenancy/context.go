package tenancy

import "context"

type ctxKey string

const (
	patientKey  ctxKey = "careflow.patient_id"
	providerKey ctxKey = "careflow.provider_id"
)

// WithPatientID stores the authenticated patient id in context.
func WithPatientID(ctx context.Context, patientID string) context.Context {
	return context.WithValue(ctx, patientKey, patientID)
}

// PatientIDFromContext extracts the patient id if present.
func PatientIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(patientKey)
	if val == nil {
		return "", false
	}
	patientID, ok := val.(string)
	return patientID, ok && patientID != ""
}

// WithProviderID stores the authenticated provider id in context.
func WithProviderID(ctx context.Context, providerID string) context.Context {
	return context.WithValue(ctx, providerKey, providerID)
}

// ProviderIDFromContext extracts the provider id if present.
func ProviderIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(providerKey)
	if val == nil {
		return "", false
	}
	providerID, ok := val.(string)
	return providerID, ok && providerID != ""
}
