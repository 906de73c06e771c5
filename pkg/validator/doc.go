// Package validator provides declarative, translation-friendly request
// validation.
//
// A Rule couples a Check func with the ValidationError reported when it
// fails. Apply evaluates a list of rules and aggregates the failures into
// ValidationErrors, which satisfies the error interface and survives
// errors.Join wrapping:
//
//	err := validator.Apply(
//	    validator.RequiredString("tenant_id", req.TenantID),
//	    validator.RequiredSlice("recipients", req.Recipients),
//	    validator.MaxItems("channels", req.Channels, 8),
//	)
//	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
//	    for _, f := range verrs.Fields() {
//	        // render per-field messages
//	    }
//	}
//
// Rules hold no state, so they are safe to build and apply concurrently.
package validator
