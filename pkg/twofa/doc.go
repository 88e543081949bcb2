// Package twofa implements the TOTP second factor (RFC 6238: 30 second step,
// SHA-1, six digits) on top of github.com/pquerna/otp.
//
//	engine := twofa.NewTOTPEngine()
//	secret, _ := engine.GenerateSecret("orion@test.com", "orion-users")
//	uri := engine.BarcodeURI(secret, "orion@test.com", "orion-users")
//	png, _ := engine.RenderQR(uri)
//	err := engine.ValidateCode(secret, "123456")
//
// ValidateCode checks the format first (INVALID_INPUT) and then the value
// (UNAUTHORIZED). By default only the current time step is accepted; use
// WithSkew to tolerate clock drift.
package twofa
