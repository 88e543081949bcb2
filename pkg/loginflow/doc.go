// Package loginflow orchestrates sign-in and account lifecycle for
// simple-mfa.
//
// A login moves through AwaitingPrimaryFactor, PrimaryVerified and either
// Complete or AwaitingSecondFactor. Each path is a FlowExecutor built from
// ordered steps (password or social account, second factor requirement,
// TOTP, token issuance, hash upgrade). Results that need a second factor
// carry Requires2FA and no token; the caller then completes them with
// Validate2FACode, ValidateSocialLogin2FA or a WebAuthn assertion.
//
// Validation and password-reset e-mails are sent in the background and
// never fail the request that triggered them. Call Wait before shutdown to
// drain them.
package loginflow
