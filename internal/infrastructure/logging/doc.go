// Package logging builds the structured logger shared by every CareWatch
// component.
//
// Output is JSON by default or logfmt-style text, written to stdout,
// stderr or nowhere. Each entry carries service and version fields, and
// components tag their own entries via Component. Values of attributes
// named token, password, secret, authorization or ticket are replaced
// with [REDACTED] so credentials for the monitoring backend never reach
// the log. Resident health readings should not be logged beyond their
// identifiers.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
package logging
